package snapshot

import (
	"context"
	"fmt"
)

// fakeHost is an in-memory Host keyed by internal configuration id.
type fakeHost struct {
	configs  map[string]Configuration
	deps     map[string][]string
	queued   map[string][]Build
	running  map[string][]Build
	finished map[string][]Build
	params   map[string]map[string]string

	failRunning error
	paramsErr   error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		configs:  map[string]Configuration{},
		deps:     map[string][]string{},
		queued:   map[string][]Build{},
		running:  map[string][]Build{},
		finished: map[string][]Build{},
		params:   map[string]map[string]string{},
	}
}

func (h *fakeHost) add(id, name string) Configuration {
	cfg := Configuration{ID: id, ExternalID: "Ext_" + id, Name: name, ProjectName: "Project"}
	h.configs[id] = cfg
	return cfg
}

func (h *fakeHost) dependsOn(id string, deps ...string) {
	h.deps[id] = append(h.deps[id], deps...)
}

func (h *fakeHost) FindConfiguration(ctx context.Context, externalID string) (Configuration, error) {
	for _, cfg := range h.configs {
		if cfg.ExternalID == externalID {
			return cfg, nil
		}
	}
	return Configuration{}, fmt.Errorf("%w: %s", ErrConfigurationNotFound, externalID)
}

func (h *fakeHost) Dependencies(ctx context.Context, cfg Configuration) ([]Configuration, error) {
	var out []Configuration
	for _, id := range h.deps[cfg.ID] {
		out = append(out, h.configs[id])
	}
	return out, nil
}

func (h *fakeHost) InQueue(ctx context.Context, cfg Configuration) (bool, error) {
	return len(h.queued[cfg.ID]) > 0, nil
}

func (h *fakeHost) QueuedBuilds(ctx context.Context, cfg Configuration) ([]Build, error) {
	return h.queued[cfg.ID], nil
}

func (h *fakeHost) RunningBuilds(ctx context.Context, cfg Configuration) ([]Build, error) {
	if h.failRunning != nil {
		return nil, h.failRunning
	}
	return h.running[cfg.ID], nil
}

func (h *fakeHost) FinishedBuilds(ctx context.Context, cfg Configuration) ([]Build, error) {
	return h.finished[cfg.ID], nil
}

func (h *fakeHost) Parameters(ctx context.Context, build Build) (map[string]string, error) {
	if h.paramsErr != nil {
		return nil, h.paramsErr
	}
	return h.params[build.ID], nil
}

func linkedTo(rootID string) map[string]string {
	return map[string]string{RootLinkKey: rootID}
}

type countingObserver struct {
	cycles int
}

func (o *countingObserver) IncDependencyCycle() {
	o.cycles++
}
