package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/izavyalov-dev/octane-bridge/snapshot"
)

// Host serves the snapshot engine from the persisted registries.
type Host struct {
	store *Store
	now   func() time.Time
}

func NewHost(store *Store) *Host {
	return &Host{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used for elapsed time of running builds.
func (h *Host) WithClock(now func() time.Time) *Host {
	h.now = now
	return h
}

func (h *Host) FindConfiguration(ctx context.Context, externalID string) (snapshot.Configuration, error) {
	cfg, err := h.store.GetConfigurationByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return snapshot.Configuration{}, fmt.Errorf("%w: %s", snapshot.ErrConfigurationNotFound, externalID)
		}
		return snapshot.Configuration{}, err
	}
	return toConfiguration(cfg), nil
}

func (h *Host) Dependencies(ctx context.Context, cfg snapshot.Configuration) ([]snapshot.Configuration, error) {
	deps, err := h.store.ListDependencies(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.Configuration, 0, len(deps))
	for _, dep := range deps {
		out = append(out, toConfiguration(dep))
	}
	return out, nil
}

func (h *Host) InQueue(ctx context.Context, cfg snapshot.Configuration) (bool, error) {
	return h.store.HasQueuedBuilds(ctx, cfg.ID)
}

func (h *Host) QueuedBuilds(ctx context.Context, cfg snapshot.Configuration) ([]snapshot.Build, error) {
	return h.builds(ctx, cfg, BuildStateQueued)
}

func (h *Host) RunningBuilds(ctx context.Context, cfg snapshot.Configuration) ([]snapshot.Build, error) {
	return h.builds(ctx, cfg, BuildStateRunning)
}

func (h *Host) FinishedBuilds(ctx context.Context, cfg snapshot.Configuration) ([]snapshot.Build, error) {
	return h.builds(ctx, cfg, BuildStateFinished)
}

// ListJobs returns every registered configuration ordered by external id.
func (h *Host) ListJobs(ctx context.Context) ([]snapshot.Configuration, error) {
	configs, err := h.store.ListConfigurations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.Configuration, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toConfiguration(cfg))
	}
	return out, nil
}

// Parameters implements snapshot.ParameterExtractor.
func (h *Host) Parameters(ctx context.Context, build snapshot.Build) (map[string]string, error) {
	if build.ID == "" {
		return map[string]string{}, nil
	}
	buildID, err := strconv.ParseInt(build.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse build id %q: %w", build.ID, err)
	}
	params, err := h.store.ListBuildParameters(ctx, buildID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(params))
	for _, param := range params {
		out[param.Name] = param.Value
	}
	return out, nil
}

func (h *Host) builds(ctx context.Context, cfg snapshot.Configuration, buildState BuildState) ([]snapshot.Build, error) {
	builds, err := h.store.ListBuildsByState(ctx, cfg.ID, buildState)
	if err != nil {
		return nil, err
	}
	now := h.now()
	out := make([]snapshot.Build, 0, len(builds))
	for _, build := range builds {
		out = append(out, toBuild(build, now))
	}
	return out, nil
}

func toConfiguration(cfg BuildConfiguration) snapshot.Configuration {
	return snapshot.Configuration{
		ID:          cfg.ID,
		ExternalID:  cfg.ExternalID,
		Name:        cfg.Name,
		ProjectName: cfg.ProjectName,
	}
}

func toBuild(build Build, now time.Time) snapshot.Build {
	out := snapshot.Build{
		ID:              strconv.FormatInt(build.ID, 10),
		Number:          build.Number,
		DurationSeconds: build.ElapsedSeconds(now),
		Trigger:         build.Trigger,
	}
	if build.QueueItemID != nil {
		out.QueueItemID = *build.QueueItemID
	}
	if build.StartedAt != nil {
		out.StartedAt = *build.StartedAt
	}
	if build.EstimatedDurationSeconds != nil {
		out.EstimatedDurationSeconds = *build.EstimatedDurationSeconds
	}
	if build.Outcome != nil {
		out.Outcome = string(*build.Outcome)
	}
	return out
}
