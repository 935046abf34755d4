package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/izavyalov-dev/octane-bridge/state"
)

// stateCanceled seeds a build that was queued and then removed from the queue.
const stateCanceled = "CANCELED"

// topology is a YAML fixture describing configurations, their dependencies and builds.
type topology struct {
	Configurations []topologyConfiguration `yaml:"configurations"`
	Builds         []topologyBuild         `yaml:"builds"`
}

type topologyConfiguration struct {
	ID         string   `yaml:"id"`
	ExternalID string   `yaml:"external_id"`
	Name       string   `yaml:"name"`
	Project    string   `yaml:"project"`
	DependsOn  []string `yaml:"depends_on"`
}

type topologyBuild struct {
	Configuration     string            `yaml:"configuration"`
	Number            string            `yaml:"number"`
	State             string            `yaml:"state"`
	QueueItemID       string            `yaml:"queue_item_id"`
	QueuedAt          time.Time         `yaml:"queued_at"`
	StartedAt         time.Time         `yaml:"started_at"`
	FinishedAt        time.Time         `yaml:"finished_at"`
	EstimatedDuration *int64            `yaml:"estimated_duration_seconds"`
	Outcome           string            `yaml:"outcome"`
	Trigger           map[string]string `yaml:"trigger"`
	Parameters        map[string]string `yaml:"parameters"`
}

// topologyStore is the subset of *state.Store the seeder writes through.
type topologyStore interface {
	CreateConfiguration(ctx context.Context, cfg state.BuildConfiguration) (state.BuildConfiguration, error)
	RecordDependency(ctx context.Context, dep state.Dependency) error
	EnqueueBuild(ctx context.Context, build state.Build) (state.Build, error)
	StartBuild(ctx context.Context, buildID int64, startedAt time.Time, estimatedSeconds *int64) (state.Build, error)
	FinishBuild(ctx context.Context, buildID int64, finishedAt time.Time, outcome state.Outcome) (state.Build, error)
	CancelQueuedBuild(ctx context.Context, queueItemID string, now time.Time) (state.Build, error)
	SetBuildParameters(ctx context.Context, buildID int64, params map[string]string) error
}

type seedSummary struct {
	Configurations int
	Dependencies   int
	Builds         int
}

func loadTopology(path string) (topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return topology{}, fmt.Errorf("read topology %s: %w", path, err)
	}
	var topo topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return topology{}, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if err := topo.validate(); err != nil {
		return topology{}, fmt.Errorf("invalid topology %s: %w", path, err)
	}
	return topo, nil
}

func (t topology) validate() error {
	known := make(map[string]bool, len(t.Configurations))
	for _, cfg := range t.Configurations {
		if cfg.ID == "" || cfg.Name == "" {
			return errors.New("configurations need id and name")
		}
		if known[cfg.ID] {
			return fmt.Errorf("configuration %s declared twice", cfg.ID)
		}
		known[cfg.ID] = true
	}
	for _, cfg := range t.Configurations {
		for _, dep := range cfg.DependsOn {
			if !known[dep] {
				return fmt.Errorf("configuration %s depends on unknown %s", cfg.ID, dep)
			}
		}
	}
	for i, build := range t.Builds {
		if !known[build.Configuration] {
			return fmt.Errorf("build %d references unknown configuration %q", i, build.Configuration)
		}
		switch target := strings.ToUpper(build.State); target {
		case string(state.BuildStateQueued), string(state.BuildStateRunning), stateCanceled:
			if build.Outcome != "" {
				return fmt.Errorf("%s build %d of %s cannot carry an outcome", strings.ToLower(target), i, build.Configuration)
			}
		case string(state.BuildStateFinished):
			if build.Outcome == "" {
				return fmt.Errorf("finished build %d of %s needs an outcome", i, build.Configuration)
			}
			if !state.Outcome(strings.ToUpper(build.Outcome)).Valid() {
				return fmt.Errorf("finished build %d of %s has unknown outcome %q", i, build.Configuration, build.Outcome)
			}
		default:
			return fmt.Errorf("build %d of %s has unknown state %q", i, build.Configuration, build.State)
		}
	}
	return nil
}

// applyTopology writes configurations, then edges in declaration order, then builds walked through
// their state transitions.
func applyTopology(ctx context.Context, store topologyStore, topo topology) (seedSummary, error) {
	var summary seedSummary
	for _, cfg := range topo.Configurations {
		externalID := cfg.ExternalID
		if externalID == "" {
			externalID = cfg.ID
		}
		if _, err := store.CreateConfiguration(ctx, state.BuildConfiguration{
			ID:          cfg.ID,
			ExternalID:  externalID,
			Name:        cfg.Name,
			ProjectName: cfg.Project,
		}); err != nil {
			return summary, fmt.Errorf("create configuration %s: %w", cfg.ID, err)
		}
		summary.Configurations++
	}

	for _, cfg := range topo.Configurations {
		for position, dep := range cfg.DependsOn {
			if err := store.RecordDependency(ctx, state.Dependency{ConfigurationID: cfg.ID, DependsOnID: dep, Position: position}); err != nil {
				return summary, fmt.Errorf("record dependency %s -> %s: %w", cfg.ID, dep, err)
			}
			summary.Dependencies++
		}
	}

	for _, build := range topo.Builds {
		if err := seedBuild(ctx, store, build); err != nil {
			return summary, fmt.Errorf("seed build %s of %s: %w", build.Number, build.Configuration, err)
		}
		summary.Builds++
	}
	return summary, nil
}

func seedBuild(ctx context.Context, store topologyStore, build topologyBuild) error {
	record := state.Build{
		ConfigurationID:          build.Configuration,
		Number:                   build.Number,
		Trigger:                  build.Trigger,
		QueuedAt:                 build.QueuedAt,
		EstimatedDurationSeconds: build.EstimatedDuration,
	}
	if build.QueueItemID != "" {
		record.QueueItemID = &build.QueueItemID
	}
	queued, err := store.EnqueueBuild(ctx, record)
	if err != nil {
		return err
	}
	if len(build.Parameters) > 0 {
		if err := store.SetBuildParameters(ctx, queued.ID, build.Parameters); err != nil {
			return err
		}
	}

	target := strings.ToUpper(build.State)
	switch target {
	case string(state.BuildStateQueued):
		return nil
	case stateCanceled:
		_, err := store.CancelQueuedBuild(ctx, *queued.QueueItemID, build.FinishedAt)
		return err
	}
	if _, err := store.StartBuild(ctx, queued.ID, build.StartedAt, build.EstimatedDuration); err != nil {
		return err
	}
	if target == string(state.BuildStateRunning) {
		return nil
	}
	_, err = store.FinishBuild(ctx, queued.ID, build.FinishedAt, state.Outcome(strings.ToUpper(build.Outcome)))
	return err
}
