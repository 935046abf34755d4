package snapshot

import (
	"context"
	"errors"
)

// ErrConfigurationNotFound is returned by Host.FindConfiguration when the external id is unknown.
var ErrConfigurationNotFound = errors.New("snapshot: configuration not found")

// Host exposes the CI server registries the engine reads from. Implementations are owned and
// mutated by the CI server; successive reads within one traversal may observe different states.
type Host interface {
	FindConfiguration(ctx context.Context, externalID string) (Configuration, error)
	Dependencies(ctx context.Context, cfg Configuration) ([]Configuration, error)
	InQueue(ctx context.Context, cfg Configuration) (bool, error)
	QueuedBuilds(ctx context.Context, cfg Configuration) ([]Build, error)
	RunningBuilds(ctx context.Context, cfg Configuration) ([]Build, error)
	// FinishedBuilds returns the history in the host's iteration order.
	FinishedBuilds(ctx context.Context, cfg Configuration) ([]Build, error)
}

// OutcomeMapper converts a native outcome code into a Result.
type OutcomeMapper interface {
	MapOutcome(native string) Result
}

// ParameterExtractor returns the declared parameters of a build as a flat mapping.
type ParameterExtractor interface {
	Parameters(ctx context.Context, build Build) (map[string]string, error)
}
