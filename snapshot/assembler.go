package snapshot

import (
	"context"
	"log/slog"
)

// Option customizes an Assembler.
type Option func(*Assembler)

// WithStrictCycles fails assembly with ErrDependencyCycle instead of truncating cyclic edges.
func WithStrictCycles() Option {
	return func(a *Assembler) { a.strict = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) { a.logger = logger }
}

func WithCycleObserver(observer CycleObserver) Option {
	return func(a *Assembler) { a.observer = observer }
}

// WithStrategies replaces the default running, queued, history precedence.
func WithStrategies(strategies ...Strategy) Option {
	return func(a *Assembler) { a.strategies = strategies }
}

// Assembler builds the snapshot tree of a configuration and its upstream dependencies.
// It holds no mutable state and is safe for concurrent use.
type Assembler struct {
	host       Host
	walker     Walker
	builder    NodeBuilder
	strategies []Strategy
	strict     bool
	logger     *slog.Logger
	observer   CycleObserver
}

func NewAssembler(host Host, outcomes OutcomeMapper, parameters ParameterExtractor, opts ...Option) *Assembler {
	a := &Assembler{host: host}
	for _, opt := range opts {
		opt(a)
	}
	if a.strategies == nil {
		a.strategies = DefaultStrategies(host)
	}
	a.builder = NewNodeBuilder(NewSelector(a.strategies...), outcomes, parameters)
	a.walker = NewWalker(host, a.builder).
		Strict(a.strict).
		WithLogger(a.logger).
		WithCycleObserver(a.observer)
	return a
}

// Assemble builds the snapshot of the configuration with the given external id, using the
// configuration itself as the root. The error matches ErrConfigurationNotFound when the id is unknown.
func (a *Assembler) Assemble(ctx context.Context, externalID string) (Node, error) {
	return a.AssembleForRoot(ctx, externalID, "")
}

// AssembleForRoot is Assemble with an explicit root id; an empty rootID means the configuration's own id.
func (a *Assembler) AssembleForRoot(ctx context.Context, externalID, rootID string) (Node, error) {
	cfg, err := a.host.FindConfiguration(ctx, externalID)
	if err != nil {
		return Node{}, err
	}
	if rootID == "" {
		rootID = cfg.ID
	}

	root, err := a.builder.Build(ctx, cfg, rootID)
	if err != nil {
		return Node{}, err
	}

	deps, err := a.walker.WalkFrom(ctx, cfg, rootID)
	if err != nil {
		return Node{}, err
	}
	if len(deps) > 0 {
		root.PhasesPostBuild = []Phase{{
			Name:     DependenciesPhase,
			Blocking: true,
			Builds:   deps,
		}}
	}
	return root, nil
}
