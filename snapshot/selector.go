package snapshot

import (
	"context"
	"fmt"
)

// Tier is a precedence class used during build resolution.
type Tier int

const (
	TierNone Tier = iota
	TierRunning
	TierQueued
	TierFinished
)

func (t Tier) String() string {
	switch t {
	case TierRunning:
		return "running"
	case TierQueued:
		return "queued"
	case TierFinished:
		return "finished"
	default:
		return "none"
	}
}

// Strategy resolves the build of a configuration that belongs to rootID within one tier.
type Strategy interface {
	Tier() Tier
	TryResolve(ctx context.Context, cfg Configuration, rootID string) (Build, bool, error)
}

// DefaultStrategies returns the running, queued and history strategies in precedence order.
func DefaultStrategies(host Host) []Strategy {
	return []Strategy{
		runningStrategy{host: host},
		queuedStrategy{host: host},
		historyStrategy{host: host},
	}
}

// Selection is the outcome of Selector.Select. Tier is TierNone when nothing matched.
type Selection struct {
	Tier  Tier
	Build Build
}

func (s Selection) Found() bool {
	return s.Tier != TierNone
}

// Selector applies strategies in order and returns the first match.
type Selector struct {
	strategies []Strategy
}

func NewSelector(strategies ...Strategy) Selector {
	return Selector{strategies: strategies}
}

func (s Selector) Select(ctx context.Context, cfg Configuration, rootID string) (Selection, error) {
	for _, strategy := range s.strategies {
		build, ok, err := strategy.TryResolve(ctx, cfg, rootID)
		if err != nil {
			return Selection{}, fmt.Errorf("resolve %s build of %s: %w", strategy.Tier(), cfg.ExternalID, err)
		}
		if ok {
			return Selection{Tier: strategy.Tier(), Build: build}, nil
		}
	}
	return Selection{}, nil
}

type runningStrategy struct {
	host Host
}

func (runningStrategy) Tier() Tier { return TierRunning }

func (r runningStrategy) TryResolve(ctx context.Context, cfg Configuration, rootID string) (Build, bool, error) {
	builds, err := r.host.RunningBuilds(ctx, cfg)
	if err != nil {
		return Build{}, false, err
	}
	build, ok := matchRoot(builds, cfg, rootID)
	return build, ok, nil
}

type queuedStrategy struct {
	host Host
}

func (queuedStrategy) Tier() Tier { return TierQueued }

func (q queuedStrategy) TryResolve(ctx context.Context, cfg Configuration, rootID string) (Build, bool, error) {
	inQueue, err := q.host.InQueue(ctx, cfg)
	if err != nil || !inQueue {
		return Build{}, false, err
	}
	builds, err := q.host.QueuedBuilds(ctx, cfg)
	if err != nil {
		return Build{}, false, err
	}
	// A root configuration queues itself once; its first queue entry is taken as is.
	if cfg.ID == rootID && len(builds) > 0 {
		return builds[0], true, nil
	}
	build, ok := matchRoot(builds, cfg, rootID)
	return build, ok, nil
}

type historyStrategy struct {
	host Host
}

func (historyStrategy) Tier() Tier { return TierFinished }

func (h historyStrategy) TryResolve(ctx context.Context, cfg Configuration, rootID string) (Build, bool, error) {
	builds, err := h.host.FinishedBuilds(ctx, cfg)
	if err != nil {
		return Build{}, false, err
	}
	build, ok := matchRoot(builds, cfg, rootID)
	return build, ok, nil
}

// matchRoot picks the first build attributable to rootID. For the root itself that is the first build
// not triggered by another configuration; for a dependency it is the first build linked to rootID.
func matchRoot(builds []Build, cfg Configuration, rootID string) (Build, bool) {
	isRoot := cfg.ID == rootID
	for _, build := range builds {
		link, linked := build.RootLink()
		if isRoot && !linked {
			return build, true
		}
		if !isRoot && linked && link == rootID {
			return build, true
		}
	}
	return Build{}, false
}
