package snapshot

import (
	"context"
	"fmt"
)

// millisPerNativeUnit scales host durations (seconds) to the snapshot's milliseconds.
const millisPerNativeUnit = 1000

// NodeBuilder turns the selected build of a configuration into a snapshot node.
type NodeBuilder struct {
	selector   Selector
	outcomes   OutcomeMapper
	parameters ParameterExtractor
}

func NewNodeBuilder(selector Selector, outcomes OutcomeMapper, parameters ParameterExtractor) NodeBuilder {
	if outcomes == nil {
		outcomes = DefaultOutcomeMapper{}
	}
	return NodeBuilder{
		selector:   selector,
		outcomes:   outcomes,
		parameters: parameters,
	}
}

// Build always yields a node; an unresolved configuration becomes an unavailable placeholder.
// Errors are returned only when the host registries fail.
func (b NodeBuilder) Build(ctx context.Context, cfg Configuration, rootID string) (Node, error) {
	selection, err := b.selector.Select(ctx, cfg, rootID)
	if err != nil {
		return Node{}, err
	}

	switch selection.Tier {
	case TierRunning:
		return b.runningNode(ctx, cfg, selection.Build)
	case TierQueued:
		return queuedNode(cfg, selection.Build), nil
	case TierFinished:
		return b.finishedNode(ctx, cfg, selection.Build)
	default:
		return unavailableNode(cfg), nil
	}
}

func (b NodeBuilder) runningNode(ctx context.Context, cfg Configuration, build Build) (Node, error) {
	params, err := b.extractParameters(ctx, build)
	if err != nil {
		return Node{}, err
	}
	return Node{
		JobID:             cfg.ExternalID,
		BuildID:           build.ID,
		Name:              cfg.Name,
		Number:            build.Number,
		Status:            StatusRunning,
		Result:            ResultUnavailable,
		StartTime:         startMillis(build),
		Duration:          millis(build.DurationSeconds),
		EstimatedDuration: millis(build.EstimatedDurationSeconds),
		Parameters:        params,
	}, nil
}

func queuedNode(cfg Configuration, build Build) Node {
	return Node{
		JobID:   cfg.ExternalID,
		BuildID: build.QueueItemID,
		Name:    cfg.Name,
		Status:  StatusQueued,
		Result:  ResultUnavailable,
	}
}

func (b NodeBuilder) finishedNode(ctx context.Context, cfg Configuration, build Build) (Node, error) {
	params, err := b.extractParameters(ctx, build)
	if err != nil {
		return Node{}, err
	}
	// Finished builds have no separate estimate; the actual duration stands in for it.
	return Node{
		JobID:             cfg.ExternalID,
		BuildID:           build.ID,
		Name:              cfg.ExtendedName(),
		Number:            build.Number,
		Status:            StatusFinished,
		Result:            b.outcomes.MapOutcome(build.Outcome),
		StartTime:         startMillis(build),
		Duration:          millis(build.DurationSeconds),
		EstimatedDuration: millis(build.DurationSeconds),
		Parameters:        params,
	}, nil
}

func unavailableNode(cfg Configuration) Node {
	return Node{
		JobID:  cfg.ExternalID,
		Name:   cfg.ExtendedName(),
		Status: StatusUnavailable,
		Result: ResultUnavailable,
	}
}

func (b NodeBuilder) extractParameters(ctx context.Context, build Build) (map[string]string, error) {
	if b.parameters == nil {
		return nil, nil
	}
	params, err := b.parameters.Parameters(ctx, build)
	if err != nil {
		return nil, fmt.Errorf("extract parameters of build %s: %w", build.ID, err)
	}
	return params, nil
}

func millis(seconds int64) *int64 {
	value := seconds * millisPerNativeUnit
	return &value
}

func startMillis(build Build) *int64 {
	if build.StartedAt.IsZero() {
		return nil
	}
	value := build.StartedAt.UnixMilli()
	return &value
}
