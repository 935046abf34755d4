package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDependencyCycle is returned by a strict walker when a dependency edge closes a cycle.
var ErrDependencyCycle = errors.New("snapshot: dependency cycle")

// CycleObserver is notified about every edge the walker truncates.
type CycleObserver interface {
	IncDependencyCycle()
}

// Walker flattens a dependency graph into a pre-order list of nodes.
type Walker struct {
	host     Host
	builder  NodeBuilder
	strict   bool
	logger   *slog.Logger
	observer CycleObserver
}

func NewWalker(host Host, builder NodeBuilder) Walker {
	return Walker{host: host, builder: builder}
}

// Strict makes the walker fail on cycles instead of truncating the closing edge.
func (w Walker) Strict(strict bool) Walker {
	w.strict = strict
	return w
}

func (w Walker) WithLogger(logger *slog.Logger) Walker {
	w.logger = logger
	return w
}

func (w Walker) WithCycleObserver(observer CycleObserver) Walker {
	w.observer = observer
	return w
}

// Walk emits, for each edge, the dependency's node followed by the flattened walk of that
// dependency's own edges. Every node is resolved against rootID.
func (w Walker) Walk(ctx context.Context, edges []Configuration, rootID string) ([]Node, error) {
	return w.walk(ctx, edges, rootID, map[string]bool{})
}

// WalkFrom walks the declared dependencies of parent, treating parent as already on the path.
func (w Walker) WalkFrom(ctx context.Context, parent Configuration, rootID string) ([]Node, error) {
	edges, err := w.host.Dependencies(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("dependencies of %s: %w", parent.ExternalID, err)
	}
	return w.walk(ctx, edges, rootID, map[string]bool{parent.ID: true})
}

func (w Walker) walk(ctx context.Context, edges []Configuration, rootID string, onPath map[string]bool) ([]Node, error) {
	var nodes []Node
	for _, dep := range edges {
		if onPath[dep.ID] {
			if w.strict {
				return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, dep.ExternalID)
			}
			w.truncated(dep, rootID)
			continue
		}

		node, err := w.builder.Build(ctx, dep, rootID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)

		children, err := w.host.Dependencies(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("dependencies of %s: %w", dep.ExternalID, err)
		}
		if len(children) == 0 {
			continue
		}

		onPath[dep.ID] = true
		nested, err := w.walk(ctx, children, rootID, onPath)
		delete(onPath, dep.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, nested...)
	}
	return nodes, nil
}

func (w Walker) truncated(dep Configuration, rootID string) {
	if w.logger != nil {
		w.logger.Warn("dependency cycle truncated", "event", "dependency_cycle", "job_id", dep.ExternalID, "root_id", rootID)
	}
	if w.observer != nil {
		w.observer.IncDependencyCycle()
	}
}
