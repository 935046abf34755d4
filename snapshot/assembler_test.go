package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestAssembleUnknownConfiguration(t *testing.T) {
	host := newFakeHost()
	_, err := NewAssembler(host, nil, host).Assemble(context.Background(), "missing")
	if !errors.Is(err, ErrConfigurationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssembleRootWithoutBuildsOrDependencies(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")

	node, err := NewAssembler(host, nil, host).Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if node.Status != StatusUnavailable || node.Result != ResultUnavailable {
		t.Fatalf("expected unavailable/unavailable, got %s/%s", node.Status, node.Result)
	}
	if node.Name != "Project :: Root" {
		t.Fatalf("expected extended name, got %q", node.Name)
	}
	if len(node.PhasesPostBuild) != 0 {
		t.Fatalf("expected no phases, got %d", len(node.PhasesPostBuild))
	}
}

func TestAssembleFinishedDependency(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	host.add("D", "Deploy")
	host.dependsOn("R", "D")
	host.finished["D"] = []Build{{
		ID:              "100",
		Number:          "12",
		StartedAt:       time.Unix(1700000000, 0),
		DurationSeconds: 10,
		Trigger:         linkedTo("R"),
		Outcome:         "SUCCESS",
	}}

	node, err := NewAssembler(host, nil, host).Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(node.PhasesPostBuild) != 1 {
		t.Fatalf("expected one phase, got %d", len(node.PhasesPostBuild))
	}
	phase := node.PhasesPostBuild[0]
	if phase.Name != DependenciesPhase || !phase.Blocking {
		t.Fatalf("unexpected phase %q blocking=%v", phase.Name, phase.Blocking)
	}
	if len(phase.Builds) != 1 {
		t.Fatalf("expected one dependency node, got %d", len(phase.Builds))
	}
	dep := phase.Builds[0]
	if dep.Status != StatusFinished || dep.Result != ResultSuccess {
		t.Fatalf("expected finished/success, got %s/%s", dep.Status, dep.Result)
	}
	if *dep.Duration != 10000 || *dep.EstimatedDuration != 10000 {
		t.Fatalf("expected 10000/10000, got %d/%d", *dep.Duration, *dep.EstimatedDuration)
	}
}

func TestAssembleRunningRootBeatsHistory(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	host.running["R"] = []Build{{ID: "2", Trigger: map[string]string{"user": "bob"}, DurationSeconds: 3}}
	host.finished["R"] = []Build{{ID: "1", Outcome: "SUCCESS"}}

	node, err := NewAssembler(host, nil, host).Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if node.Status != StatusRunning {
		t.Fatalf("expected running root, got %s", node.Status)
	}
	if node.BuildID != "2" {
		t.Fatalf("expected running build 2, got %s", node.BuildID)
	}
}

func TestAssemblePhaseHoldsWholeTraversal(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		host.add(id, id)
	}
	host.dependsOn("R", "A", "B")
	host.dependsOn("A", "C", "D")
	host.dependsOn("D", "E")
	host.dependsOn("B", "E")

	node, err := NewAssembler(host, nil, host).Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// A, C, D, E, B, E
	if got := len(node.PhasesPostBuild[0].Builds); got != 6 {
		t.Fatalf("expected 6 nodes, got %d", got)
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	host.add("A", "A")
	host.add("B", "B")
	host.dependsOn("R", "A")
	host.dependsOn("A", "B")
	host.running["A"] = []Build{{ID: "a1", StartedAt: time.Unix(1700000100, 0), DurationSeconds: 4, Trigger: linkedTo("R")}}
	host.queued["B"] = []Build{{ID: "b1", QueueItemID: "q-b1", Trigger: linkedTo("R")}}
	host.params["a1"] = map[string]string{"branch": "main"}

	assembler := NewAssembler(host, nil, host)
	first, err := assembler.Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("first assemble: %v", err)
	}
	second, err := assembler.Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("second assemble: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("snapshots differ (-first +second):\n%s", diff)
	}
}

func TestAssembleForExplicitRoot(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	host.add("D", "Deploy")
	host.dependsOn("D", "R")
	host.finished["R"] = []Build{
		{ID: "own", Outcome: "SUCCESS"},
		{ID: "for-d", Trigger: linkedTo("D"), Outcome: "FAILURE"},
	}

	node, err := NewAssembler(host, nil, host).AssembleForRoot(context.Background(), "Ext_R", "D")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if node.BuildID != "for-d" || node.Result != ResultFailure {
		t.Fatalf("expected build triggered by D, got %s/%s", node.BuildID, node.Result)
	}
}

func TestAssembleStrictCycles(t *testing.T) {
	host := newFakeHost()
	host.add("R", "Root")
	host.add("A", "A")
	host.dependsOn("R", "A")
	host.dependsOn("A", "R")

	_, err := NewAssembler(host, nil, host, WithStrictCycles()).Assemble(context.Background(), "Ext_R")
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}

	observer := &countingObserver{}
	node, err := NewAssembler(host, nil, host, WithCycleObserver(observer)).Assemble(context.Background(), "Ext_R")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(node.PhasesPostBuild[0].Builds) != 1 || observer.cycles != 1 {
		t.Fatalf("expected truncated cycle, got %d nodes and %d cycles", len(node.PhasesPostBuild[0].Builds), observer.cycles)
	}
}
