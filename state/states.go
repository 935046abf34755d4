package state

import (
	"errors"
	"fmt"
)

type BuildState string

const (
	BuildStateQueued   BuildState = "QUEUED"
	BuildStateRunning  BuildState = "RUNNING"
	BuildStateFinished BuildState = "FINISHED"
)

// Builds can leave the queue without running when they are canceled.
var buildTransitions = map[BuildState][]BuildState{
	BuildStateQueued:   {BuildStateQueued, BuildStateRunning, BuildStateFinished},
	BuildStateRunning:  {BuildStateRunning, BuildStateFinished},
	BuildStateFinished: {BuildStateFinished},
}

// Outcome is the host's native result code of a finished build.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeFailure  Outcome = "FAILURE"
	OutcomeError    Outcome = "ERROR"
	OutcomeUnstable Outcome = "UNSTABLE"
	OutcomeCanceled Outcome = "CANCELED"
	OutcomeUnknown  Outcome = "UNKNOWN"
)

var knownOutcomes = map[Outcome]struct{}{
	OutcomeSuccess:  {},
	OutcomeFailure:  {},
	OutcomeError:    {},
	OutcomeUnstable: {},
	OutcomeCanceled: {},
	OutcomeUnknown:  {},
}

// TransitionError signals an illegal state transition detected in the persistence layer.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s %s: invalid transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// UnknownStateError signals a state value that is not part of the documented state machine.
type UnknownStateError struct {
	Entity string
	State  string
}

func (e UnknownStateError) Error() string {
	return fmt.Sprintf("%s: unknown state %q", e.Entity, e.State)
}

func validateBuildTransition(id string, from, to BuildState) error {
	allowed, ok := buildTransitions[from]
	if !ok {
		return UnknownStateError{Entity: "build", State: string(from)}
	}
	if _, ok := buildTransitions[to]; !ok {
		return UnknownStateError{Entity: "build", State: string(to)}
	}
	for _, candidate := range allowed {
		if candidate == to {
			return nil
		}
	}
	return TransitionError{Entity: "build", ID: id, From: string(from), To: string(to)}
}

// validateBuildProgress is validateBuildTransition without self-edges. Starting a running build or
// finishing a finished one would overwrite recorded history.
func validateBuildProgress(id string, from, to BuildState) error {
	if from == to {
		if _, ok := buildTransitions[from]; ok {
			return TransitionError{Entity: "build", ID: id, From: string(from), To: string(to)}
		}
	}
	return validateBuildTransition(id, from, to)
}

// Valid reports whether the outcome is one of the known native codes.
func (o Outcome) Valid() bool {
	_, ok := knownOutcomes[o]
	return ok
}

func validateOutcome(outcome Outcome) error {
	if !outcome.Valid() {
		return UnknownStateError{Entity: "outcome", State: string(outcome)}
	}
	return nil
}

func IsTransitionError(err error) bool {
	var te TransitionError
	return errors.As(err, &te)
}

func IsUnknownStateError(err error) bool {
	var ue UnknownStateError
	return errors.As(err, &ue)
}
