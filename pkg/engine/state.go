package engine

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/graph"
)

// State is the lifecycle position of a run.
type State int

const (
	Idle State = iota
	Validated
	Scheduled
	Executing
	Completed
	Failed
)

var stateNames = map[State]string{
	Idle:      "idle",
	Validated: "validated",
	Scheduled: "scheduled",
	Executing: "executing",
	Completed: "completed",
	Failed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

var transitions = map[State][]State{
	Idle:      {Validated, Failed},
	Validated: {Scheduled, Failed},
	Scheduled: {Executing, Failed},
	Executing: {Completed, Failed},
}

// CanTransitionTo reports whether a run may move from s to next.
func (s State) CanTransitionTo(next State) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Run records one pipeline run.
type Run struct {
	ID        string
	Namespace string
	State     State
	StartedAt time.Time
	Schedule  *graph.Schedule
	Executed  []dataset.Coordinate
	Skipped   []dataset.Coordinate
	Err       error
}

func newRun(namespace string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		Namespace: namespace,
		State:     Idle,
		StartedAt: time.Now().UTC(),
	}
}

func (r *Run) transition(next State) error {
	if !r.State.CanTransitionTo(next) {
		return &TransitionError{From: r.State, To: next}
	}

	r.State = next

	return nil
}

func (r *Run) fail(err error) {
	r.Err = err
	if !r.State.Terminal() {
		r.State = Failed
	}
}
