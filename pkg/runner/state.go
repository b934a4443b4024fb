package runner

import "github.com/mufat/mufat/pkg/result"

// State is the lifecycle position of one run attempt.
type State int

const (
	StateSpawned State = iota
	StateRunning
	StateCompleted
	StateCrashed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCrashed:
		return "crashed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// finalState maps the outcome of a result to its terminal state.
func finalState(res *result.ChildResult) State {
	switch res.Outcome {
	case result.OutcomeTimedOut:
		return StateTimedOut
	case result.OutcomeCrashed:
		return StateCrashed
	default:
		return StateCompleted
	}
}
