package stream

import "github.com/pkg/errors"

// State is the orchestrator lifecycle state. One enumerated value replaces
// the done/cancelling/cancelled flag combinations so that illegal mixes are
// unrepresentable.
type State int

const (
	// StateAccepting accepts source signals and drains batches.
	StateAccepting State = iota
	// StateDraining means the source is exhausted but the batch backlog is not.
	StateDraining
	// StateFinalizing means the backlog is clear and finalize steps are pending.
	StateFinalizing
	// StateDone is the normal terminal state.
	StateDone
	// StateCancelling means cancellation was requested and pending finalize
	// steps are flushing.
	StateCancelling
	// StateCancelled is the cancelled terminal state.
	StateCancelled
)

// String returns the string representation.
func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateCancelling:
		return "cancelling"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

var validTransitions = map[State][]State{
	StateAccepting:  {StateDraining, StateFinalizing, StateDone, StateCancelling},
	StateDraining:   {StateFinalizing, StateDone, StateCancelling},
	StateFinalizing: {StateDone, StateCancelling},
	StateCancelling: {StateCancelled},
}

// transitionTo validates the transition and returns the new state.
func (s State) transitionTo(next State) (State, error) {
	if s == next {
		return s, nil
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, errors.Errorf("illegal state transition %s -> %s", s, next)
}
