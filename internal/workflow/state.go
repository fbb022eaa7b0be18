// Package workflow holds the review lifecycle state machine and its store.
package workflow

import "fmt"

type State string

const (
	Pending       State = "PENDING"
	AutoReplied   State = "AUTO_REPLIED"
	ManualPending State = "MANUAL_PENDING"
	Escalated     State = "ESCALATED"
	Completed     State = "COMPLETED"
)

// transitions is the full edge set; anything absent is illegal.
var transitions = map[State][]State{
	Pending:       {AutoReplied, ManualPending, Completed},
	AutoReplied:   {Completed},
	ManualPending: {Completed, Escalated},
	Escalated:     {Completed},
	Completed:     {ManualPending},
}

func AllStates() []State {
	return []State{Pending, AutoReplied, ManualPending, Escalated, Completed}
}

func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w %q", ErrUnknownState, s)
	}
	return st, nil
}

func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s State) String() string { return string(s) }

// Next returns the states reachable from s in one step.
func (s State) Next() []State {
	next := transitions[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
