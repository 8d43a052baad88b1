package console

import (
	"fmt"
	"log/slog"
	"slices"
)

// State is the lifecycle state of a console session.
type State string

const (
	Unsynchronized State = "unsynchronized"
	Synchronized   State = "synchronized"
	Executing      State = "executing"
	Completed      State = "completed"
	Failed         State = "failed"
)

var transitions = map[State][]State{
	Unsynchronized: {Synchronized, Failed},
	Synchronized:   {Executing},
	Executing:      {Completed, Failed},
}

// TransitionError reports a transition the lifecycle does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// Machine tracks the session state. It starts Unsynchronized.
type Machine struct {
	state State
}

// NewMachine returns a machine in the Unsynchronized state.
func NewMachine() *Machine {
	return &Machine{state: Unsynchronized}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Done reports whether the session reached a terminal state.
func (m *Machine) Done() bool {
	return m.state == Completed || m.state == Failed
}

// Advance moves to the given state.
func (m *Machine) Advance(to State) error {
	if !slices.Contains(transitions[m.state], to) {
		return &TransitionError{From: m.state, To: to}
	}
	slog.Debug("session_state", "from", m.state, "to", to)
	m.state = to
	return nil
}
