package runtime

import (
	"fmt"
	"strings"
)

// Phase is the macro state of a team run.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseExecuting   Phase = "executing"
	PhaseReconciling Phase = "reconciling"
	PhaseAwaitUser   Phase = "await_user"
	PhaseFailed      Phase = "failed"
	PhaseCompleted   Phase = "completed"
)

// transitions is the fixed phase table. failed and completed are terminal.
var transitions = map[Phase][]Phase{
	PhasePlanning:    {PhaseExecuting, PhaseAwaitUser, PhaseFailed},
	PhaseExecuting:   {PhaseReconciling, PhaseAwaitUser, PhaseFailed},
	PhaseReconciling: {PhasePlanning, PhaseAwaitUser, PhaseFailed, PhaseCompleted},
	PhaseAwaitUser:   {PhasePlanning, PhaseFailed},
	PhaseFailed:      {},
	PhaseCompleted:   {},
}

// AllowedTransitions returns the phases reachable from p, in table order.
func AllowedTransitions(p Phase) []Phase {
	return append([]Phase(nil), transitions[p]...)
}

// CanTransition reports whether from -> to is a legal phase change.
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether p has no outgoing transitions.
func IsTerminal(p Phase) bool {
	return p == PhaseFailed || p == PhaseCompleted
}

// AssertTransition returns a descriptive error when from -> to is illegal.
func AssertTransition(from, to Phase) error {
	if CanTransition(from, to) {
		return nil
	}

	allowed := "none (terminal phase)"
	if next := transitions[from]; len(next) > 0 {
		parts := make([]string, len(next))
		for i, p := range next {
			parts[i] = string(p)
		}
		allowed = strings.Join(parts, ", ")
	}
	return fmt.Errorf("invalid runtime phase transition: %q -> %q. allowed transitions from %q: %s",
		from, to, from, allowed)
}

// PhaseMachine holds the current phase of a run and enforces the transition
// table on every change.
type PhaseMachine struct {
	current Phase
}

// NewPhaseMachine starts a machine at initial, defaulting to planning when
// initial is empty.
func NewPhaseMachine(initial Phase) *PhaseMachine {
	if initial == "" {
		initial = PhasePlanning
	}
	return &PhaseMachine{current: initial}
}

// Current returns the machine's phase.
func (m *PhaseMachine) Current() Phase {
	return m.current
}

// TransitionTo applies a validated phase change and returns the new phase.
// On an illegal transition the machine is left unchanged.
func (m *PhaseMachine) TransitionTo(next Phase) (Phase, error) {
	if err := AssertTransition(m.current, next); err != nil {
		return m.current, err
	}
	m.current = next
	return m.current, nil
}

// IsTerminal reports whether the machine has reached failed or completed.
func (m *PhaseMachine) IsTerminal() bool {
	return IsTerminal(m.current)
}

// AllowedTransitions returns the phases reachable from the current phase.
func (m *PhaseMachine) AllowedTransitions() []Phase {
	return AllowedTransitions(m.current)
}
