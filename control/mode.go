// Package control runs the closed loop end to end: collect telemetry,
// analyze, plan, gate, verify and apply, with every tick recorded in the
// explain log, the decision trace and a report envelope.
package control

import "fmt"

// Mode is the operating mode of the controller.
type Mode string

const (
	// ModeObserveOnly analyzes and plans but never mutates the cluster.
	ModeObserveOnly Mode = "OBSERVE_ONLY"
	// ModeClosedLoop may apply gated changes.
	ModeClosedLoop Mode = "CLOSED_LOOP"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	return m == ModeObserveOnly || m == ModeClosedLoop
}

// StateMachine holds the current mode and permits only the
// OBSERVE_ONLY <-> CLOSED_LOOP transitions.
type StateMachine struct {
	current Mode
}

// NewStateMachine starts in the given mode, defaulting to OBSERVE_ONLY.
func NewStateMachine(initial Mode) (*StateMachine, error) {
	if initial == "" {
		initial = ModeObserveOnly
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("unknown mode %q", initial)
	}
	return &StateMachine{current: initial}, nil
}

// Current returns the active mode.
func (s *StateMachine) Current() Mode { return s.current }

// Transition moves to the target mode. Self-transitions are no-ops; unknown
// targets fail.
func (s *StateMachine) Transition(to Mode) error {
	if !to.Valid() {
		return fmt.Errorf("unknown mode %q", to)
	}
	s.current = to
	return nil
}
