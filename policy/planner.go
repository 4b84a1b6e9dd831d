package policy

import (
	"errors"
	"fmt"

	"github.com/trainguard/trainguard/analysis"
	"github.com/trainguard/trainguard/knobs"
)

// Safe chord ids, v1.
const (
	ChordNormalHold     = "NORMAL-HOLD"
	ChordDriftRetune    = "DRIFT-RETUNE"
	ChordBurstAbsorb    = "BURST-ABSORB"
	ChordInputStraggler = "INPUT-STRAGGLER"
	ChordRecoverRelock  = "RECOVER-RELOCK"
	ChordScalar         = "SCALAR"
	// ChordTimeoutGuard carries the higher-risk timeout raise that accompanies
	// the straggler chord under a separate id.
	ChordTimeoutGuard = "TIMEOUT-GUARD"
)

// Policy names accepted by Propose.
const (
	PolicyChord  = "chord"
	PolicyScalar = "scalar"
)

// ErrObserveRequired is returned when a stateful plan is requested before
// the planner state has observed the current tick's signals.
var ErrObserveRequired = errors.New("planner state has not observed signals for this tick")

// PlannerState sequences the incident -> recover -> relock protocol across
// evaluation ticks. Observe must be called exactly once per tick before Plan.
// Lifetime is one control-loop run; the zero value plus a
// StableIntervalsRequired is ready to use.
type PlannerState struct {
	StableIntervalsRequired int

	incidentSeen     bool
	stableIntervals  int
	recoverCompleted bool
	observed         bool
}

// Observe folds one tick's signals into the state: an incident resets the
// stability counter and the recover flag; a quiet tick after an incident
// increments the counter.
func (s *PlannerState) Observe(signals analysis.SignalSet) {
	s.observed = true
	if signals.Incident {
		s.incidentSeen = true
		s.stableIntervals = 0
		s.recoverCompleted = false
		return
	}
	if s.incidentSeen {
		s.stableIntervals++
	}
}

// RelockReady reports whether the relock transition may be suggested.
func (s *PlannerState) RelockReady() bool {
	required := s.StableIntervalsRequired
	if required < 1 {
		required = 1
	}
	return s.incidentSeen && s.recoverCompleted && s.stableIntervals >= required
}

// MarkRecovered records that the recover step completed for the current
// incident. A no-op when no incident has been seen.
func (s *PlannerState) MarkRecovered() {
	if s.incidentSeen {
		s.recoverCompleted = true
	}
}

// MarkRelocked resets the state after a completed relock.
func (s *PlannerState) MarkRelocked() {
	s.incidentSeen = false
	s.stableIntervals = 0
	s.recoverCompleted = false
}

// Plan emits the action list for the observed tick. It fails with
// ErrObserveRequired if Observe has not run since the previous Plan, and
// consumes the observation on success.
func (s *PlannerState) Plan(signals analysis.SignalSet) ([]Action, error) {
	if !s.observed {
		return nil, ErrObserveRequired
	}
	s.observed = false

	// A dedicated recover step once the incident clears.
	if s.incidentSeen && !signals.Incident && !s.recoverCompleted {
		return Chord{ID: ChordRecoverRelock, Actions: []Action{
			{Knob: RecoverKnob, Reason: ReasonRecover},
		}}.Expand(), nil
	}
	// Relock only after stabilization and a completed recover.
	if s.RelockReady() {
		return Chord{ID: ChordRecoverRelock, Actions: []Action{
			{Knob: RelockKnob, Reason: ReasonRelock},
		}}.Expand(), nil
	}
	return chordActions(signals), nil
}

// chordActions maps true signals to their fixed-shape chords, in a fixed
// emission order so identical signals always produce identical output.
func chordActions(signals analysis.SignalSet) []Action {
	var actions []Action

	if signals.GPUSaturated {
		actions = append(actions, Chord{ID: ChordBurstAbsorb, Actions: []Action{
			{Knob: "microbatch_size", Target: 16, Reason: ReasonGPUSaturated},
		}}.Expand()...)
	}

	if signals.Drift {
		stability := []Action{{Knob: "grad_accum_steps", Target: 8, Reason: ReasonDrift}}
		// Under GPU saturation the microbatch was already reduced above;
		// do not inflate it back to 32.
		if !signals.GPUSaturated {
			stability = append(stability, Action{Knob: "microbatch_size", Target: 32, Reason: ReasonDrift})
		}
		actions = append(actions, Chord{ID: ChordDriftRetune, Actions: stability}.Expand()...)
	}

	if signals.Burst {
		actions = append(actions, Chord{ID: ChordBurstAbsorb, Actions: []Action{
			{Knob: "dataloader_prefetch_factor", Target: 2, Reason: ReasonBurst},
			{Knob: "concurrency", Target: 4, Reason: ReasonBurst},
		}}.Expand()...)
	}

	if signals.Straggler {
		actions = append(actions, Chord{ID: ChordInputStraggler, Actions: []Action{
			{Knob: "dataloader_num_workers", Target: 2, Reason: ReasonStraggler},
		}}.Expand()...)
		actions = append(actions, Action{
			Knob: "timeout_ms", Target: 15000, Reason: ReasonStraggler, Chord: ChordTimeoutGuard,
		})
	}

	return actions
}

// Propose runs the named policy without planner state. The chord policy is
// a pure function of the signals; the scalar policy also needs the registry.
func Propose(signals analysis.SignalSet, policy string, registry *knobs.Registry) ([]Action, error) {
	switch policy {
	case PolicyChord:
		return chordActions(signals), nil
	case PolicyScalar:
		if registry == nil {
			return nil, fmt.Errorf("policy %q requires a knob registry", policy)
		}
		return ProposeScalar(signals, registry), nil
	default:
		return nil, fmt.Errorf("unknown policy: %q (expected %q or %q)", policy, PolicyChord, PolicyScalar)
	}
}
