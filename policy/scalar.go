package policy

import (
	"math"

	"github.com/trainguard/trainguard/analysis"
	"github.com/trainguard/trainguard/knobs"
)

// ScalarLevel maps a signal set to a severity level in [0,1] by taking the
// max over weighted signal truth values.
func ScalarLevel(signals analysis.SignalSet) float64 {
	level := 0.0
	if signals.Incident {
		level = math.Max(level, 0.5)
	}
	if signals.Drift {
		level = math.Max(level, 0.5)
	}
	if signals.Burst {
		level = math.Max(level, 0.75)
	}
	if signals.Straggler {
		level = math.Max(level, 1.0)
	}
	if signals.GPUSaturated {
		level = math.Max(level, 1.0)
	}
	return math.Min(1.0, level)
}

// ProposeScalar proposes a single concurrency decrease proportional to the
// severity level, clamped to the knob bounds. A clamped target equal to the
// current value is a no-op (empty list).
func ProposeScalar(signals analysis.SignalSet, registry *knobs.Registry) []Action {
	knob := registry.Get("concurrency")
	if knob == nil {
		return nil
	}

	u := ScalarLevel(signals)
	if u <= 0 {
		return nil
	}

	stepMult := int(math.Round(u * 4))
	if stepMult < 1 {
		stepMult = 1
	}
	target := knob.Clamp(knob.Value - stepMult*knob.Step)
	if target == knob.Value {
		return nil
	}
	return []Action{{Knob: "concurrency", Target: target, Reason: ReasonScalar, Chord: ChordScalar}}
}
