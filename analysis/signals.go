// Package analysis derives operational signals from a telemetry window.
// It is pure and deterministic: the same samples always produce the same
// SignalSet.
package analysis

import (
	"sort"

	"github.com/trainguard/trainguard/telemetry"
)

// Signal notes, in the order they are appended to SignalSet.Notes.
const (
	NoteNoSamples         = "no_samples"
	NoteLossDrift         = "loss_drift"
	NoteLossMissing       = "loss_missing"
	NoteLatencyBurst      = "latency_burst"
	NoteStragglerDetected = "straggler_detected"
	NoteGPUSaturated      = "gpu_saturated"
)

// Detection thresholds.
const (
	driftRatio       = 1.15
	burstRatio       = 1.5
	stragglerRatio   = 1.6
	gpuSaturationPct = 90.0
)

// SignalSet is the closed set of signals derived per evaluation window.
// Incident is the disjunction of the four condition signals; Stable is its
// negation. A SignalSet is derived fresh per window and never persisted.
type SignalSet struct {
	Drift        bool     `json:"drift"`
	Burst        bool     `json:"burst"`
	Straggler    bool     `json:"straggler"`
	GPUSaturated bool     `json:"gpu_saturated"`
	Incident     bool     `json:"incident"`
	Stable       bool     `json:"stable"`
	Notes        []string `json:"notes"`
}

// Analyze derives the signal set for one telemetry window.
// An empty window yields all-false signals, stable=true and a no_samples note.
func Analyze(samples []telemetry.Sample) SignalSet {
	if len(samples) == 0 {
		return SignalSet{Stable: true, Notes: []string{NoteNoSamples}}
	}

	var losses []float64
	latencies := make([]float64, 0, len(samples))
	workerMax := make([]float64, 0, len(samples))
	workerMed := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Loss != nil {
			losses = append(losses, *s.Loss)
		}
		latencies = append(latencies, s.LatencyMS)
		workers := s.WorkerLatenciesMS
		if len(workers) == 0 {
			workers = []float64{s.LatencyMS}
		}
		workerMax = append(workerMax, maxOf(workers))
		workerMed = append(workerMed, median(workers))
	}

	// Drift compares the first-quarter loss mean to the last-quarter mean,
	// each sub-window at least one sample wide.
	drift := false
	if len(losses) > 0 {
		q := len(losses) / 4
		if q < 1 {
			q = 1
		}
		drift = mean(losses[len(losses)-q:]) > mean(losses[:q])*driftRatio
	}

	burst := maxOf(latencies) > median(latencies)*burstRatio
	straggler := mean(workerMax) > mean(workerMed)*stragglerRatio

	gpuSaturated := false
	for _, s := range samples {
		if s.GPUUtilPct != nil && *s.GPUUtilPct >= gpuSaturationPct {
			gpuSaturated = true
		}
		if s.GPUMemUtilPct != nil && *s.GPUMemUtilPct >= gpuSaturationPct {
			gpuSaturated = true
		}
	}

	notes := []string{}
	if drift {
		notes = append(notes, NoteLossDrift)
	} else if len(losses) == 0 {
		notes = append(notes, NoteLossMissing)
	}
	if burst {
		notes = append(notes, NoteLatencyBurst)
	}
	if straggler {
		notes = append(notes, NoteStragglerDetected)
	}
	if gpuSaturated {
		notes = append(notes, NoteGPUSaturated)
	}

	incident := drift || burst || straggler || gpuSaturated
	return SignalSet{
		Drift:        drift,
		Burst:        burst,
		Straggler:    straggler,
		GPUSaturated: gpuSaturated,
		Incident:     incident,
		Stable:       !incident,
		Notes:        notes,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
