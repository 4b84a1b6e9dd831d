package telemetry

import (
	"math"
	"math/rand"
)

// Scenario names accepted by SyntheticSource.
const (
	ScenarioStable    = "stable"
	ScenarioDrift     = "drift"
	ScenarioBurst     = "burst"
	ScenarioStraggler = "straggler"
	ScenarioGPU       = "gpu"
)

// SyntheticSource generates a deterministic telemetry window for a named
// scenario. The same seed always produces the same samples.
type SyntheticSource struct {
	Scenario         string
	DurationMS       int64
	Seed             int64 // defaults to 42 when zero
	SampleIntervalMS int64 // defaults to 1000 when zero
}

// Read generates the scenario window.
func (s *SyntheticSource) Read() ([]Sample, error) {
	seed := s.Seed
	if seed == 0 {
		seed = 42
	}
	interval := s.SampleIntervalMS
	if interval <= 0 {
		interval = 1000
	}
	rng := rand.New(rand.NewSource(seed))

	steps := s.DurationMS / interval
	if steps < 1 {
		steps = 1
	}
	samples := make([]Sample, 0, steps)
	for i := int64(0); i < steps; i++ {
		fi := float64(i)
		baseLoss := 1.0 + 0.05*math.Sin(fi/5.0)
		baseLatency := 120.0 + 10.0*math.Sin(fi/7.0)
		baseThroughput := 1000.0 + 30.0*math.Cos(fi/6.0)

		loss := baseLoss + uniform(rng, -0.02, 0.02)
		latency := baseLatency + uniform(rng, -5.0, 5.0)
		throughput := baseThroughput + uniform(rng, -20.0, 20.0)

		switch {
		case s.Scenario == ScenarioDrift:
			loss += (fi / float64(steps)) * 0.6
		case s.Scenario == ScenarioBurst && fi > float64(steps)*0.6:
			latency *= 1.8
		}

		workers := make([]float64, 4)
		for w := range workers {
			workers[w] = latency + uniform(rng, -5.0, 5.0)
		}
		if s.Scenario == ScenarioStraggler && fi > float64(steps)*0.4 {
			workers[len(workers)-1] *= 2.2
		}

		sample := Sample{
			TimestampMS:       i * interval,
			Loss:              &loss,
			LatencyMS:         latency,
			Throughput:        throughput,
			WorkerLatenciesMS: workers,
		}
		if s.Scenario == ScenarioGPU && fi > float64(steps)*0.5 {
			util := 95.0 + uniform(rng, -2.0, 2.0)
			sample.GPUUtilPct = &util
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
