// Package telemetry defines the telemetry sample model and the sources
// that produce samples for one evaluation window: a synthetic scenario
// generator and a JSONL/CSV file reader.
package telemetry

// Sample is a single telemetry observation from a running training workload.
// Pointer fields are optional — nil means "not reported by the source".
// Samples are immutable once created.
type Sample struct {
	TimestampMS       int64     `json:"timestamp_ms"`
	Loss              *float64  `json:"loss,omitempty"`
	LatencyMS         float64   `json:"latency_ms"`
	Throughput        float64   `json:"throughput"`
	WorkerLatenciesMS []float64 `json:"worker_latencies_ms"`
	Step              *int64    `json:"step,omitempty"`
	Node              string    `json:"node,omitempty"`
	GPUModel          string    `json:"gpu_model,omitempty"`
	GPUUtilPct        *float64  `json:"gpu_util_pct,omitempty"`
	GPUMemUtilPct     *float64  `json:"gpu_mem_util_pct,omitempty"`
}

// Source produces the telemetry samples for one evaluation window.
type Source interface {
	Read() ([]Sample, error)
}
