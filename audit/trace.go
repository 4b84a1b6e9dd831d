package audit

// DecisionTraceSchemaVersion tags decision trace events.
const DecisionTraceSchemaVersion = "decision_trace_event.v0"

// TraceSignals is the signal snapshot embedded in a trace event.
type TraceSignals struct {
	Drift        bool     `json:"drift"`
	Burst        bool     `json:"burst"`
	Straggler    bool     `json:"straggler"`
	GPUSaturated bool     `json:"gpu_saturated"`
	Incident     bool     `json:"incident"`
	Notes        []string `json:"notes"`
}

// TraceChord identifies the chord(s) behind a tick's proposals.
// ID is a single chord id, "multi" (with Members), or "none".
type TraceChord struct {
	ID      string   `json:"id"`
	Members []string `json:"members,omitempty"`
}

// TraceAction is one proposed action as recorded in the trace.
type TraceAction struct {
	Knob   string `json:"knob"`
	Target int    `json:"target"`
	Reason string `json:"reason"`
	Chord  string `json:"chord,omitempty"`
}

// TraceResults summarizes the tick's gating outcome.
type TraceResults struct {
	ApplyRequested   bool           `json:"apply_requested"`
	DryRun           bool           `json:"dry_run"`
	ApplyAttempted   bool           `json:"apply_attempted"`
	ApplyOK          *bool          `json:"apply_ok"`
	VerifyOK         *bool          `json:"verify_ok"`
	BlockedReason    string         `json:"blocked_reason,omitempty"`
	KillSwitchActive bool           `json:"kill_switch_active"`
	KillSwitchSignal string         `json:"kill_switch_signal,omitempty"`
	BlockedReasons   map[string]int `json:"blocked_reasons"`
}

// TraceEvent is one decision_trace_event.v0 record.
type TraceEvent struct {
	SchemaVersion string        `json:"schema_version"`
	Tick          int           `json:"tick"`
	Mode          string        `json:"mode"`
	Signals       TraceSignals  `json:"signals"`
	Chord         TraceChord    `json:"chord"`
	Actions       []TraceAction `json:"actions"`
	Results       TraceResults  `json:"results"`
}

// DecisionTraceWriter appends trace events to a JSONL file.
type DecisionTraceWriter struct {
	Path string
}

// Emit appends one event.
func (w *DecisionTraceWriter) Emit(event TraceEvent) error {
	event.SchemaVersion = DecisionTraceSchemaVersion
	return appendJSONLine(w.Path, event)
}
