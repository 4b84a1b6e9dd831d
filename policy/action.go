// Package policy turns a signal set into an ordered list of proposed knob
// actions. Two interchangeable policies are provided: the chord policy
// (fixed-shape action bundles per detected condition, with a recover/relock
// state-machine overlay) and the scalar policy (a single severity-scaled
// concurrency decrease).
package policy

// Reason codes attached to proposed actions.
const (
	ReasonGPUSaturated = "gpu_saturated"
	ReasonDrift        = "drift_detected"
	ReasonBurst        = "latency_burst"
	ReasonStraggler    = "straggler_detected"
	ReasonRecover      = "recover"
	ReasonRelock       = "relock"
	ReasonNormal       = "normal"
	ReasonScalar       = "scalar"
)

// Synthetic knob names for the recover/relock protocol actions. They are not
// registered actuators; the guardrail layer handles them by reason code.
const (
	RecoverKnob = "__recover__"
	RelockKnob  = "__relock__"
)

// Action is one proposed knob change. Immutable value type: produced by the
// planner, consumed by the guardrail layer.
type Action struct {
	Knob   string `json:"knob"`
	Target int    `json:"target"`
	Reason string `json:"reason"`
	Chord  string `json:"chord,omitempty"`
}

// Chord is a named bundle of actions associated with one detected condition.
type Chord struct {
	ID      string
	Actions []Action
}

// Expand stamps the chord id onto every member action and returns them.
func (c Chord) Expand() []Action {
	out := make([]Action, len(c.Actions))
	for i, a := range c.Actions {
		a.Chord = c.ID
		out[i] = a
	}
	return out
}
