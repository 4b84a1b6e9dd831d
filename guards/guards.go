// Package guards enforces the safety invariants between proposed actions and
// the actuator registry: kill switch, entitlement, recover/relock sequencing,
// allow-listing, cooldown and rate-of-change bounds. Every decision is
// recorded in the explain log. All checks fail closed.
package guards

import (
	"sort"
	"time"

	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/knobs"
	"github.com/trainguard/trainguard/policy"
)

// Block and outcome reason codes, in the fixed priority order they are
// evaluated.
const (
	ReasonKillSwitch            = "kill_switch"
	ReasonEntitlementMissing    = "entitlement_missing"
	ReasonUnknownChord          = "unknown_chord"
	ReasonApprovalRequired      = "approval_required"
	ReasonUnknownKnob           = "unknown_knob"
	ReasonNotAllowlisted        = "not_allowlisted"
	ReasonCooldownActive        = "cooldown_active"
	ReasonMaxDeltaExceeded      = "max_delta_exceeded"
	ReasonRelockNotAllowed      = "relock_not_allowed"
	ReasonNormalRequiresRecover = "normal_requires_recover"

	ReasonRecover          = "recover"
	ReasonRelockNoop       = "relock_noop"
	ReasonRelockDryRunNoop = "relock_dry_run_noop"
	ReasonRollback         = "rollback"
	ReasonRollbackDryRun   = "rollback_dry_run"
	ReasonDryRun           = "dry_run"
	ReasonApplied          = "applied"
	ReasonNormalAllowed    = "normal_allowed"
)

// ApplyResult is the per-action outcome of one guardrail evaluation.
type ApplyResult struct {
	Action  policy.Action `json:"action"`
	Applied bool          `json:"applied"`
	Blocked bool          `json:"blocked"`
	Reason  string        `json:"reason"`
	DryRun  bool          `json:"dry_run"`
}

// Config sets the guardrail bounds.
type Config struct {
	// Allowlist limits which registered knobs may be changed. Nil means
	// every registered knob.
	Allowlist []string
	// MinInterval is the per-knob cooldown between applied changes.
	MinInterval time.Duration
	// MaxDeltaPerStep bounds |clamped target - current| per change; zero
	// disables the bound.
	MaxDeltaPerStep int
	// RelockStableIntervals is how many consecutive non-incident
	// observations must follow recovery before relock is allowed.
	RelockStableIntervals int
	// Clock is injectable for cooldown tests; defaults to time.Now.
	Clock func() time.Time
}

// Guardrails owns the apply/block decision for proposed actions. It holds
// the only mutable state in the decision core: the registry it mutates, the
// last stable profile, and the recover/stability counters.
type Guardrails struct {
	registry *knobs.Registry
	explain  *audit.ExplainLog

	allowlist             map[string]bool
	minInterval           time.Duration
	maxDeltaPerStep       int
	relockStableIntervals int
	clock                 func() time.Time

	lastStableProfile     map[string]int
	lastStableAt          time.Time
	stableWithoutIncident int
	recoverCompleted      bool
}

// New builds guardrails over the registry. The allowlist is intersected with
// the registered knob names.
func New(registry *knobs.Registry, explain *audit.ExplainLog, cfg Config) *Guardrails {
	registered := make(map[string]bool)
	for _, name := range registry.Names() {
		registered[name] = true
	}
	allow := make(map[string]bool)
	if cfg.Allowlist == nil {
		allow = registered
	} else {
		for _, name := range cfg.Allowlist {
			if registered[name] {
				allow[name] = true
			}
		}
	}
	minInterval := cfg.MinInterval
	if minInterval < 0 {
		minInterval = 0
	}
	maxDelta := cfg.MaxDeltaPerStep
	if maxDelta < 0 {
		maxDelta = 0
	}
	relockIntervals := cfg.RelockStableIntervals
	if relockIntervals < 1 {
		relockIntervals = 1
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Guardrails{
		registry:              registry,
		explain:               explain,
		allowlist:             allow,
		minInterval:           minInterval,
		maxDeltaPerStep:       maxDelta,
		relockStableIntervals: relockIntervals,
		clock:                 clock,
	}
}

// Registry exposes the guarded registry.
func (g *Guardrails) Registry() *knobs.Registry { return g.registry }

// MinInterval exposes the configured cooldown.
func (g *Guardrails) MinInterval() time.Duration { return g.minInterval }

// MaxDeltaPerStep exposes the configured per-step bound.
func (g *Guardrails) MaxDeltaPerStep() int { return g.maxDeltaPerStep }

// HasStableProfile reports whether a rollback profile has been marked.
func (g *Guardrails) HasStableProfile() bool { return g.lastStableProfile != nil }

// allowlistedSnapshot captures allow-listed knob values in name order.
func (g *Guardrails) allowlistedSnapshot() map[string]int {
	snapshot := make(map[string]int, len(g.allowlist))
	for _, name := range sortedKeys(g.allowlist) {
		if knob := g.registry.Get(name); knob != nil {
			snapshot[name] = knob.Value
		}
	}
	return snapshot
}

// MarkStableProfile snapshots the allow-listed knob values as the rollback
// target for a future relock. The caller marks it once the system is
// believed stable; the stored profile may be stale relative to the latest
// incident if never re-marked.
func (g *Guardrails) MarkStableProfile(reason string) map[string]int {
	profile := g.allowlistedSnapshot()
	g.lastStableProfile = profile
	g.lastStableAt = g.clock()
	g.explain.MustEmit("stable_profile_saved", map[string]any{
		"reason":    reason,
		"profile":   profile,
		"stable_at": g.lastStableAt.UTC().Format(time.RFC3339Nano),
	})
	return profile
}

// ObserveSignals folds one tick's incident state into the relock counters.
func (g *Guardrails) ObserveSignals(incident bool) {
	if incident {
		g.stableWithoutIncident = 0
		g.recoverCompleted = false
		return
	}
	g.stableWithoutIncident++
}

func (g *Guardrails) relockAllowed() bool {
	return g.recoverCompleted &&
		g.lastStableProfile != nil &&
		g.stableWithoutIncident >= g.relockStableIntervals
}

// RollbackToLastStable restores every allow-listed knob to the last marked
// stable profile. Without a profile it emits an empty rollback record and
// returns nil.
func (g *Guardrails) RollbackToLastStable(reason string, applyChanges bool) []ApplyResult {
	if g.lastStableProfile == nil {
		g.explain.MustEmit(audit.EventRollback, map[string]any{
			"reason": reason, "before": map[string]int{}, "after": map[string]int{}, "changed": []string{},
		})
		return nil
	}

	changed := []string{}
	before := map[string]int{}
	after := map[string]int{}
	var actions []policy.Action
	for _, name := range sortedKeys(stringKeys(g.lastStableProfile)) {
		knob := g.registry.Get(name)
		if knob == nil {
			continue
		}
		target := g.lastStableProfile[name]
		if knob.Value == target {
			continue
		}
		changed = append(changed, name)
		before[name] = knob.Value
		actions = append(actions, policy.Action{Knob: name, Target: target, Reason: ReasonRollback})
	}

	for _, action := range actions {
		if applyChanges {
			knob := g.registry.Get(action.Knob)
			after[action.Knob] = knob.Apply(action.Target, g.clock())
		} else {
			after[action.Knob] = action.Target
		}
	}

	g.explain.MustEmit(audit.EventRollback, map[string]any{
		"reason": reason, "before": before, "after": after, "changed": changed,
	})

	results := make([]ApplyResult, 0, len(actions))
	for _, action := range actions {
		if applyChanges {
			results = append(results, ApplyResult{Action: action, Applied: true, Reason: ReasonRollback})
		} else {
			results = append(results, ApplyResult{Action: action, Reason: ReasonRollbackDryRun, DryRun: true})
		}
	}
	return results
}

// EvaluateOptions carries the per-evaluation gate inputs. The kill switch is
// resolved by the caller (fail closed on read failure) and passed in so the
// guardrails stay free of environment reads.
type EvaluateOptions struct {
	ApplyChanges bool
	// EntitlementApplyEnabled: nil means "not evaluated" (no entitlement
	// gate); false blocks every mutating action.
	EntitlementApplyEnabled *bool
	KillSwitchActive        bool
}

// EvaluateAndApply runs every action through the gate chain in priority
// order and, when mutating, applies the survivors to the registry.
func (g *Guardrails) EvaluateAndApply(actions []policy.Action, opts EvaluateOptions) []ApplyResult {
	results := make([]ApplyResult, 0, len(actions))

	// Kill switch precedes every other check, including entitlement.
	if opts.KillSwitchActive {
		for _, action := range actions {
			g.explain.MustEmit(audit.EventBlocked, map[string]any{
				"reason": ReasonKillSwitch, "action": action,
			})
			results = append(results, ApplyResult{Action: action, Blocked: true, Reason: ReasonKillSwitch, DryRun: true})
		}
		return results
	}

	if opts.ApplyChanges && opts.EntitlementApplyEnabled != nil && !*opts.EntitlementApplyEnabled {
		for _, action := range actions {
			g.explain.MustEmit(audit.EventBlocked, map[string]any{
				"reason": ReasonEntitlementMissing, "action": action,
			})
			results = append(results, ApplyResult{Action: action, Blocked: true, Reason: ReasonEntitlementMissing, DryRun: true})
		}
		return results
	}

	var allowed []policy.Action
	for _, action := range actions {
		switch action.Reason {
		case policy.ReasonRecover:
			g.recoverCompleted = true
			g.explain.MustEmit(audit.EventDecision, map[string]any{
				"reason": "recover_completed", "action": action,
			})
			results = append(results, ApplyResult{
				Action: action, Applied: opts.ApplyChanges, Reason: ReasonRecover, DryRun: !opts.ApplyChanges,
			})

		case policy.ReasonRelock:
			if !g.relockAllowed() {
				g.explain.MustEmit(audit.EventBlocked, map[string]any{
					"reason":                  ReasonRelockNotAllowed,
					"action":                  action,
					"recover_completed":       g.recoverCompleted,
					"stable_without_incident": g.stableWithoutIncident,
					"stable_required":         g.relockStableIntervals,
					"has_stable_profile":      g.lastStableProfile != nil,
				})
				results = append(results, ApplyResult{Action: action, Blocked: true, Reason: ReasonRelockNotAllowed, DryRun: true})
				continue
			}
			g.explain.MustEmit(audit.EventDecision, map[string]any{
				"reason": "relock_allowed", "action": action,
			})
			rollback := g.RollbackToLastStable(policy.ReasonRelock, opts.ApplyChanges)
			if len(rollback) > 0 {
				results = append(results, rollback...)
			} else {
				reason := ReasonRelockNoop
				if !opts.ApplyChanges {
					reason = ReasonRelockDryRunNoop
				}
				results = append(results, ApplyResult{
					Action: action, Applied: opts.ApplyChanges, Reason: reason, DryRun: !opts.ApplyChanges,
				})
			}

		case policy.ReasonNormal:
			if !g.recoverCompleted {
				g.explain.MustEmit(audit.EventBlocked, map[string]any{
					"reason": ReasonNormalRequiresRecover, "action": action,
				})
				results = append(results, ApplyResult{Action: action, Blocked: true, Reason: ReasonNormalRequiresRecover, DryRun: true})
				continue
			}
			g.explain.MustEmit(audit.EventDecision, map[string]any{
				"reason": ReasonNormalAllowed, "action": action,
			})
			results = append(results, ApplyResult{
				Action: action, Applied: opts.ApplyChanges, Reason: ReasonNormalAllowed, DryRun: !opts.ApplyChanges,
			})

		default:
			reason, extra := g.checkAllowed(action)
			if reason != "" {
				payload := map[string]any{"reason": reason, "action": action}
				for k, v := range extra {
					payload[k] = v
				}
				g.explain.MustEmit(audit.EventBlocked, payload)
				results = append(results, ApplyResult{Action: action, Blocked: true, Reason: reason, DryRun: true})
				continue
			}
			allowed = append(allowed, action)
		}
	}

	if !opts.ApplyChanges {
		for _, action := range allowed {
			g.explain.MustEmit(audit.EventDryRun, map[string]any{
				"reason": "apply_gate", "action": action,
			})
			results = append(results, ApplyResult{Action: action, Reason: ReasonDryRun, DryRun: true})
		}
		return results
	}

	for _, action := range allowed {
		knob := g.registry.Get(action.Knob)
		before := knob.Value
		after := knob.Apply(action.Target, g.clock())
		g.explain.MustEmit(audit.EventApplied, map[string]any{
			"action": action, "before": before, "after": after,
		})
		results = append(results, ApplyResult{Action: action, Applied: true, Reason: ReasonApplied})
	}
	return results
}

// checkAllowed runs the ordinary-knob gate chain. It returns the blocking
// reason ("" when allowed) and optional diagnostic fields for the explain
// record.
func (g *Guardrails) checkAllowed(action policy.Action) (string, map[string]any) {
	knob := g.registry.Get(action.Knob)
	if knob == nil {
		return ReasonUnknownKnob, nil
	}
	if !g.allowlist[action.Knob] {
		return ReasonNotAllowlisted, nil
	}
	if !knob.LastChangedAt.IsZero() && g.clock().Sub(knob.LastChangedAt) < g.minInterval {
		return ReasonCooldownActive, nil
	}
	if g.maxDeltaPerStep > 0 {
		clamped := knob.Clamp(action.Target)
		delta := clamped - knob.Value
		if delta < 0 {
			delta = -delta
		}
		if delta > g.maxDeltaPerStep {
			return ReasonMaxDeltaExceeded, map[string]any{
				"current":            knob.Value,
				"target":             action.Target,
				"clamped_target":     clamped,
				"delta":              delta,
				"max_delta_per_step": g.maxDeltaPerStep,
			}
		}
	}
	return "", nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringKeys(m map[string]int) map[string]bool {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return set
}
