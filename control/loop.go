package control

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/trainguard/trainguard/analysis"
	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/config"
	"github.com/trainguard/trainguard/guards"
	"github.com/trainguard/trainguard/kube"
	"github.com/trainguard/trainguard/license"
	"github.com/trainguard/trainguard/policy"
	"github.com/trainguard/trainguard/telemetry"
)

// LoopOptions wires one controller tick. Everything the tick touches comes
// in through this struct; RunOnce itself never reads the environment.
type LoopOptions struct {
	Source  telemetry.Source
	Planner *policy.PlannerState
	// Policy selects the planning strategy, policy.PolicyChord or
	// policy.PolicyScalar.
	Policy  string
	Guards  *guards.Guardrails
	Catalog *policy.Catalog
	Explain *audit.ExplainLog
	Trace   *audit.DecisionTraceWriter

	// Client may be nil in observe-only runs; the cluster is then never
	// touched.
	Client     kube.Client
	Namespace  string
	Deployment string

	Mode            Mode
	ApplyChanges    bool
	ApproveAdvanced bool

	// ChordAllowed, when set, restricts plannable chords to what the
	// operating profile permits; nil permits every cataloged chord.
	ChordAllowed func(id string) bool

	Env config.Config
	// LicenseOpts configures credential verification for mutating runs.
	LicenseOpts license.Options

	// OutDir, when set, receives the rendered change plan.
	OutDir string
	Tick   int
	Log    *logrus.Logger
}

// TickOutcome is everything one tick produced.
type TickOutcome struct {
	Signals    analysis.SignalSet     `json:"signals"`
	Actions    []policy.Action        `json:"actions"`
	Results    []guards.ApplyResult   `json:"results"`
	Plan       []kube.PlanItem        `json:"plan,omitempty"`
	Verify     *kube.VerifyReport     `json:"verify,omitempty"`
	Apply      *kube.ApplyReport      `json:"apply,omitempty"`
	KillSwitch config.KillSwitchState `json:"kill_switch"`
	Verdict    *license.Verdict       `json:"license,omitempty"`
	// BlockedReason is the tick-level block, "" when nothing blocked the
	// tick as a whole. Kill switch dominates license, license dominates
	// cluster verification.
	BlockedReason string `json:"blocked_reason,omitempty"`
}

// RunOnce executes one tick: read, analyze, plan, gate, and (in closed-loop
// mode with all gates green) verify and apply.
func (o *LoopOptions) RunOnce(ctx context.Context) (*TickOutcome, error) {
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	samples, err := o.Source.Read()
	if err != nil {
		return nil, fmt.Errorf("read telemetry: %w", err)
	}
	signals := analysis.Analyze(samples)
	log.WithFields(logrus.Fields{
		"samples": len(samples), "incident": signals.Incident, "notes": signals.Notes,
	}).Debug("signals analyzed")

	o.Planner.Observe(signals)
	o.Guards.ObserveSignals(signals.Incident)

	var actions []policy.Action
	if o.Policy == policy.PolicyScalar {
		o.Planner.Plan(signals) // consume the observation; scalar plans statelessly
		actions, err = policy.Propose(signals, policy.PolicyScalar, o.Guards.Registry())
	} else {
		actions, err = o.Planner.Plan(signals)
	}
	if err != nil {
		return nil, fmt.Errorf("plan actions: %w", err)
	}
	actions = o.filterChords(actions)

	outcome := &TickOutcome{
		Signals:    signals,
		Actions:    actions,
		KillSwitch: o.Env.EvaluateKillSwitch(),
	}

	// License gate, mutating runs only. Observe-only analysis is never
	// license-gated.
	entitlementOK := true
	gateReason := ""
	if o.ApplyChanges {
		verdict := o.resolveVerdict(ctx)
		outcome.Verdict = &verdict
		gateReason = ApplyGateReason(verdict)
		entitlementOK = gateReason == ""
	}

	preAllowed, preBlocked := guards.SplitActionsByApproval(
		actions, o.ApplyChanges, o.ApproveAdvanced, o.Catalog, o.Explain)
	guardResults := o.Guards.EvaluateAndApply(preAllowed, guards.EvaluateOptions{
		ApplyChanges:            o.ApplyChanges,
		EntitlementApplyEnabled: &entitlementOK,
		KillSwitchActive:        outcome.KillSwitch.Active,
	})
	outcome.Results = mergeResults(actions, preBlocked, guardResults)
	o.advancePlanner(outcome.Results)

	planActions := o.planActions(outcome.Results)
	outcome.Plan = kube.BuildPlan(o.Namespace, o.Deployment, planActions)
	if o.OutDir != "" && len(outcome.Plan) > 0 {
		if err := writePlan(filepath.Join(o.OutDir, "plan.json"), outcome.Plan); err != nil {
			return nil, err
		}
	}

	switch {
	case outcome.KillSwitch.Active:
		outcome.BlockedReason = guards.ReasonKillSwitch
	case gateReason != "":
		outcome.BlockedReason = gateReason
	case o.ApplyChanges && len(outcome.Plan) > 0 && o.Client != nil:
		verify := kube.VerifyPlan(ctx, o.Client, outcome.Plan)
		outcome.Verify = &verify
		if !verify.OK {
			outcome.BlockedReason = verify.Blocker.Kind
			log.WithField("blocker", verify.Blocker.Kind).Warn("cluster verification blocked apply")
			break
		}
		apply := kube.ApplyPlan(ctx, o.Client, outcome.Plan)
		outcome.Apply = &apply
		if !apply.OK {
			outcome.BlockedReason = apply.Blocker.Kind
		}
	}

	if o.Trace != nil {
		if err := o.Trace.Emit(o.traceEvent(outcome)); err != nil {
			return nil, fmt.Errorf("write decision trace: %w", err)
		}
	}
	return outcome, nil
}

// resolveVerdict verifies the configured credential file, binding checks
// against the live kube context when a client is available.
func (o *LoopOptions) resolveVerdict(ctx context.Context) license.Verdict {
	opts := o.LicenseOpts
	if opts.CurrentContext == nil && o.Client != nil {
		client := o.Client
		opts.CurrentContext = func() (string, error) { return client.CurrentContext(ctx) }
	}
	if o.Env.LicensePath == "" {
		v := license.Verdict{
			SchemaVersion: license.VerdictSchemaVersion,
			Reason:        "no credential path configured",
			ReasonCode:    license.ReasonInvalid,
			FailureCode:   license.FailUnreadable,
			Entitlements:  []string{},
		}
		return v
	}
	return license.VerifyFile(o.Env.LicensePath, opts)
}

// filterChords drops actions belonging to chords the operating profile does
// not permit. Protocol actions carry no chord id and always pass.
func (o *LoopOptions) filterChords(actions []policy.Action) []policy.Action {
	if o.ChordAllowed == nil {
		return actions
	}
	var kept []policy.Action
	dropped := map[string]bool{}
	for _, a := range actions {
		if a.Chord == "" || o.ChordAllowed(a.Chord) {
			kept = append(kept, a)
			continue
		}
		if !dropped[a.Chord] {
			dropped[a.Chord] = true
			o.Explain.MustEmit(audit.EventBlocked, map[string]any{
				"reason": "chord_not_allowed", "chord": a.Chord,
			})
		}
	}
	return kept
}

// advancePlanner feeds recover/relock completions back into the planner
// state machine.
func (o *LoopOptions) advancePlanner(results []guards.ApplyResult) {
	relocked := false
	for _, r := range results {
		switch r.Reason {
		case guards.ReasonRecover:
			o.Planner.MarkRecovered()
		case guards.ReasonRelockNoop, guards.ReasonRelockDryRunNoop,
			guards.ReasonRollback, guards.ReasonRollbackDryRun:
			relocked = true
		}
	}
	if relocked {
		o.Planner.MarkRelocked()
	}
}

// planActions selects the results that become cluster patches: applied
// changes, plus would-apply changes in dry runs, restricted to registered
// knobs.
func (o *LoopOptions) planActions(results []guards.ApplyResult) []policy.Action {
	var out []policy.Action
	for _, r := range results {
		if r.Blocked {
			continue
		}
		if o.Guards.Registry().Get(r.Action.Knob) == nil {
			continue
		}
		out = append(out, r.Action)
	}
	return out
}

// mergeResults reassembles per-action outcomes in proposal order. A relock
// that expanded into rollback results contributes those at its position.
func mergeResults(actions []policy.Action, preBlocked map[int]guards.ApplyResult, guardResults []guards.ApplyResult) []guards.ApplyResult {
	used := make([]bool, len(guardResults))
	take := func(a policy.Action) (guards.ApplyResult, bool) {
		for i, r := range guardResults {
			if !used[i] && r.Action == a {
				used[i] = true
				return r, true
			}
		}
		return guards.ApplyResult{}, false
	}

	out := make([]guards.ApplyResult, 0, len(guardResults)+len(preBlocked))
	for i, a := range actions {
		if r, ok := preBlocked[i]; ok {
			out = append(out, r)
			continue
		}
		if r, ok := take(a); ok {
			out = append(out, r)
		}
	}
	for i, r := range guardResults {
		if !used[i] {
			out = append(out, r)
		}
	}
	return out
}

func (o *LoopOptions) traceEvent(outcome *TickOutcome) audit.TraceEvent {
	chord := audit.TraceChord{ID: "none"}
	var members []string
	seen := map[string]bool{}
	for _, a := range outcome.Actions {
		if a.Chord != "" && !seen[a.Chord] {
			seen[a.Chord] = true
			members = append(members, a.Chord)
		}
	}
	switch len(members) {
	case 0:
	case 1:
		chord.ID = members[0]
	default:
		chord = audit.TraceChord{ID: "multi", Members: members}
	}

	traceActions := make([]audit.TraceAction, 0, len(outcome.Actions))
	for _, a := range outcome.Actions {
		traceActions = append(traceActions, audit.TraceAction{
			Knob: a.Knob, Target: a.Target, Reason: a.Reason, Chord: a.Chord,
		})
	}

	blockedReasons := map[string]int{}
	applied := false
	for _, r := range outcome.Results {
		if r.Blocked {
			blockedReasons[r.Reason]++
		}
		if r.Applied {
			applied = true
		}
	}
	results := audit.TraceResults{
		ApplyRequested:   o.ApplyChanges,
		DryRun:           !o.ApplyChanges,
		ApplyAttempted:   outcome.Apply != nil,
		BlockedReason:    outcome.BlockedReason,
		KillSwitchActive: outcome.KillSwitch.Active,
		KillSwitchSignal: outcome.KillSwitch.Signal,
		BlockedReasons:   blockedReasons,
	}
	if outcome.Apply != nil {
		ok := outcome.Apply.OK
		results.ApplyOK = &ok
	} else if o.ApplyChanges {
		results.ApplyOK = &applied
	}
	if outcome.Verify != nil {
		ok := outcome.Verify.OK
		results.VerifyOK = &ok
	}

	return audit.TraceEvent{
		Tick: o.Tick,
		Mode: string(o.Mode),
		Signals: audit.TraceSignals{
			Drift:        outcome.Signals.Drift,
			Burst:        outcome.Signals.Burst,
			Straggler:    outcome.Signals.Straggler,
			GPUSaturated: outcome.Signals.GPUSaturated,
			Incident:     outcome.Signals.Incident,
			Notes:        outcome.Signals.Notes,
		},
		Chord:   chord,
		Actions: traceActions,
		Results: results,
	}
}

func writePlan(path string, items []kube.PlanItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plan dir: %w", err)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}
