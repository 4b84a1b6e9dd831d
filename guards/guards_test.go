package guards

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/knobs"
	"github.com/trainguard/trainguard/policy"
)

func testExplain(t *testing.T) *audit.ExplainLog {
	t.Helper()
	return audit.NewExplainLog(filepath.Join(t.TempDir(), "explain.jsonl"))
}

func boolPtr(b bool) *bool { return &b }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuards(t *testing.T, cfg Config) (*Guardrails, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	cfg.Clock = clock.Now
	return New(knobs.DefaultRegistry(), testExplain(t), cfg), clock
}

func TestEvaluateAndApply_KillSwitchBlocksEverything(t *testing.T) {
	// GIVEN an active kill switch
	g, _ := newTestGuards(t, Config{})
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
		{Knob: policy.RecoverKnob, Reason: policy.ReasonRecover},
	}

	// WHEN actions are evaluated, recover included
	results := g.EvaluateAndApply(actions, EvaluateOptions{
		ApplyChanges:     true,
		KillSwitchActive: true,
	})

	// THEN every action is blocked with the same reason and nothing changed
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Blocked)
		assert.Equal(t, ReasonKillSwitch, r.Reason)
	}
	assert.Equal(t, 8, g.Registry().Get("concurrency").Value)
}

func TestEvaluateAndApply_KillSwitchPrecedesEntitlement(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
	}, EvaluateOptions{
		ApplyChanges:            true,
		EntitlementApplyEnabled: boolPtr(false),
		KillSwitchActive:        true,
	})
	require.Len(t, results, 1)
	assert.Equal(t, ReasonKillSwitch, results[0].Reason)
}

func TestEvaluateAndApply_MissingEntitlementBlocksMutation(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
	}, EvaluateOptions{
		ApplyChanges:            true,
		EntitlementApplyEnabled: boolPtr(false),
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Blocked)
	assert.Equal(t, ReasonEntitlementMissing, results[0].Reason)
	assert.Equal(t, 8, g.Registry().Get("concurrency").Value)
}

func TestEvaluateAndApply_UnknownKnobBlocked(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "warp_factor", Target: 9, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: true})
	require.Len(t, results, 1)
	assert.Equal(t, ReasonUnknownKnob, results[0].Reason)
}

func TestEvaluateAndApply_AllowlistEnforced(t *testing.T) {
	// GIVEN an allowlist containing only concurrency
	g, _ := newTestGuards(t, Config{Allowlist: []string{"concurrency"}})

	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
		{Knob: "microbatch_size", Target: 16, Reason: policy.ReasonGPUSaturated},
	}, EvaluateOptions{ApplyChanges: true})

	require.Len(t, results, 2)
	assert.Equal(t, ReasonApplied, results[0].Reason)
	assert.Equal(t, ReasonNotAllowlisted, results[1].Reason)
	assert.Equal(t, 4, g.Registry().Get("concurrency").Value)
	assert.Equal(t, 32, g.Registry().Get("microbatch_size").Value)
}

func TestEvaluateAndApply_CooldownBlocksSecondChange(t *testing.T) {
	// GIVEN a 30s cooldown
	g, clock := newTestGuards(t, Config{MinInterval: 30 * time.Second})
	action := []policy.Action{{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst}}

	first := g.EvaluateAndApply(action, EvaluateOptions{ApplyChanges: true})
	require.Equal(t, ReasonApplied, first[0].Reason)

	// WHEN a second change arrives 10s later
	clock.Advance(10 * time.Second)
	second := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 2, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: true})

	// THEN it is held until the cooldown expires
	assert.Equal(t, ReasonCooldownActive, second[0].Reason)
	assert.Equal(t, 4, g.Registry().Get("concurrency").Value)

	clock.Advance(25 * time.Second)
	third := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 2, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: true})
	assert.Equal(t, ReasonApplied, third[0].Reason)
}

func TestEvaluateAndApply_MaxDeltaBlocksLargeJump(t *testing.T) {
	// GIVEN a per-step bound of 8
	g, _ := newTestGuards(t, Config{MaxDeltaPerStep: 8})

	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "microbatch_size", Target: 64, Reason: policy.ReasonDrift},
	}, EvaluateOptions{ApplyChanges: true})

	require.Len(t, results, 1)
	assert.Equal(t, ReasonMaxDeltaExceeded, results[0].Reason)
	assert.Equal(t, 32, g.Registry().Get("microbatch_size").Value)
}

func TestEvaluateAndApply_MaxDeltaMeasuredAfterClamp(t *testing.T) {
	// A wild target that clamps into range passes when the clamped delta
	// stays inside the bound.
	g, _ := newTestGuards(t, Config{MaxDeltaPerStep: 300})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "microbatch_size", Target: 100000, Reason: policy.ReasonDrift},
	}, EvaluateOptions{ApplyChanges: true})
	require.Len(t, results, 1)
	assert.Equal(t, ReasonApplied, results[0].Reason)
	assert.Equal(t, 256, g.Registry().Get("microbatch_size").Value)
}

func TestEvaluateAndApply_DryRunAppliesNothing(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: false})

	require.Len(t, results, 1)
	assert.Equal(t, ReasonDryRun, results[0].Reason)
	assert.True(t, results[0].DryRun)
	assert.False(t, results[0].Applied)
	assert.Equal(t, 8, g.Registry().Get("concurrency").Value)
}

func TestEvaluateAndApply_RelockBeforeRecoverBlocked(t *testing.T) {
	g, _ := newTestGuards(t, Config{RelockStableIntervals: 1})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RelockKnob, Reason: policy.ReasonRelock},
	}, EvaluateOptions{ApplyChanges: true})
	require.Len(t, results, 1)
	assert.Equal(t, ReasonRelockNotAllowed, results[0].Reason)
}

func TestEvaluateAndApply_RelockRestoresStableProfile(t *testing.T) {
	// GIVEN a marked stable profile, then a change away from it
	g, _ := newTestGuards(t, Config{RelockStableIntervals: 1})
	g.MarkStableProfile("baseline")
	g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 2, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: true})
	require.Equal(t, 2, g.Registry().Get("concurrency").Value)

	// AND a completed recover plus a quiet interval
	g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RecoverKnob, Reason: policy.ReasonRecover},
	}, EvaluateOptions{ApplyChanges: true})
	g.ObserveSignals(false)

	// WHEN relock runs
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RelockKnob, Reason: policy.ReasonRelock},
	}, EvaluateOptions{ApplyChanges: true})

	// THEN the changed knob is rolled back to the stable value
	require.Len(t, results, 1)
	assert.Equal(t, ReasonRollback, results[0].Reason)
	assert.Equal(t, "concurrency", results[0].Action.Knob)
	assert.Equal(t, 8, g.Registry().Get("concurrency").Value)
}

func TestEvaluateAndApply_RelockWithNothingToRestore_Noop(t *testing.T) {
	g, _ := newTestGuards(t, Config{RelockStableIntervals: 1})
	g.MarkStableProfile("baseline")
	g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RecoverKnob, Reason: policy.ReasonRecover},
	}, EvaluateOptions{ApplyChanges: true})
	g.ObserveSignals(false)

	results := g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RelockKnob, Reason: policy.ReasonRelock},
	}, EvaluateOptions{ApplyChanges: true})

	require.Len(t, results, 1)
	assert.Equal(t, ReasonRelockNoop, results[0].Reason)
}

func TestEvaluateAndApply_IncidentResetsRelockEligibility(t *testing.T) {
	g, _ := newTestGuards(t, Config{RelockStableIntervals: 1})
	g.MarkStableProfile("baseline")
	g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RecoverKnob, Reason: policy.ReasonRecover},
	}, EvaluateOptions{ApplyChanges: true})
	g.ObserveSignals(false)

	// A fresh incident clears both the counter and the recover flag
	g.ObserveSignals(true)
	g.ObserveSignals(false)

	results := g.EvaluateAndApply([]policy.Action{
		{Knob: policy.RelockKnob, Reason: policy.ReasonRelock},
	}, EvaluateOptions{ApplyChanges: true})
	assert.Equal(t, ReasonRelockNotAllowed, results[0].Reason)
}

func TestRollbackToLastStable_WithoutProfile_Empty(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	assert.Nil(t, g.RollbackToLastStable("manual", true))
}

func TestRollbackToLastStable_DryRun_LeavesValues(t *testing.T) {
	g, _ := newTestGuards(t, Config{})
	g.MarkStableProfile("baseline")
	g.Registry().Get("concurrency").Value = 2

	results := g.RollbackToLastStable("manual", false)

	require.Len(t, results, 1)
	assert.Equal(t, ReasonRollbackDryRun, results[0].Reason)
	assert.True(t, results[0].DryRun)
	assert.Equal(t, 2, g.Registry().Get("concurrency").Value)
}

func TestNew_AllowlistIntersectedWithRegistry(t *testing.T) {
	g, _ := newTestGuards(t, Config{Allowlist: []string{"concurrency", "not_a_knob"}})
	results := g.EvaluateAndApply([]policy.Action{
		{Knob: "concurrency", Target: 4, Reason: policy.ReasonBurst},
	}, EvaluateOptions{ApplyChanges: true})
	assert.Equal(t, ReasonApplied, results[0].Reason)
}
