package guards

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/policy"
)

func splitExplain(t *testing.T) *audit.ExplainLog {
	t.Helper()
	return audit.NewExplainLog(filepath.Join(t.TempDir(), "explain.jsonl"))
}

func TestSplitActionsByApproval_UnknownChordBlocked(t *testing.T) {
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4, Chord: "MADE-UP-CHORD", Reason: policy.ReasonBurst},
	}

	allowed, blocked := SplitActionsByApproval(actions, true, false, policy.DefaultCatalog(), splitExplain(t))

	assert.Empty(t, allowed)
	require.Contains(t, blocked, 0)
	assert.Equal(t, ReasonUnknownChord, blocked[0].Reason)
}

func TestSplitActionsByApproval_AdvancedNeedsApprovalWhenMutating(t *testing.T) {
	actions := []policy.Action{
		{Knob: "timeout_ms", Target: 15000, Chord: policy.ChordTimeoutGuard, Reason: policy.ReasonStraggler},
	}

	allowed, blocked := SplitActionsByApproval(actions, true, false, policy.DefaultCatalog(), splitExplain(t))

	assert.Empty(t, allowed)
	require.Contains(t, blocked, 0)
	assert.Equal(t, ReasonApprovalRequired, blocked[0].Reason)
}

func TestSplitActionsByApproval_AdvancedPassesWithApproval(t *testing.T) {
	actions := []policy.Action{
		{Knob: "timeout_ms", Target: 15000, Chord: policy.ChordTimeoutGuard, Reason: policy.ReasonStraggler},
	}

	allowed, blocked := SplitActionsByApproval(actions, true, true, policy.DefaultCatalog(), splitExplain(t))

	assert.Len(t, allowed, 1)
	assert.Empty(t, blocked)
}

func TestSplitActionsByApproval_DryRunLetsAdvancedThrough(t *testing.T) {
	// Dry runs surface the advanced action's effect instead of hiding it
	actions := []policy.Action{
		{Knob: "timeout_ms", Target: 15000, Chord: policy.ChordTimeoutGuard, Reason: policy.ReasonStraggler},
	}

	allowed, blocked := SplitActionsByApproval(actions, false, false, policy.DefaultCatalog(), splitExplain(t))

	assert.Len(t, allowed, 1)
	assert.Empty(t, blocked)
}

func TestSplitActionsByApproval_SafeChordUnaffected(t *testing.T) {
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4, Chord: policy.ChordBurstAbsorb, Reason: policy.ReasonBurst},
		{Knob: "microbatch_size", Target: 16, Chord: policy.ChordBurstAbsorb, Reason: policy.ReasonGPUSaturated},
	}

	allowed, blocked := SplitActionsByApproval(actions, true, false, policy.DefaultCatalog(), splitExplain(t))

	assert.Len(t, allowed, 2)
	assert.Empty(t, blocked)
}

func TestSplitActionsByApproval_CatalogRiskTierForcesApproval(t *testing.T) {
	// A chord the fixed sets don't know is still advanced when its catalog
	// entry says so.
	catalog := &policy.Catalog{
		SchemaVersion: policy.CatalogSchemaVersion,
		Chords: []policy.ChordSpec{{
			ID:       "CUSTOM-RISKY",
			RiskTier: policy.RiskTierAdvanced,
		}},
	}
	actions := []policy.Action{
		{Knob: "concurrency", Target: 4, Chord: "CUSTOM-RISKY", Reason: policy.ReasonBurst},
	}

	allowed, blocked := SplitActionsByApproval(actions, true, false, catalog, splitExplain(t))

	assert.Empty(t, allowed)
	require.Contains(t, blocked, 0)
	assert.Equal(t, ReasonApprovalRequired, blocked[0].Reason)
}
