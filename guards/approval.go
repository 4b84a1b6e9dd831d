package guards

import (
	"github.com/trainguard/trainguard/audit"
	"github.com/trainguard/trainguard/policy"
)

// SplitActionsByApproval runs the catalog and approval pre-gate ahead of the
// guardrail chain. It returns the actions that may proceed plus, keyed by
// original index, the blocked results, so the caller can reassemble outcomes
// in proposal order.
//
// An action whose chord id is absent from the catalog is blocked
// unknown_chord. An advanced action (advanced actuator, advanced chord id,
// or catalog risk_tier "advanced") is blocked approval_required when a
// mutating run lacks the explicit advanced approval; dry runs pass advanced
// actions through so their effect stays visible.
func SplitActionsByApproval(actions []policy.Action, applyChanges, approveAdvanced bool, catalog *policy.Catalog, explain *audit.ExplainLog) ([]policy.Action, map[int]ApplyResult) {
	var index map[string]policy.ChordSpec
	if catalog != nil {
		index = catalog.Index()
	}

	allowed := make([]policy.Action, 0, len(actions))
	blocked := make(map[int]ApplyResult)
	for i, action := range actions {
		var spec *policy.ChordSpec
		if action.Chord != "" && index != nil {
			if s, ok := index[action.Chord]; ok {
				spec = &s
			} else {
				explain.MustEmit(audit.EventBlocked, map[string]any{
					"reason": ReasonUnknownChord, "action": action, "chord": action.Chord,
				})
				blocked[i] = ApplyResult{Action: action, Blocked: true, Reason: ReasonUnknownChord, DryRun: true}
				continue
			}
		}

		advanced := policy.RequiresApproval(action)
		if spec != nil && spec.RiskTier == policy.RiskTierAdvanced {
			advanced = true
		}
		if advanced && applyChanges && !approveAdvanced {
			explain.MustEmit(audit.EventBlocked, map[string]any{
				"reason": ReasonApprovalRequired, "action": action, "chord": action.Chord,
			})
			blocked[i] = ApplyResult{Action: action, Blocked: true, Reason: ReasonApprovalRequired, DryRun: true}
			continue
		}
		allowed = append(allowed, action)
	}
	return allowed, blocked
}
