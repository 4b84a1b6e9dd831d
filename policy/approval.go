package policy

// advancedActuators is the fixed set of knobs whose changes always require
// explicit approval when mutating, regardless of catalog tier.
var advancedActuators = map[string]bool{
	"timeout_ms":     true,
	"comm_bucket_mb": true,
}

// advancedChordIDs covers advanced chords referenced outside the catalog.
var advancedChordIDs = map[string]bool{
	"TIMEOUT-GUARD":           true,
	"COMM-CONGESTION":         true,
	"NEAR-HANG/TIMEOUT-GUARD": true,
}

// RequiresApproval reports whether an action is tagged advanced via the
// fixed actuator set or the fixed chord-id set.
func RequiresApproval(a Action) bool {
	return advancedActuators[a.Knob] || advancedChordIDs[a.Chord]
}
