package control

import "github.com/trainguard/trainguard/license"

// License gate block reasons for a mutating run.
const (
	BlockLicenseMissing     = "license_missing"
	BlockLicenseInvalid     = "license_invalid"
	BlockLicenseExpired     = "license_expired"
	BlockBindingMismatch    = "binding_mismatch"
	BlockEntitlementMissing = "entitlement_missing"
)

// EntitlementApply is the capability a mutating run requires.
const EntitlementApply = "apply"

// ApplyGateReason maps a license verdict to the block reason for a mutating
// run. Empty string means the gate passes. Observe-only runs never call
// this; the license gates apply, not analysis.
func ApplyGateReason(verdict license.Verdict) string {
	if !verdict.LicenseOK {
		if verdict.FailureCode == license.FailUnreadable {
			return BlockLicenseMissing
		}
		switch verdict.ReasonCode {
		case license.ReasonExpired:
			return BlockLicenseExpired
		case license.ReasonBindingMismatch:
			return BlockBindingMismatch
		default:
			return BlockLicenseInvalid
		}
	}
	if !verdict.HasEntitlement(EntitlementApply) {
		return BlockEntitlementMissing
	}
	return ""
}
