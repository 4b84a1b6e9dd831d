package license

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"
)

// Accepted credential and emitted verdict schema versions.
const (
	CredentialSchemaVersion = "license.v1"
	VerdictSchemaVersion    = "license_verify.v0"
)

// Coarse verdict reason codes. Expiry and binding mismatches are kept
// distinct from generic invalidity because the apply gate treats them
// differently.
const (
	ReasonOK              = "ok"
	ReasonInvalid         = "license_invalid"
	ReasonExpired         = "license_expired"
	ReasonBindingMismatch = "binding_mismatch"
)

// Granular failure codes carried alongside the coarse reason.
const (
	FailUnreadable          = "license_unreadable"
	FailInvalidJSON         = "license_invalid_json"
	FailSchemaInvalid       = "license_schema_invalid"
	FailOrgInvalid          = "license_org_invalid"
	FailTimeFieldsInvalid   = "license_time_fields_invalid"
	FailEntitlementsInvalid = "license_entitlements_invalid"
	FailBindingsInvalid     = "license_bindings_invalid"
	FailKIDInvalid          = "license_kid_invalid"
	FailIssuerInvalid       = "license_issuer_invalid"
	FailSignatureMissing    = "license_signature_missing"
	FailSignatureInvalid    = "license_signature_invalid"
	FailUnknownKID          = "license_unknown_kid"
	FailUnknownIssuerKID    = "license_unknown_issuer_kid"
	FailNotYetValid         = "license_not_yet_valid"
	FailExpired             = "license_expired"
	FailBindingMismatch     = "binding_mismatch"
)

// DetailKIDNotInIssuerKeyset is the fixed detail for a credential whose kid
// the verified issuer keyset does not vouch for.
const DetailKIDNotInIssuerKeyset = "license_kid_not_in_issuer_keyset"

// Credential is the typed view of a structurally valid license.v1 document.
// Signature verification always runs over the raw bytes, not this struct.
type Credential struct {
	SchemaVersion string   `json:"schema_version"`
	Org           string   `json:"org"`
	IssuedAt      int64    `json:"issued_at"`
	ExpiresAt     int64    `json:"expires_at"`
	Entitlements  []string `json:"entitlements"`
	// Bindings may carry a cluster_context the credential is pinned to.
	Bindings  map[string]string `json:"bindings,omitempty"`
	KID       string            `json:"kid,omitempty"`
	Issuer    string            `json:"issuer,omitempty"`
	Signature string            `json:"signature"`
}

// Verdict is the structured verification outcome, schema license_verify.v0.
type Verdict struct {
	SchemaVersion string   `json:"schema_version"`
	LicenseOK     bool     `json:"ok"`
	Reason        string   `json:"reason"`
	ReasonCode    string   `json:"reason_code"`
	FailureCode   string   `json:"failure_code,omitempty"`
	FailureDetail string   `json:"failure_detail,omitempty"`
	KID           string   `json:"kid,omitempty"`
	Issuer        string   `json:"issuer,omitempty"`
	ExpiresAt     *int64   `json:"expires_at,omitempty"`
	Entitlements  []string `json:"entitlements"`
}

// HasEntitlement reports whether the verified credential grants the named
// capability. Always false for a failed verdict.
func (v Verdict) HasEntitlement(name string) bool {
	if !v.LicenseOK {
		return false
	}
	for _, e := range v.Entitlements {
		if e == name {
			return true
		}
	}
	return false
}

// Options configures verification. Exactly one of Keyring or the trust
// chain inputs (RootKeys plus IssuerKeysetPath or IssuerKeysetBytes) should
// supply signing keys; the trust chain takes precedence when both are set.
type Options struct {
	// Now is injectable for expiry tests; defaults to time.Now.
	Now func() time.Time
	// Keyring maps kid directly to trusted public keys.
	Keyring Keyring
	// RootKeys pins trust anchors for a signed issuer keyset.
	RootKeys          Keyring
	IssuerKeysetPath  string
	IssuerKeysetBytes []byte
	// CurrentContext resolves the live cluster context for the binding
	// check. Nil skips the binding check.
	CurrentContext func() (string, error)
}

// reasonFor maps a granular failure code to its coarse reason.
func reasonFor(code string) string {
	switch code {
	case FailExpired:
		return ReasonExpired
	case FailBindingMismatch:
		return ReasonBindingMismatch
	default:
		return ReasonInvalid
	}
}

func failed(code, detail string) Verdict {
	reason := code
	if detail != "" {
		reason = fmt.Sprintf("%s: %s", code, detail)
	}
	return Verdict{
		SchemaVersion: VerdictSchemaVersion,
		Reason:        reason,
		ReasonCode:    reasonFor(code),
		FailureCode:   code,
		FailureDetail: detail,
		Entitlements:  []string{},
	}
}

// VerifyFile verifies the credential at path. A missing or unreadable file
// is a license_unreadable verdict, never an error.
func VerifyFile(path string, opts Options) Verdict {
	raw, err := os.ReadFile(path)
	if err != nil {
		return failed(FailUnreadable, err.Error())
	}
	return VerifyCredential(raw, opts)
}

// VerifyCredential verifies a raw license.v1 document. Checks run in fixed
// order: structure field by field, key selection, signature, temporal
// validity, then binding. The structural pass validates each field with its
// own failure code so a rejected credential names the exact offending field.
func VerifyCredential(raw []byte, opts Options) Verdict {
	cred, code, detail := parseCredential(raw)
	if code != "" {
		return failed(code, detail)
	}

	candidates, verdict := candidateKeys(cred.KID, opts)
	if verdict != nil {
		return *verdict
	}

	sig, err := decodeSignature(cred.Signature)
	if err != nil {
		return failed(FailSignatureInvalid, err.Error())
	}
	canonical, err := CanonicalJSON(raw)
	if err != nil {
		return failed(FailInvalidJSON, err.Error())
	}
	verified := false
	for _, key := range candidates {
		if ed25519.Verify(key, canonical, sig) {
			verified = true
			break
		}
	}
	if !verified {
		return failed(FailSignatureInvalid, "")
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	nowUnix := now().Unix()
	if nowUnix < cred.IssuedAt {
		return failed(FailNotYetValid, "")
	}
	if nowUnix >= cred.ExpiresAt {
		return failed(FailExpired, "")
	}

	if bound := cred.Bindings["cluster_context"]; bound != "" && opts.CurrentContext != nil {
		current, err := opts.CurrentContext()
		if err != nil {
			return failed(FailBindingMismatch, fmt.Sprintf("current context unavailable: %v", err))
		}
		if current != bound {
			return failed(FailBindingMismatch,
				fmt.Sprintf("credential bound to context %q, current is %q", bound, current))
		}
	}

	expires := cred.ExpiresAt
	return Verdict{
		SchemaVersion: VerdictSchemaVersion,
		LicenseOK:     true,
		Reason:        "license verified",
		ReasonCode:    ReasonOK,
		KID:           cred.KID,
		Issuer:        cred.Issuer,
		ExpiresAt:     &expires,
		Entitlements:  sortedEntitlements(cred.Entitlements),
	}
}

// parseCredential validates the document structurally, field by field, in a
// fixed order. The first offending field short-circuits with its code.
func parseCredential(raw []byte) (Credential, string, string) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Credential{}, FailInvalidJSON, err.Error()
	}

	var cred Credential
	schema, ok := doc["schema_version"].(string)
	if !ok || schema != CredentialSchemaVersion {
		return cred, FailSchemaInvalid, fmt.Sprintf("expected schema_version %q", CredentialSchemaVersion)
	}
	cred.SchemaVersion = schema

	org, ok := doc["org"].(string)
	if !ok || org == "" {
		return cred, FailOrgInvalid, "org must be a non-empty string"
	}
	cred.Org = org

	issued, ok := epochSeconds(doc["issued_at"])
	if !ok {
		return cred, FailTimeFieldsInvalid, "issued_at must be integer epoch seconds"
	}
	expires, ok := epochSeconds(doc["expires_at"])
	if !ok {
		return cred, FailTimeFieldsInvalid, "expires_at must be integer epoch seconds"
	}
	if issued >= expires {
		return cred, FailTimeFieldsInvalid, "issued_at must be before expires_at"
	}
	cred.IssuedAt, cred.ExpiresAt = issued, expires

	rawEnts, ok := doc["entitlements"].([]any)
	if !ok {
		return cred, FailEntitlementsInvalid, "entitlements must be a list of strings"
	}
	for _, e := range rawEnts {
		s, ok := e.(string)
		if !ok {
			return cred, FailEntitlementsInvalid, "entitlements must be a list of strings"
		}
		cred.Entitlements = append(cred.Entitlements, s)
	}

	if rawBindings, present := doc["bindings"]; present {
		obj, ok := rawBindings.(map[string]any)
		if !ok {
			return cred, FailBindingsInvalid, "bindings must be an object"
		}
		cred.Bindings = make(map[string]string, len(obj))
		for k, v := range obj {
			s, ok := v.(string)
			if !ok {
				return cred, FailBindingsInvalid, fmt.Sprintf("binding %q must be a string", k)
			}
			cred.Bindings[k] = s
		}
	}

	if rawKID, present := doc["kid"]; present {
		kid, ok := rawKID.(string)
		if !ok || kid == "" {
			return cred, FailKIDInvalid, "kid must be a non-empty string"
		}
		cred.KID = kid
	}
	if rawIssuer, present := doc["issuer"]; present {
		issuer, ok := rawIssuer.(string)
		if !ok || issuer == "" {
			return cred, FailIssuerInvalid, "issuer must be a non-empty string"
		}
		cred.Issuer = issuer
	}

	sig, ok := doc["signature"].(string)
	if !ok || sig == "" {
		return cred, FailSignatureMissing, "signature must be a non-empty base64 string"
	}
	cred.Signature = sig

	return cred, "", ""
}

// epochSeconds accepts an integer-valued JSON number.
func epochSeconds(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// candidateKeys selects the keys allowed to verify the credential. A
// declared kid narrows the choice to the single matching key; without one,
// every trusted key is tried in stable kid order. With trust chain inputs
// the signed issuer keyset is verified first and only its keys are trusted.
func candidateKeys(kid string, opts Options) ([]ed25519.PublicKey, *Verdict) {
	useChain := len(opts.RootKeys) > 0 && (opts.IssuerKeysetPath != "" || len(opts.IssuerKeysetBytes) > 0)

	ring := opts.Keyring
	unknownCode, unknownDetail := FailUnknownKID, kid
	if useChain {
		var err error
		if len(opts.IssuerKeysetBytes) > 0 {
			ring, err = VerifyIssuerKeyset(opts.IssuerKeysetBytes, opts.RootKeys)
		} else {
			ring, err = LoadIssuerKeyset(opts.IssuerKeysetPath, opts.RootKeys)
		}
		if err != nil {
			var code, detail string
			if kerr, ok := err.(*KeysetError); ok {
				code, detail = kerr.Code, kerr.Detail
			} else {
				code, detail = FailIssuerKeysetInvalid, err.Error()
			}
			v := failed(code, detail)
			return nil, &v
		}
		unknownCode, unknownDetail = FailUnknownIssuerKID, DetailKIDNotInIssuerKeyset
	}

	if len(ring) == 0 {
		v := failed(unknownCode, "no trusted keys configured")
		return nil, &v
	}
	if kid != "" {
		key, ok := ring[kid]
		if !ok {
			v := failed(unknownCode, unknownDetail)
			return nil, &v
		}
		return []ed25519.PublicKey{key}, nil
	}

	kids := make([]string, 0, len(ring))
	for k := range ring {
		kids = append(kids, k)
	}
	sort.Strings(kids)
	keys := make([]ed25519.PublicKey, 0, len(kids))
	for _, k := range kids {
		keys = append(keys, ring[k])
	}
	return keys, nil
}
