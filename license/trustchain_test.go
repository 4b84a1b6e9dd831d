package license

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootKeyring() Keyring {
	return Keyring{"root-1": rootKey().Public().(ed25519.PublicKey)}
}

// signedKeyset builds an issuer_keyset.v1 document carrying the issuer key,
// signed by the root key.
func signedKeyset(t *testing.T, rootKID string) []byte {
	t.Helper()
	doc := map[string]any{
		"schema_version": IssuerKeysetSchemaVersion,
		"root_kid":       rootKID,
		"keys": map[string]any{
			"kid-1": keyB64(issuerKey()),
		},
	}
	return signDoc(t, doc, rootKey())
}

func TestVerifyIssuerKeyset_Valid(t *testing.T) {
	ring, err := VerifyIssuerKeyset(signedKeyset(t, "root-1"), rootKeyring())
	require.NoError(t, err)
	require.Contains(t, ring, "kid-1")
}

func TestVerifyIssuerKeyset_UnknownRootKID(t *testing.T) {
	_, err := VerifyIssuerKeyset(signedKeyset(t, "root-rogue"), rootKeyring())
	require.Error(t, err)
	kerr, ok := err.(*KeysetError)
	require.True(t, ok)
	assert.Equal(t, FailIssuerKeysetUnknownRootKID, kerr.Code)
}

func TestVerifyIssuerKeyset_WrongSigner_SignatureInvalid(t *testing.T) {
	// GIVEN a keyset signed by the issuer key instead of the root key
	doc := map[string]any{
		"schema_version": IssuerKeysetSchemaVersion,
		"root_kid":       "root-1",
		"keys":           map[string]any{"kid-1": keyB64(issuerKey())},
	}
	raw := signDoc(t, doc, issuerKey())

	_, err := VerifyIssuerKeyset(raw, rootKeyring())
	require.Error(t, err)
	kerr, ok := err.(*KeysetError)
	require.True(t, ok)
	assert.Equal(t, FailIssuerKeysetSignatureInvalid, kerr.Code)
}

func TestVerifyIssuerKeyset_BadSchema_Invalid(t *testing.T) {
	doc := map[string]any{
		"schema_version": "issuer_keyset.v2",
		"root_kid":       "root-1",
		"keys":           map[string]any{"kid-1": keyB64(issuerKey())},
	}
	_, err := VerifyIssuerKeyset(signDoc(t, doc, rootKey()), rootKeyring())
	require.Error(t, err)
	assert.Equal(t, FailIssuerKeysetInvalid, err.(*KeysetError).Code)
}

func TestVerifyCredential_TrustChain_FullPath(t *testing.T) {
	// GIVEN a credential signed by an issuer key vouched for by a
	// root-signed keyset
	raw := signDoc(t, validCredentialDoc(), issuerKey())
	opts := Options{
		Now:               fixedNow,
		RootKeys:          rootKeyring(),
		IssuerKeysetBytes: signedKeyset(t, "root-1"),
	}

	verdict := VerifyCredential(raw, opts)
	assert.True(t, verdict.LicenseOK, "reason: %s", verdict.Reason)
}

func TestVerifyCredential_TrustChain_KIDNotInKeyset(t *testing.T) {
	doc := validCredentialDoc()
	doc["kid"] = "kid-2"
	raw := signDoc(t, doc, issuerKey())
	opts := Options{
		Now:               fixedNow,
		RootKeys:          rootKeyring(),
		IssuerKeysetBytes: signedKeyset(t, "root-1"),
	}

	verdict := VerifyCredential(raw, opts)

	assert.Equal(t, FailUnknownIssuerKID, verdict.FailureCode)
	assert.Equal(t, DetailKIDNotInIssuerKeyset, verdict.FailureDetail)
}

func TestVerifyCredential_TrustChain_BadKeysetPropagates(t *testing.T) {
	raw := signDoc(t, validCredentialDoc(), issuerKey())
	opts := Options{
		Now:               fixedNow,
		RootKeys:          rootKeyring(),
		IssuerKeysetBytes: signedKeyset(t, "root-rogue"),
	}

	verdict := VerifyCredential(raw, opts)
	assert.Equal(t, FailIssuerKeysetUnknownRootKID, verdict.FailureCode)
}

func TestVerifyCredential_TrustChainOverridesDirectKeyring(t *testing.T) {
	// With both configured, only the keyset's keys are trusted
	doc := validCredentialDoc()
	doc["kid"] = "kid-direct"
	raw := signDoc(t, doc, issuerKey())
	opts := Options{
		Now:               fixedNow,
		Keyring:           Keyring{"kid-direct": issuerKey().Public().(ed25519.PublicKey)},
		RootKeys:          rootKeyring(),
		IssuerKeysetBytes: signedKeyset(t, "root-1"),
	}

	verdict := VerifyCredential(raw, opts)
	assert.Equal(t, FailUnknownIssuerKID, verdict.FailureCode)
}

func TestParseKeyring_RejectsWrongSizeKey(t *testing.T) {
	_, err := ParseKeyring([]byte(`{"kid-1": "dG9vc2hvcnQ="}`))
	assert.Error(t, err)
}

func TestParseKeyring_RejectsBadBase64(t *testing.T) {
	_, err := ParseKeyring([]byte(`{"kid-1": "%%%not-base64%%%"}`))
	assert.Error(t, err)
}
