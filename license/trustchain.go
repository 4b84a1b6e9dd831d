package license

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// IssuerKeysetSchemaVersion is the accepted issuer keyset document schema.
const IssuerKeysetSchemaVersion = "issuer_keyset.v1"

// Issuer keyset failure codes.
const (
	FailIssuerKeysetUnreadable       = "issuer_keyset_unreadable"
	FailIssuerKeysetInvalid          = "issuer_keyset_invalid"
	FailIssuerKeysetUnknownRootKID   = "issuer_keyset_unknown_root_kid"
	FailIssuerKeysetSignatureInvalid = "issuer_keyset_signature_invalid"
)

// IssuerKeyset is a set of issuer signing keys, itself signed by a pinned
// root key so the keyring can rotate without redistributing roots.
type IssuerKeyset struct {
	SchemaVersion string            `json:"schema_version"`
	RootKID       string            `json:"root_kid"`
	Keys          map[string]string `json:"keys"`
	Signature     string            `json:"signature"`
}

// KeysetError carries the structured failure code for a rejected keyset.
type KeysetError struct {
	Code   string
	Detail string
}

func (e *KeysetError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// VerifyIssuerKeyset checks the keyset document against the pinned root
// keys and returns the issuer keyring it vouches for. The signature covers
// the canonical JSON of the document without its signature field.
func VerifyIssuerKeyset(raw []byte, rootKeys Keyring) (Keyring, error) {
	var keyset IssuerKeyset
	if err := json.Unmarshal(raw, &keyset); err != nil {
		return nil, &KeysetError{Code: FailIssuerKeysetInvalid, Detail: err.Error()}
	}
	if keyset.SchemaVersion != IssuerKeysetSchemaVersion {
		return nil, &KeysetError{
			Code:   FailIssuerKeysetInvalid,
			Detail: fmt.Sprintf("unsupported schema_version %q", keyset.SchemaVersion),
		}
	}
	if keyset.RootKID == "" || len(keyset.Keys) == 0 {
		return nil, &KeysetError{Code: FailIssuerKeysetInvalid, Detail: "missing root_kid or keys"}
	}

	rootKey, ok := rootKeys[keyset.RootKID]
	if !ok {
		return nil, &KeysetError{Code: FailIssuerKeysetUnknownRootKID, Detail: keyset.RootKID}
	}

	sig, err := decodeSignature(keyset.Signature)
	if err != nil {
		return nil, &KeysetError{Code: FailIssuerKeysetSignatureInvalid, Detail: err.Error()}
	}
	canonical, err := CanonicalJSON(raw)
	if err != nil {
		return nil, &KeysetError{Code: FailIssuerKeysetInvalid, Detail: err.Error()}
	}
	if !ed25519.Verify(rootKey, canonical, sig) {
		return nil, &KeysetError{Code: FailIssuerKeysetSignatureInvalid}
	}

	ring := make(Keyring, len(keyset.Keys))
	for kid, encoded := range keyset.Keys {
		key, err := decodePublicKey(encoded)
		if err != nil {
			return nil, &KeysetError{
				Code:   FailIssuerKeysetInvalid,
				Detail: fmt.Sprintf("key %q: %v", kid, err),
			}
		}
		ring[kid] = key
	}
	return ring, nil
}

// LoadIssuerKeyset reads and verifies an issuer keyset file.
func LoadIssuerKeyset(path string, rootKeys Keyring) (Keyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &KeysetError{Code: FailIssuerKeysetUnreadable, Detail: err.Error()}
	}
	return VerifyIssuerKeyset(raw, rootKeys)
}
