package license

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// Keyring maps a key id to its Ed25519 public key.
type Keyring map[string]ed25519.PublicKey

// ParseKeyring decodes a {"kid": "<base64 32-byte key>", ...} document.
func ParseKeyring(raw []byte) (Keyring, error) {
	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse public keys: %w", err)
	}
	ring := make(Keyring, len(doc))
	for kid, encoded := range doc {
		key, err := decodePublicKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("public key %q: %w", kid, err)
		}
		ring[kid] = key
	}
	return ring, nil
}

// LoadKeyring reads a keyring file from disk.
func LoadKeyring(path string) (Keyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public keys: %w", err)
	}
	return ParseKeyring(raw)
}

func decodePublicKey(encoded string) (ed25519.PublicKey, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d-byte key, got %d", ed25519.PublicKeySize, len(key))
	}
	return ed25519.PublicKey(key), nil
}

func decodeSignature(encoded string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("expected %d-byte signature, got %d", ed25519.SignatureSize, len(sig))
	}
	return sig, nil
}
