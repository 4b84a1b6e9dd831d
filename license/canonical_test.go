package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_SortsKeysAndCompacts(t *testing.T) {
	raw := []byte(`{
		"zeta": 1,
		"alpha": {"b": 2, "a": 1},
		"list": [3, 2, 1]
	}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":1,"b":2},"list":[3,2,1],"zeta":1}`, string(got))
}

func TestCanonicalJSON_RemovesTopLevelSignature(t *testing.T) {
	raw := []byte(`{"kid": "k", "signature": "abc", "nested": {"signature": "keep"}}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	// Only the top-level signature is stripped
	assert.Equal(t, `{"kid":"k","nested":{"signature":"keep"}}`, string(got))
}

func TestCanonicalJSON_PreservesNumberForm(t *testing.T) {
	raw := []byte(`{"big": 1700000000, "frac": 1.25}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"big":1700000000,"frac":1.25}`, string(got))
}

func TestCanonicalJSON_NoHTMLEscaping(t *testing.T) {
	raw := []byte(`{"s": "<a&b>"}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"<a&b>"}`, string(got))
}

func TestCanonicalJSON_NonASCIIPassesThrough(t *testing.T) {
	raw := []byte(`{"name": "ünïcode"}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"ünïcode"}`, string(got))
}

func TestCanonicalJSON_EscapesControlCharacters(t *testing.T) {
	raw := []byte(`{"s": "line1\nline2\ttab"}`)

	got, err := CanonicalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"s":"line1\nline2\ttab"}`, string(got))
}

func TestCanonicalJSON_StableAcrossKeyOrder(t *testing.T) {
	a := []byte(`{"x": 1, "y": {"p": true, "q": null}}`)
	b := []byte(`{"y": {"q": null, "p": true}, "x": 1}`)

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestCanonicalJSON_InvalidJSON_Fails(t *testing.T) {
	_, err := CanonicalJSON([]byte(`{not json`))
	assert.Error(t, err)
}
