package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_DeterministicAndSensitive(t *testing.T) {
	a := FingerprintInputs{Source: "x+y", DtypeSig: "f64,f64", EngineVer: "1", CompilerID: "cc"}
	b := a
	b.Source = "x-y"

	assert.Equal(t, Fingerprint(a), Fingerprint(a))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestCache_StoreThenLookup(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	fp := Fingerprint(FingerprintInputs{Source: "x+y"})
	body := []byte("fake shared object bytes")
	require.NoError(t, c.Store(fp, "f64", "cc", body))

	got, ok := c.Lookup(fp, "f64", "cc")
	require.True(t, ok)
	assert.Equal(t, body, got)
}

func TestCache_LookupMissOnWrongDtypeSig(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	fp := Fingerprint(FingerprintInputs{Source: "x+y"})
	require.NoError(t, c.Store(fp, "f64", "cc", []byte("body")))

	_, ok := c.Lookup(fp, "i64", "cc")
	assert.False(t, ok)
}

func TestCache_LookupMissOnUnknownFingerprint(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	_, ok := c.Lookup("does-not-exist", "f64", "cc")
	assert.False(t, ok)
}
