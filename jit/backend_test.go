package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBackendKind(t *testing.T) {
	assert.Equal(t, BackendTCC, ParseBackendKind("tcc"))
	assert.Equal(t, BackendCC, ParseBackendKind("cc"))
	assert.Equal(t, BackendCC, ParseBackendKind(""))
	assert.Equal(t, BackendCC, ParseBackendKind("something-unknown"))
}

func TestBackendKind_CommandName(t *testing.T) {
	name, ok := BackendCC.commandName()
	assert.True(t, ok)
	assert.Equal(t, "cc", name)

	name, ok = BackendTCC.commandName()
	assert.True(t, ok)
	assert.Equal(t, "tcc", name)

	_, ok = BackendEmbedded.commandName()
	assert.False(t, ok, "no pure-Go codegen backs the embedded option")
}

func TestBackend_Compile_EmbeddedKindAlwaysFails(t *testing.T) {
	b := Backend{Kind: BackendEmbedded, TmpDir: t.TempDir()}
	_, err := b.Compile("int main(){return 0;}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no external compiler available")
}

func TestBackend_Compile_MissingCommandFails(t *testing.T) {
	t.Setenv("PATH", "")
	b := Backend{Kind: BackendCC, TmpDir: t.TempDir()}
	_, err := b.Compile("int main(){return 0;}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
}
