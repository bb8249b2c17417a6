package miniexpr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileProgram_Linearizes(t *testing.T) {
	arena, varIdx, err := ParseInfix("x + 2", []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)

	prog := compileProgram(arena, varIdx)
	require.Len(t, prog.Ops, 3)
	assert.Equal(t, "load_var", prog.Ops[0].Name())
	assert.Equal(t, "load_const", prog.Ops[1].Name())
	assert.Equal(t, "call", prog.Ops[2].Name())

	call, ok := prog.Ops[2].(OpCall)
	require.True(t, ok)
	assert.Equal(t, OpAdd, call.Builtin)
	assert.Equal(t, 2, call.Arity)
}

func TestProgram_StringRendersMnemonics(t *testing.T) {
	arena, varIdx, err := ParseInfix("x + 2", []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)
	prog := compileProgram(arena, varIdx)

	s := prog.String()
	assert.True(t, strings.Contains(s, "load_var x(0)"))
	assert.True(t, strings.Contains(s, "load_const 2"))
	assert.True(t, strings.Contains(s, "call +/2 -> f64"))
}

func TestExpression_Disassemble(t *testing.T) {
	e, cerr := Compile("x + 2", []VarDecl{{Name: "x", Dtype: F64}}, AUTO)
	require.Nil(t, cerr)
	out := e.Disassemble()
	assert.Contains(t, out, "load_var")
	assert.Contains(t, out, "call")
}
