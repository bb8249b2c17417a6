package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSL_HeaderAndBody(t *testing.T) {
	src := "def kernel(x, y):\n" +
		"    z = x + y\n" +
		"    return z\n"
	dp, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}, {Name: "y", Dtype: F64}})
	require.NoError(t, err)
	assert.Equal(t, "kernel", dp.Name)
	require.Len(t, dp.Body, 2)
	assert.Equal(t, dslAssign, dp.Body[0].kind)
	assert.Equal(t, dslReturn, dp.Body[1].kind)
}

func TestParseDSL_DialectPragma(t *testing.T) {
	src := "# me:dialect=element\n" +
		"def kernel(x):\n" +
		"    return x\n"
	dp, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)
	assert.Equal(t, "element", dp.Dialect)
}

func TestParseDSL_DefaultDialectIsVector(t *testing.T) {
	src := "def kernel(x):\n    return x\n"
	dp, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)
	assert.Equal(t, "vector", dp.Dialect)
}

func TestParseDSL_AugmentedAssign(t *testing.T) {
	src := "def kernel(x):\n" +
		"    acc = 0\n" +
		"    acc += x\n" +
		"    return acc\n"
	dp, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)
	require.Len(t, dp.Body, 3)
	assert.Equal(t, dslAugAssign, dp.Body[1].kind)
	assert.Equal(t, OpAdd, dp.Body[1].augOp)
}

func TestParseDSL_ForIfElifElse(t *testing.T) {
	src := "def kernel(n):\n" +
		"    acc = 0\n" +
		"    for i in range(n):\n" +
		"        if i == 0:\n" +
		"            acc += 1\n" +
		"        elif i == 1:\n" +
		"            acc += 2\n" +
		"        else:\n" +
		"            break\n" +
		"    return acc\n"
	dp, err := ParseDSL(src, []VarDecl{{Name: "n", Dtype: I64}})
	require.NoError(t, err)
	require.Len(t, dp.Body, 3)
	forStmt := dp.Body[1]
	require.Equal(t, dslFor, forStmt.kind)
	require.Len(t, forStmt.body, 1)
	ifStmt := forStmt.body[0]
	assert.Equal(t, dslIf, ifStmt.kind)
	require.Len(t, ifStmt.elseIfs, 1)
	assert.Equal(t, dslBreak, ifStmt.elseBody[0].kind)
}

func TestParseDSL_ReservedIndexNamesResolve(t *testing.T) {
	src := "def kernel(x):\n" +
		"    return x + _i0\n"
	_, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.NoError(t, err)
}

func TestParseDSL_UnknownNameFails(t *testing.T) {
	src := "def kernel(x):\n    return x + q\n"
	_, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.Error(t, err)
}

func TestParseDSL_TabIndentationRejected(t *testing.T) {
	src := "def kernel(x):\n\treturn x\n"
	_, err := ParseDSL(src, []VarDecl{{Name: "x", Dtype: F64}})
	require.Error(t, err)
	ce, ok := err.(*CompileError)
	require.True(t, ok)
	assert.Equal(t, CompileSyntax, ce.Code)
}
