package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTableIsSorted(t *testing.T) {
	for i := 1; i < len(builtinTable); i++ {
		assert.Less(t, builtinTable[i-1].Name, builtinTable[i].Name)
	}
}

func TestLookupBuiltinByName(t *testing.T) {
	e, ok := lookupBuiltinByName("sqrt")
	require.True(t, ok)
	assert.Equal(t, BSqrt, e.ID)
	assert.Equal(t, 1, e.Arity)

	_, ok = lookupBuiltinByName("not-a-builtin")
	assert.False(t, ok)
}

func TestLookupBuiltinByID(t *testing.T) {
	e, ok := lookupBuiltinByID(OpAdd)
	require.True(t, ok)
	assert.Equal(t, "+", e.Symbol)

	e, ok = lookupBuiltinByID(BSum)
	require.True(t, ok)
	assert.Equal(t, "sum", e.Name)
}

func TestBuiltinID_Classification(t *testing.T) {
	assert.True(t, BSum.IsReduction())
	assert.False(t, BSqrt.IsReduction())

	assert.True(t, OpLt.IsComparison())
	assert.False(t, OpAdd.IsComparison())

	assert.True(t, BStartsWith.IsStringOnly())
	assert.False(t, BSqrt.IsStringOnly())

	assert.True(t, OpEq.AllowsString())
	assert.True(t, BContains.AllowsString())
	assert.False(t, OpLt.AllowsString())
}

func TestOutputRules(t *testing.T) {
	got, err := promoteToFloat(I32)
	require.NoError(t, err)
	assert.Equal(t, F64, got)

	got, err = promoteToFloat(F32)
	require.NoError(t, err)
	assert.Equal(t, F32, got)

	got, err = sameAsOperand(I16)
	require.NoError(t, err)
	assert.Equal(t, I16, got)

	got, err = alwaysBool(F64)
	require.NoError(t, err)
	assert.Equal(t, Bool, got)

	got, err = alwaysFloat64(I8)
	require.NoError(t, err)
	assert.Equal(t, F64, got)

	got, err = reductionRule("sum")(I16)
	require.NoError(t, err)
	assert.Equal(t, I64, got)
}
