package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optimizeSource(t *testing.T, source string, vars []VarDecl) string {
	t.Helper()
	arena, varIdx, err := ParseInfix(source, vars)
	require.NoError(t, err)
	declMap := make(map[string]VarDecl, len(vars))
	for _, v := range vars {
		declMap[v.Name] = v
	}
	root, err := Optimize(arena, declMap, varIdx)
	require.NoError(t, err)
	return arena.String(root)
}

func TestOptimize_AlgebraicIdentities(t *testing.T) {
	vars := []VarDecl{{Name: "x", Dtype: F64}}
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"x+0", "x + 0", "x"},
		{"0+x", "0 + x", "x"},
		{"x-0", "x - 0", "x"},
		{"x*1", "x * 1", "x"},
		{"1*x", "1 * x", "x"},
		{"x/1", "x / 1", "x"},
		{"x**1", "x ** 1", "x"},
		{"double negation", "!!x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, optimizeSource(t, tt.source, vars))
		})
	}
}

func TestOptimize_PowZeroFoldsToOne(t *testing.T) {
	vars := []VarDecl{{Name: "x", Dtype: F64}}
	assert.Equal(t, "1", optimizeSource(t, "x ** 0", vars))
}

func TestOptimize_ConstantFolding(t *testing.T) {
	assert.Equal(t, "7", optimizeSource(t, "1 + 2 * 3", nil))
}

func TestOptimize_DoesNotFoldAcrossVariable(t *testing.T) {
	vars := []VarDecl{{Name: "x", Dtype: F64}}
	// x + (1 + 2) folds the constant subexpression but keeps x
	got := optimizeSource(t, "x + (1 + 2)", vars)
	assert.Equal(t, "(x + 3)", got)
}
