package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfix_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"additive left assoc", "1 - 2 - 3", "((1 - 2) - 3)"},
		{"mul binds tighter", "1 + 2 * 3", "(1 + (2 * 3))"},
		{"pow right assoc", "2 ** 3 ** 2", "(2 ** (3 ** 2))"},
		{"unary neg then pow", "-2 ** 2", "-((2 ** 2))"},
		{"parens override", "(1 + 2) * 3", "((1 + 2) * 3)"},
		{"comparison", "1 < 2", "(1 < 2)"},
		{"logical and/or", "1 && 2 || 3", "((1 && 2) || 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arena, _, err := ParseInfix(tt.source, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, arena.String(arena.Root()))
		})
	}
}

func TestParseInfix_Variables(t *testing.T) {
	vars := []VarDecl{{Name: "a", Dtype: F64}, {Name: "b", Dtype: F64}}
	arena, idx, err := ParseInfix("a + b", vars)
	require.NoError(t, err)
	assert.Equal(t, 0, idx["a"])
	assert.Equal(t, 1, idx["b"])
	assert.Equal(t, "(a + b)", arena.String(arena.Root()))
}

func TestParseInfix_ClosureCall(t *testing.T) {
	vars := []VarDecl{{Name: "f", IsClosure: true, Arity: 1, Pure: true, Dtype: F64}}
	arena, _, err := ParseInfix("f(3)", vars)
	require.NoError(t, err)
	assert.Equal(t, "f(3)", arena.String(arena.Root()))
}

func TestParseInfix_ClosureArityMismatch(t *testing.T) {
	vars := []VarDecl{{Name: "f", IsClosure: true, Arity: 2, Pure: true}}
	_, _, err := ParseInfix("f(3)", vars)
	require.Error(t, err)
	ce, ok := err.(*CompileError)
	require.True(t, ok)
	assert.Equal(t, CompileArity, ce.Code)
}

func TestParseInfix_UnresolvedName(t *testing.T) {
	_, _, err := ParseInfix("a + 1", nil)
	require.Error(t, err)
	ce := err.(*CompileError)
	assert.Equal(t, CompileUnresolvedName, ce.Code)
}

func TestParseInfix_SyntaxError(t *testing.T) {
	_, _, err := ParseInfix("1 +", nil)
	require.Error(t, err)
	ce := err.(*CompileError)
	assert.Equal(t, CompileSyntax, ce.Code)
}

func TestParseInfix_TrailingTokenError(t *testing.T) {
	_, _, err := ParseInfix("1 2", nil)
	require.Error(t, err)
	ce := err.(*CompileError)
	assert.Equal(t, CompileSyntax, ce.Code)
}

func TestParseInfix_BuiltinCall(t *testing.T) {
	arena, _, err := ParseInfix("sin(1) + cos(2)", nil)
	require.NoError(t, err)
	assert.Equal(t, "(sin(1) + cos(2))", arena.String(arena.Root()))
}
