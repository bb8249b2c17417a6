package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileStatus_String(t *testing.T) {
	assert.Equal(t, "COMPILE_SUCCESS", CompileSuccess.String())
	assert.Equal(t, "COMPILE_ARITY", CompileArity.String())
	assert.Equal(t, "COMPILE_UNKNOWN", CompileStatus(999).String())
}

func TestEvalStatus_String(t *testing.T) {
	assert.Equal(t, "EVAL_SUCCESS", EvalSuccess.String())
	assert.Equal(t, "EVAL_SHAPE_MISMATCH", EvalShapeMismatch.String())
	assert.Equal(t, "EVAL_UNKNOWN", EvalStatus(999).String())
}

func TestCompileError_Error(t *testing.T) {
	err := newCompileError(CompileSyntax, 4, "unexpected token %q", "+")
	assert.Equal(t, `COMPILE_SYNTAX @ 4: unexpected token "+"`, err.Error())
}

func TestCompileError_Error_RendersLineColWhenSourceSet(t *testing.T) {
	err := &CompileError{Code: CompileSyntax, Offset: 7, Message: "unexpected token", Source: "x +\ny * @"}
	assert.Equal(t, "COMPILE_SYNTAX @ 2:4: unexpected token", err.Error())
}

func TestCompileError_asCompileError_StampsSourceOnce(t *testing.T) {
	inner := newCompileError(CompileSyntax, 2, "boom")
	wrapped := asCompileError(inner, "abc")
	assert.Equal(t, "abc", wrapped.Source)
	assert.Same(t, inner, wrapped)

	reStamped := asCompileError(wrapped, "xyz")
	assert.Equal(t, "abc", reStamped.Source, "an already-stamped error keeps its original source")
}
