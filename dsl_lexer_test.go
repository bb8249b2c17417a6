package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectDSLKinds(t *testing.T, src string) []TokenKind {
	t.Helper()
	lx := newDSLLexer(src)
	var kinds []TokenKind
	for {
		tok, err := lx.next()
		require.NoError(t, err)
		kinds = append(kinds, tok.Kind)
		if tok.Kind == TokEOF {
			break
		}
	}
	return kinds
}

func TestDSLLexer_IndentDedent(t *testing.T) {
	src := "def f():\n    return 1\n"
	kinds := collectDSLKinds(t, src)

	assert.Contains(t, kinds, TokIndent)
	assert.Contains(t, kinds, TokDedent)
	// the final dedent/EOF pair closes every open indentation level.
	assert.Equal(t, TokEOF, kinds[len(kinds)-1])
}

func TestDSLLexer_NestedBlocksProduceBalancedIndentation(t *testing.T) {
	src := "def f(x):\n" +
		"    if x:\n" +
		"        return 1\n" +
		"    return 0\n"
	kinds := collectDSLKinds(t, src)

	indents, dedents := 0, 0
	for _, k := range kinds {
		if k == TokIndent {
			indents++
		}
		if k == TokDedent {
			dedents++
		}
	}
	assert.Equal(t, indents, dedents)
}

func TestDSLLexer_BlankAndCommentLinesIgnored(t *testing.T) {
	src := "def f():\n" +
		"\n" +
		"    # a comment\n" +
		"    return 1\n"
	kinds := collectDSLKinds(t, src)
	assert.Contains(t, kinds, TokIndent)
}

func TestDSLLexer_ParenthesesSuppressNewlines(t *testing.T) {
	src := "def f(x):\n    return (x)\n"
	lx := newDSLLexer(src)
	var gotNewlineInsideParen bool
	depth := 0
	for {
		tok, err := lx.next()
		require.NoError(t, err)
		if tok.Kind == TokLParen {
			depth++
		}
		if tok.Kind == TokRParen {
			depth--
		}
		if tok.Kind == TokNewline && depth > 0 {
			gotNewlineInsideParen = true
		}
		if tok.Kind == TokEOF {
			break
		}
	}
	assert.False(t, gotNewlineInsideParen)
}

func TestDSLLexer_AugmentedAssignOperators(t *testing.T) {
	for _, op := range []string{"+=", "-=", "*=", "/=", "%="} {
		src := "def f(x):\n    x " + op + " 1\n    return x\n"
		lx := newDSLLexer(src)
		var found bool
		for {
			tok, err := lx.next()
			require.NoError(t, err)
			if tok.Kind == TokOp && tok.Text == op {
				found = true
			}
			if tok.Kind == TokEOF {
				break
			}
		}
		assert.True(t, found, "expected to find operator %q", op)
	}
}
