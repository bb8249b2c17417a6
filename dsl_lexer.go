package miniexpr

// dslLexer wraps a lexer with the statement-level, indentation-aware
// scanning the kernel DSL needs (spec.md §3/§4.6): a `def kernel(...):`
// header followed by an indented block. It emits the same Token
// stream as the infix lexer plus TokNewline/TokIndent/TokDedent at
// logical line boundaries, following Python's well-known
// column-stack algorithm (the teacher's own lexer has no equivalent,
// since PEG grammars are whitespace-insignificant; this is grounded
// directly on spec.md §4.1's "indentation errors surface as
// compile-syntax").
type dslLexer struct {
	lx          *lexer
	indentStack []int
	pending     []Token
	atLineStart bool
	parenDepth  int
}

func newDSLLexer(src string) *dslLexer {
	return &dslLexer{lx: newLexer(src), indentStack: []int{0}, atLineStart: true}
}

func (d *dslLexer) next() (Token, error) {
	if len(d.pending) > 0 {
		t := d.pending[0]
		d.pending = d.pending[1:]
		return t, nil
	}
	if d.atLineStart && d.parenDepth == 0 {
		if err := d.scanIndent(); err != nil {
			return Token{}, err
		}
		d.atLineStart = false
		if len(d.pending) > 0 {
			t := d.pending[0]
			d.pending = d.pending[1:]
			return t, nil
		}
	}

	d.lx.skipSpacesAndComments(false)
	if d.lx.peek() == '\n' {
		start := d.lx.cursor
		d.lx.advance()
		d.atLineStart = true
		if d.parenDepth > 0 {
			return d.next()
		}
		return Token{Kind: TokNewline, Rg: NewRange(start, d.lx.cursor)}, nil
	}
	if d.lx.peek() == eof {
		if d.parenDepth == 0 {
			return d.finalDedents()
		}
		return Token{Kind: TokEOF, Rg: NewRange(d.lx.cursor, d.lx.cursor)}, nil
	}

	tok, err := d.scanAugAssignOrDelegate()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind == TokLParen {
		d.parenDepth++
	}
	if tok.Kind == TokRParen && d.parenDepth > 0 {
		d.parenDepth--
	}
	return tok, nil
}

// scanAugAssignOrDelegate recognises `=` and the augmented-assignment
// operators (`+=`, `-=`, `*=`, `/=`, `%=`) that the plain infix lexer's
// operator set doesn't include, then delegates everything else.
func (d *dslLexer) scanAugAssignOrDelegate() (Token, error) {
	start := d.lx.cursor
	c := d.lx.peek()
	if c == '=' && d.lx.peekAt(1) != '=' {
		d.lx.advance()
		return Token{Kind: TokOp, Text: "=", Rg: NewRange(start, d.lx.cursor)}, nil
	}
	for _, op := range []string{"+=", "-=", "*=", "/=", "%="} {
		if c == rune(op[0]) && d.lx.peekAt(1) == rune(op[1]) {
			d.lx.advance()
			d.lx.advance()
			return Token{Kind: TokOp, Text: op, Rg: NewRange(start, d.lx.cursor)}, nil
		}
	}
	return d.lx.next()
}

// scanIndent measures the current line's leading whitespace and queues
// TokIndent/TokDedent tokens as the column changes, per the standard
// Python-style indent-stack algorithm. Blank lines and comment-only
// lines are skipped without affecting the stack.
func (d *dslLexer) scanIndent() error {
	for {
		col := 0
		for d.lx.peek() == ' ' {
			col++
			d.lx.advance()
		}
		if d.lx.peek() == '\t' {
			return newCompileError(CompileSyntax, d.lx.cursor, "tabs are not allowed for indentation")
		}
		if d.lx.peek() == '#' {
			for d.lx.peek() != eof && d.lx.peek() != '\n' {
				d.lx.advance()
			}
		}
		if d.lx.peek() == '\n' {
			d.lx.advance()
			continue
		}
		if d.lx.peek() == eof {
			return nil
		}
		top := d.indentStack[len(d.indentStack)-1]
		switch {
		case col > top:
			d.indentStack = append(d.indentStack, col)
			d.pending = append(d.pending, Token{Kind: TokIndent})
		case col < top:
			for len(d.indentStack) > 1 && d.indentStack[len(d.indentStack)-1] > col {
				d.indentStack = d.indentStack[:len(d.indentStack)-1]
				d.pending = append(d.pending, Token{Kind: TokDedent})
			}
			if d.indentStack[len(d.indentStack)-1] != col {
				return newCompileError(CompileSyntax, d.lx.cursor, "inconsistent indentation")
			}
		}
		return nil
	}
}

func (d *dslLexer) finalDedents() (Token, error) {
	if len(d.indentStack) > 1 {
		d.indentStack = d.indentStack[:len(d.indentStack)-1]
		return Token{Kind: TokDedent}, nil
	}
	return Token{Kind: TokEOF}, nil
}
