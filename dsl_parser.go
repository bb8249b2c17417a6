package miniexpr

import "strings"

// ParseDSL parses source as a `def kernel(...):` body, spec.md §3/§4.6.
// params supplies the declared dtype of every named parameter; the DSL
// body's own local variables are inferred from their first assignment
// and tracked in DSLProgram.locals.
func ParseDSL(source string, params []VarDecl) (*DSLProgram, error) {
	dl := newDSLLexer(source)
	p := newExprParser(dl, params)
	if err := p.advance(); err != nil {
		return nil, err
	}

	if err := p.expectIdent("def"); err != nil {
		return nil, err
	}
	if p.tok.Kind != TokIdent {
		return nil, newCompileError(CompileSyntax, p.tok.Rg.Start, "expected kernel name")
	}
	name := p.tok.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectKind(TokLParen); err != nil {
		return nil, err
	}
	for p.tok.Kind != TokRParen {
		if p.tok.Kind != TokIdent {
			return nil, newCompileError(CompileSyntax, p.tok.Rg.Start, "expected parameter name")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.Kind == TokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, err
	}
	if err := p.expectKind(TokColon); err != nil {
		return nil, err
	}
	if err := p.expectKind(TokNewline); err != nil {
		return nil, err
	}
	if err := p.expectKind(TokIndent); err != nil {
		return nil, err
	}

	for _, rv := range reservedIndexNames() {
		registerDSLLocal(p, rv, I64)
	}

	dp := &DSLProgram{
		Name:    name,
		Params:  params,
		Dialect: detectDialect(source),
		arena:   p.arena,
		varIdx:  p.varIdx,
		locals:  make(map[string]Dtype),
	}
	body, err := parseDSLBlock(p, dp)
	if err != nil {
		return nil, err
	}
	dp.Body = body
	return dp, nil
}

func detectDialect(source string) string {
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# me:dialect=") {
			v := strings.TrimPrefix(line, "# me:dialect=")
			v = strings.TrimSpace(v)
			if v == "element" {
				return "element"
			}
			return "vector"
		}
	}
	return "vector"
}

// registerDSLLocal makes a freshly-assigned DSL local resolvable by
// later expressions in the same body, mirroring how VarKind lookups
// already work for compile-time-declared parameters (p.vars).
func registerDSLLocal(p *parser, name string, dtype Dtype) {
	idx := len(p.varIdx)
	p.vars[name] = VarDecl{Name: name, Dtype: dtype}
	p.varIdx[name] = idx
}

// reservedIndexNames lists every identifier spec.md §4.6 reserves:
// per-dimension block-local index/shape up to MaxRank, plus rank and
// linear-index synonyms. Declared up front so expressions anywhere in
// a kernel body can reference them; populateReservedIndexVars
// (dsl_interp.go) fills their values per lane, on both the flat and
// the N-D evaluation paths.
func reservedIndexNames() []string {
	names := []string{"_ndim", "_flat_idx", "_global_linear_idx"}
	for d := 0; d < MaxRank; d++ {
		names = append(names, "_i"+itoa(d), "_n"+itoa(d))
	}
	return names
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func (p *parser) expectIdent(text string) error {
	if p.tok.Kind != TokIdent || p.tok.Text != text {
		return newCompileError(CompileSyntax, p.tok.Rg.Start, "expected %q", text)
	}
	return p.advance()
}

func (p *parser) expectKind(k TokenKind) error {
	if p.tok.Kind != k {
		return newCompileError(CompileSyntax, p.tok.Rg.Start, "unexpected token %q", p.tok.Text)
	}
	return p.advance()
}

func parseDSLBlock(p *parser, dp *DSLProgram) ([]dslStmt, error) {
	var stmts []dslStmt
	for p.tok.Kind != TokDedent && p.tok.Kind != TokEOF {
		if p.tok.Kind == TokNewline {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		s, err := parseDSLStmt(p, dp)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if p.tok.Kind == TokDedent {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return stmts, nil
}

func parseDSLStmt(p *parser, dp *DSLProgram) (dslStmt, error) {
	if p.tok.Kind == TokIdent {
		switch p.tok.Text {
		case "if":
			return parseDSLIf(p, dp)
		case "for":
			return parseDSLFor(p, dp)
		case "return":
			return parseDSLReturn(p, dp)
		case "break":
			if err := p.advance(); err != nil {
				return dslStmt{}, err
			}
			return dslStmt{kind: dslBreak}, p.consumeStmtEnd()
		case "continue":
			if err := p.advance(); err != nil {
				return dslStmt{}, err
			}
			return dslStmt{kind: dslContinue}, p.consumeStmtEnd()
		}
	}
	return parseDSLAssign(p, dp)
}

func (p *parser) consumeStmtEnd() error {
	if p.tok.Kind == TokNewline {
		return p.advance()
	}
	if p.tok.Kind == TokEOF || p.tok.Kind == TokDedent {
		return nil
	}
	return newCompileError(CompileSyntax, p.tok.Rg.Start, "expected end of statement")
}

func parseDSLAssign(p *parser, dp *DSLProgram) (dslStmt, error) {
	if p.tok.Kind != TokIdent {
		return dslStmt{}, newCompileError(CompileSyntax, p.tok.Rg.Start, "expected statement")
	}
	target := p.tok.Text
	startRg := p.tok.Rg
	if err := p.advance(); err != nil {
		return dslStmt{}, err
	}
	if p.tok.Kind != TokOp {
		return dslStmt{}, newCompileError(CompileSyntax, startRg.Start, "expected '=' or augmented assignment after %q", target)
	}
	op := p.tok.Text
	if err := p.advance(); err != nil {
		return dslStmt{}, err
	}
	rhs, err := p.parseExprPublic()
	if err != nil {
		return dslStmt{}, err
	}
	rhsDtype := p.arena.at(rhs).dtype

	if op == "=" {
		existing, isLocal := dp.locals[target]
		if isLocal {
			if widened, perr := Promote(existing, rhsDtype); perr != nil || widened != existing {
				return dslStmt{}, newCompileError(CompileTypeMismatch, startRg.Start, "reassignment of %q would narrow its dtype", target)
			}
		}
		if !isLocal {
			dp.locals[target] = rhsDtype
			registerDSLLocal(p, target, rhsDtype)
		}
		if err := p.consumeStmtEnd(); err != nil {
			return dslStmt{}, err
		}
		return dslStmt{kind: dslAssign, target: target, expr: rhs, declDtype: rhsDtype}, nil
	}

	augID, _ := binOpPrec(strings.TrimSuffix(op, "="))
	if augID == BuiltinInvalid {
		return dslStmt{}, newCompileError(CompileSyntax, startRg.Start, "unknown augmented assignment operator %q", op)
	}
	if err := p.consumeStmtEnd(); err != nil {
		return dslStmt{}, err
	}
	return dslStmt{kind: dslAugAssign, target: target, augOp: augID, expr: rhs}, nil
}

func parseDSLIf(p *parser, dp *DSLProgram) (dslStmt, error) {
	if err := p.advance(); err != nil { // consume 'if'
		return dslStmt{}, err
	}
	cond, err := p.parseExprPublic()
	if err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokColon); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokNewline); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokIndent); err != nil {
		return dslStmt{}, err
	}
	body, err := parseDSLBlock(p, dp)
	if err != nil {
		return dslStmt{}, err
	}

	stmt := dslStmt{kind: dslIf, expr: cond, body: body}
	for p.tok.Kind == TokIdent && p.tok.Text == "elif" {
		if err := p.advance(); err != nil {
			return dslStmt{}, err
		}
		ec, err := p.parseExprPublic()
		if err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokColon); err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokNewline); err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokIndent); err != nil {
			return dslStmt{}, err
		}
		eb, err := parseDSLBlock(p, dp)
		if err != nil {
			return dslStmt{}, err
		}
		stmt.elseIfs = append(stmt.elseIfs, dslIfClause{cond: ec, body: eb})
	}
	if p.tok.Kind == TokIdent && p.tok.Text == "else" {
		if err := p.advance(); err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokColon); err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokNewline); err != nil {
			return dslStmt{}, err
		}
		if err := p.expectKind(TokIndent); err != nil {
			return dslStmt{}, err
		}
		eb, err := parseDSLBlock(p, dp)
		if err != nil {
			return dslStmt{}, err
		}
		stmt.elseBody = eb
	}
	return stmt, nil
}

func parseDSLFor(p *parser, dp *DSLProgram) (dslStmt, error) {
	if err := p.advance(); err != nil { // consume 'for'
		return dslStmt{}, err
	}
	if p.tok.Kind != TokIdent {
		return dslStmt{}, newCompileError(CompileSyntax, p.tok.Rg.Start, "expected loop variable")
	}
	loopVar := p.tok.Text
	if err := p.advance(); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectIdent("in"); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectIdent("range"); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokLParen); err != nil {
		return dslStmt{}, err
	}
	bound, err := p.parseExprPublic()
	if err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokRParen); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokColon); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokNewline); err != nil {
		return dslStmt{}, err
	}
	if err := p.expectKind(TokIndent); err != nil {
		return dslStmt{}, err
	}

	dp.locals[loopVar] = I64
	registerDSLLocal(p, loopVar, I64)
	body, err := parseDSLBlock(p, dp)
	if err != nil {
		return dslStmt{}, err
	}
	return dslStmt{kind: dslFor, loopVar: loopVar, expr: bound, body: body}, nil
}

func parseDSLReturn(p *parser, dp *DSLProgram) (dslStmt, error) {
	if err := p.advance(); err != nil { // consume 'return'
		return dslStmt{}, err
	}
	val, err := p.parseExprPublic()
	if err != nil {
		return dslStmt{}, err
	}
	if err := p.consumeStmtEnd(); err != nil {
		return dslStmt{}, err
	}
	return dslStmt{kind: dslReturn, expr: val}, nil
}
