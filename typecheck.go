package miniexpr

// inferTypes runs dtype inference bottom-up over the tree rooted at r,
// per spec.md §4.2. It runs right after parsing (and again from
// Optimize over the folded tree) rather than as a separate walk over
// an untyped tree, mirroring the
// teacher's grammar_parser.go style of building semantic metadata
// while descending the same recursion the parser already did — here
// it is a second pass only because operator promotion needs both
// children's dtypes settled first.
func (p *parser) inferTypes(r nodeRef) error {
	n := p.arena.at(r)
	switch n.kind {
	case ConstKind:
		// literal dtype was already assigned at parse time (narrowest
		// signed int, or f64 default for floats); nothing to resolve
		// until a sibling narrows it, which happens in the parent
		// CallKind case below.
		return nil

	case VarKind:
		decl, ok := p.vars[n.varName]
		if !ok {
			return newCompileError(CompileUnresolvedName, n.rg.Start, "unresolved name %q", n.varName)
		}
		if decl.Dtype == AUTO {
			return newCompileError(CompileTypeMismatch, n.rg.Start, "variable %q has no resolvable dtype", n.varName)
		}
		n.dtype = decl.Dtype
		n.inputDtype = decl.Dtype
		n.varIndex = p.varIdx[n.varName]
		return nil

	case CallKind:
		for _, a := range n.args {
			if err := p.inferTypes(a); err != nil {
				return err
			}
		}
		return p.inferCallDtype(r)
	}
	return nil
}

// inferCallDtype applies the literal-narrowing adjustment, the
// promotion lattice, and the operator/builtin's output-dtype rule to
// node r, whose children already have resolved dtypes.
func (p *parser) inferCallDtype(r nodeRef) error {
	n := p.arena.at(r)

	entry, ok := lookupBuiltinByID(n.builtin)
	if !ok {
		// a closure variable call: no registry entry, dtype is
		// whatever the declared closure's return type would be — the
		// engine has no signature for that, so closures are only
		// legal as AUTO-output top-level calls and keep AUTO here;
		// the compiled handle's output-dtype resolution (api.go)
		// fails loudly if one appears where a concrete dtype is
		// required.
		n.dtype = AUTO
		n.inputDtype = AUTO
		return nil
	}

	if len(n.args) == 2 && !entry.ID.IsStringOnly() {
		applyLiteralFloatNarrowing(p.arena, n.args[0], n.args[1])
	}

	var input Dtype
	switch len(n.args) {
	case 0:
		input = AUTO
	case 1:
		input = p.arena.at(n.args[0]).dtype
	default:
		first := 0
		if entry.ID == BWhere {
			// where(c, x, y): c is only the lane mask, so the operand
			// dtype is promoted from the branches x and y alone.
			first = 1
		}
		input = p.arena.at(n.args[first]).dtype
		for _, a := range n.args[first+1:] {
			childDtype := p.arena.at(a).dtype
			if input == childDtype {
				continue
			}
			if !entry.ID.AllowsString() && (input == Str || childDtype == Str) {
				return newCompileError(CompileTypeMismatch, n.rg.Start, "%q does not accept string operands", n.name)
			}
			promoted, err := Promote(input, childDtype)
			if err != nil {
				return newCompileError(CompileTypeMismatch, n.rg.Start, "%s", err.Error())
			}
			input = promoted
		}
	}

	n.inputDtype = input
	out, err := entry.Rule(input)
	if err != nil {
		return newCompileError(CompileTypeMismatch, n.rg.Start, "%s", err.Error())
	}
	n.dtype = out
	return nil
}

// applyLiteralFloatNarrowing implements spec.md §4.2's literal policy:
// "numeric literals with a fractional part or exponent are typed as
// the narrowest float that matches the other operand's width." A
// float literal defaults to f64 at parse time (it doesn't yet know its
// sibling); once both children are typed, narrow it to f32 if its
// sibling is f32.
func applyLiteralFloatNarrowing(e *Expr, a, b nodeRef) {
	na, nb := e.at(a), e.at(b)
	if na.kind == ConstKind && na.dtype == F64 && nb.dtype == F32 {
		narrowFloatConst(na)
	}
	if nb.kind == ConstKind && nb.dtype == F64 && na.dtype == F32 {
		narrowFloatConst(nb)
	}
}

func narrowFloatConst(n *node) {
	n.dtype = F32
	n.inputDtype = F32
	n.constVal.Dtype = F32
}
