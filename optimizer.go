package miniexpr

// Optimize runs the constant-folding and algebraic-simplification pass
// from spec.md §4.3 over e, rewriting the arena in place and returning
// the (possibly different) root. Folding never crosses a node marked
// non-pure, and re-runs type inference on any subtree it rewrites
// since folding can narrow a node's dtype (e.g. `x * 1` loses the f64
// promotion `1.0` would otherwise have forced).
func Optimize(e *Expr, vars map[string]VarDecl, varIdx map[string]int) (nodeRef, error) {
	opt := &optimizer{arena: e, vars: vars, varIdx: varIdx}
	root, err := opt.fold(e.Root())
	if err != nil {
		return 0, err
	}
	e.root = root
	// folding can change a subtree's dtype, so inference runs again over
	// the rewritten tree.
	p := &parser{arena: e, vars: vars, varIdx: varIdx}
	if err := p.inferTypes(root); err != nil {
		return 0, err
	}
	return root, nil
}

type optimizer struct {
	arena  *Expr
	vars   map[string]VarDecl
	varIdx map[string]int
}

func (o *optimizer) fold(r nodeRef) (nodeRef, error) {
	n := o.arena.at(r)
	if n.kind != CallKind {
		return r, nil
	}

	for i, a := range n.args {
		folded, err := o.fold(a)
		if err != nil {
			return 0, err
		}
		n.args[i] = folded
	}

	if identity, ok := o.applyIdentity(r); ok {
		return o.fold(identity)
	}

	if !n.pure {
		return r, nil
	}
	allConst := true
	for _, a := range n.args {
		if !o.arena.isConst(a) {
			allConst = false
			break
		}
	}
	if !allConst || len(n.args) == 0 {
		return r, nil
	}

	folded, ok := o.evalConst(n)
	if !ok {
		return r, nil
	}
	return o.arena.newConst(folded, n.rg), nil
}

// applyIdentity rewrites algebraic identities listed in spec.md §4.3:
// x+0, 0+x, x*1, 1*x, x-0, x/1, x**0→1, x**1→x, !!x→x. Returns the
// replacement node and true if an identity fired.
func (o *optimizer) applyIdentity(r nodeRef) (nodeRef, bool) {
	n := o.arena.at(r)
	if len(n.args) == 2 {
		lhs, rhs := n.args[0], n.args[1]
		l, rn := o.arena.at(lhs), o.arena.at(rhs)
		switch n.builtin {
		case OpAdd:
			if isZeroConst(rn) {
				return lhs, true
			}
			if isZeroConst(l) {
				return rhs, true
			}
		case OpSub:
			if isZeroConst(rn) {
				return lhs, true
			}
		case OpMul:
			if isOneConst(rn) {
				return lhs, true
			}
			if isOneConst(l) {
				return rhs, true
			}
		case OpDiv:
			if isOneConst(rn) {
				return lhs, true
			}
		case OpPow:
			if isZeroConst(rn) {
				return o.arena.newConst(NewIntConst(1, narrowestSignedInt(1)), n.rg), true
			}
			if isOneConst(rn) {
				return lhs, true
			}
		}
	}
	if len(n.args) == 1 && n.builtin == OpLogicalNot {
		inner := o.arena.at(n.args[0])
		if inner.kind == CallKind && inner.builtin == OpLogicalNot {
			return inner.args[0], true
		}
	}
	return 0, false
}

func isZeroConst(n *node) bool {
	return n.kind == ConstKind && !n.dtype.IsComplex() && n.constVal.AsFloat64() == 0
}

func isOneConst(n *node) bool {
	return n.kind == ConstKind && !n.dtype.IsComplex() && n.constVal.AsFloat64() == 1
}

// evalConst folds a fully-constant CallKind node by evaluating it in
// the scalar interpreter's kernel table, the same dispatch the block
// interpreter uses at runtime — constant folding is simply evaluation
// of a one-element block at compile time.
func (o *optimizer) evalConst(n *node) (ConstValue, bool) {
	args := make([]ConstValue, len(n.args))
	for i, a := range n.args {
		args[i] = o.arena.at(a).constVal
	}
	return evalBuiltinScalar(n.builtin, n.inputDtype, n.dtype, args)
}
