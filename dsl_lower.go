package miniexpr

import (
	"fmt"
	"strings"

	"github.com/clarete/miniexpr/jit"
)

// dslLowerState accumulates the facts lowerDSLToKernelIR needs across
// the whole body walk (which gate-sensitive constructs were touched,
// which locals have already been declared) — mirrors resolveDSLOutputDtype's
// single-pass walk over dp.Body, but also renders C text as it goes.
type dslLowerState struct {
	arena             *Expr
	usesReservedIndex bool
	usesComplex       bool
	usesString        bool
	declared          map[string]bool
}

// reservedIndexCExpr maps a DSL reserved identifier to the C expression
// jit/lower.go's Lower makes available inside the row loop. Only
// _flat_idx/_global_linear_idx have a native-kernel equivalent: a
// `void kernel_block(..., const long indices[])` call has no shape
// metadata to reconstruct _i0.._n0/_ndim from, so a kernel referencing
// those falls back to the interpreter instead of guessing.
var reservedIndexCExpr = map[string]string{
	"_flat_idx":          "_flat_idx",
	"_global_linear_idx": "_flat_idx",
}

// lowerDSLToKernelIR translates a parsed kernel DSL program into the
// jit package's KernelIR, the one-time bridge CompileDSL walks when
// DSL_JIT=1 (spec.md §4.8). Returns an error for any construct the C
// generator can't express (a reduction builtin, a reserved index
// variable beyond _flat_idx) — the caller treats that exactly like a
// gate failure and keeps the interpreter path.
func lowerDSLToKernelIR(dp *DSLProgram, outDtype Dtype) (jit.KernelIR, error) {
	outCType, ok := cTypeForDtype(outDtype)
	if !ok {
		return jit.KernelIR{}, fmt.Errorf("jit lowering: output dtype %s has no C representation", outDtype)
	}

	params := make([]jit.Param, 0, len(dp.Params))
	for _, d := range dp.Params {
		ct, ok := cTypeForDtype(d.Dtype)
		if !ok {
			return jit.KernelIR{}, fmt.Errorf("jit lowering: parameter %q has dtype %s with no C representation", d.Name, d.Dtype)
		}
		params = append(params, jit.Param{Name: d.Name, CType: ct})
	}

	st := &dslLowerState{arena: dp.arena, declared: make(map[string]bool)}
	body, err := st.lowerStmts(dp.Body)
	if err != nil {
		return jit.KernelIR{}, err
	}

	return jit.KernelIR{
		Params:            params,
		OutputCType:       outCType,
		Body:              body,
		Dialect:           dp.Dialect,
		UsesReservedIndex: st.usesReservedIndex,
		UsesComplex:       st.usesComplex,
		UsesString:        st.usesString,
	}, nil
}

func cTypeForDtype(d Dtype) (string, bool) {
	switch d {
	case I8, I16, I32:
		return "int", true
	case I64:
		return "long long", true
	case U8, U16, U32:
		return "unsigned int", true
	case U64:
		return "unsigned long long", true
	case F32:
		return "float", true
	case F64:
		return "double", true
	case Bool:
		return "int", true
	}
	return "", false
}

func (st *dslLowerState) lowerStmts(stmts []dslStmt) ([]jit.Stmt, error) {
	out := make([]jit.Stmt, 0, len(stmts))
	for _, s := range stmts {
		lowered, err := st.lowerStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, lowered)
	}
	return out, nil
}

func (st *dslLowerState) lowerStmt(s dslStmt) (jit.Stmt, error) {
	switch s.kind {
	case dslAssign:
		expr, err := st.cExpr(s.expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		ct := ""
		if !st.declared[s.target] {
			var ok bool
			ct, ok = cTypeForDtype(st.arena.at(s.expr).dtype)
			if !ok {
				return jit.Stmt{}, fmt.Errorf("jit lowering: local %q has no C representation", s.target)
			}
			st.declared[s.target] = true
		}
		return jit.Stmt{Kind: jit.StmtAssign, Target: s.target, CType: ct, Expr: expr}, nil

	case dslAugAssign:
		expr, err := st.cExpr(s.expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		combined, err := st.cBinaryOp(s.augOp, s.target, expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		return jit.Stmt{Kind: jit.StmtAssign, Target: s.target, Expr: combined}, nil

	case dslIf:
		cond, err := st.cExpr(s.expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		then, err := st.lowerStmts(s.body)
		if err != nil {
			return jit.Stmt{}, err
		}
		elseBody, err := st.lowerElseChain(s.elseIfs, s.elseBody)
		if err != nil {
			return jit.Stmt{}, err
		}
		return jit.Stmt{Kind: jit.StmtIf, Cond: cond, Then: then, Else: elseBody}, nil

	case dslFor:
		bound, err := st.cExpr(s.expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		body, err := st.lowerStmts(s.body)
		if err != nil {
			return jit.Stmt{}, err
		}
		return jit.Stmt{Kind: jit.StmtFor, LoopVar: s.loopVar, LoopBound: bound, Body: body}, nil

	case dslReturn:
		expr, err := st.cExpr(s.expr)
		if err != nil {
			return jit.Stmt{}, err
		}
		return jit.Stmt{Kind: jit.StmtReturn, Expr: expr}, nil

	case dslBreak:
		return jit.Stmt{Kind: jit.StmtBreak}, nil

	case dslContinue:
		return jit.Stmt{Kind: jit.StmtContinue}, nil
	}
	return jit.Stmt{}, fmt.Errorf("jit lowering: unhandled statement kind %d", s.kind)
}

// lowerElseChain folds an elif chain into nested Else blocks, since
// jit.Stmt models if/else as a binary Then/Else pair rather than a
// clause list.
func (st *dslLowerState) lowerElseChain(elseIfs []dslIfClause, elseBody []dslStmt) ([]jit.Stmt, error) {
	if len(elseIfs) == 0 {
		return st.lowerStmts(elseBody)
	}
	head := elseIfs[0]
	cond, err := st.cExpr(head.cond)
	if err != nil {
		return nil, err
	}
	then, err := st.lowerStmts(head.body)
	if err != nil {
		return nil, err
	}
	rest, err := st.lowerElseChain(elseIfs[1:], elseBody)
	if err != nil {
		return nil, err
	}
	return []jit.Stmt{{Kind: jit.StmtIf, Cond: cond, Then: then, Else: rest}}, nil
}

// cBinaryOp renders `target OP rhs` as a C expression for an augmented
// assignment, reusing the same operator mapping as cExpr.
func (st *dslLowerState) cBinaryOp(id BuiltinID, lhs, rhs string) (string, error) {
	return st.renderOp(id, []string{lhs, rhs})
}

// cExpr renders the arena expression rooted at r as a C expression
// fragment, the per-node counterpart to ast.go's writeNode (which
// renders back to MiniExpr infix source instead of C).
func (st *dslLowerState) cExpr(r nodeRef) (string, error) {
	n := st.arena.at(r)
	if n.dtype.IsComplex() {
		st.usesComplex = true
	}
	if n.dtype == Str {
		st.usesString = true
	}
	switch n.kind {
	case ConstKind:
		return cLiteral(n.constVal), nil
	case VarKind:
		if cname, ok := reservedIndexCExpr[n.varName]; ok {
			st.usesReservedIndex = true
			return cname, nil
		}
		if isOtherReservedIndexName(n.varName) {
			return "", fmt.Errorf("jit lowering: reserved variable %q has no native-kernel representation", n.varName)
		}
		return n.varName, nil
	case CallKind:
		args := make([]string, len(n.args))
		for i, a := range n.args {
			s, err := st.cExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return st.renderOp(n.builtin, args)
	}
	return "", fmt.Errorf("jit lowering: unhandled node kind %d", n.kind)
}

func isOtherReservedIndexName(name string) bool {
	if name == "_ndim" {
		return true
	}
	for d := 0; d < MaxRank; d++ {
		if name == "_i"+itoa(d) || name == "_n"+itoa(d) {
			return true
		}
	}
	return false
}

func cLiteral(v ConstValue) string {
	switch {
	case v.Dtype == Bool:
		if v.I != 0 {
			return "1"
		}
		return "0"
	case v.Dtype.IsUnsignedInteger():
		return fmt.Sprintf("%dULL", v.U)
	case v.Dtype.IsFloat():
		return fmt.Sprintf("%g", v.F)
	default:
		return fmt.Sprintf("%d", v.I)
	}
}

// renderOp maps one BuiltinID to a C expression over its already-lowered
// operand strings. Reductions and string-only builtins have no
// per-element C translation and are reported as lowering errors, which
// CompileDSL treats as "skip JIT for this kernel" rather than a hard
// failure.
func (st *dslLowerState) renderOp(id BuiltinID, a []string) (string, error) {
	switch id {
	case OpAdd:
		return fmt.Sprintf("(%s + %s)", a[0], a[1]), nil
	case OpSub:
		return fmt.Sprintf("(%s - %s)", a[0], a[1]), nil
	case OpMul:
		return fmt.Sprintf("(%s * %s)", a[0], a[1]), nil
	case OpDiv:
		return fmt.Sprintf("((double)(%s) / (double)(%s))", a[0], a[1]), nil
	case OpMod:
		return fmt.Sprintf("fmod((double)(%s), (double)(%s))", a[0], a[1]), nil
	case OpPow:
		return fmt.Sprintf("pow((double)(%s), (double)(%s))", a[0], a[1]), nil
	case OpNeg:
		return fmt.Sprintf("(-(%s))", a[0]), nil
	case OpPos:
		return a[0], nil
	case OpBitAnd:
		return fmt.Sprintf("(%s & %s)", a[0], a[1]), nil
	case OpBitOr:
		return fmt.Sprintf("(%s | %s)", a[0], a[1]), nil
	case OpBitXor:
		return fmt.Sprintf("(%s ^ %s)", a[0], a[1]), nil
	case OpBitNot:
		return fmt.Sprintf("(~(%s))", a[0]), nil
	case OpShl:
		return fmt.Sprintf("(%s << %s)", a[0], a[1]), nil
	case OpShr:
		return fmt.Sprintf("(%s >> %s)", a[0], a[1]), nil
	case OpEq:
		return fmt.Sprintf("(%s == %s)", a[0], a[1]), nil
	case OpNe:
		return fmt.Sprintf("(%s != %s)", a[0], a[1]), nil
	case OpLt:
		return fmt.Sprintf("(%s < %s)", a[0], a[1]), nil
	case OpLe:
		return fmt.Sprintf("(%s <= %s)", a[0], a[1]), nil
	case OpGt:
		return fmt.Sprintf("(%s > %s)", a[0], a[1]), nil
	case OpGe:
		return fmt.Sprintf("(%s >= %s)", a[0], a[1]), nil
	case OpLogicalAnd:
		return fmt.Sprintf("(%s && %s)", a[0], a[1]), nil
	case OpLogicalOr:
		return fmt.Sprintf("(%s || %s)", a[0], a[1]), nil
	case OpLogicalNot:
		return fmt.Sprintf("(!(%s))", a[0]), nil
	case BAbs:
		return fmt.Sprintf("fabs((double)(%s))", a[0]), nil
	case BSqrt:
		return fmt.Sprintf("sqrt((double)(%s))", a[0]), nil
	case BSin:
		return fmt.Sprintf("sin((double)(%s))", a[0]), nil
	case BCos:
		return fmt.Sprintf("cos((double)(%s))", a[0]), nil
	case BTan:
		return fmt.Sprintf("tan((double)(%s))", a[0]), nil
	case BAsin:
		return fmt.Sprintf("asin((double)(%s))", a[0]), nil
	case BAcos:
		return fmt.Sprintf("acos((double)(%s))", a[0]), nil
	case BAtan:
		return fmt.Sprintf("atan((double)(%s))", a[0]), nil
	case BAtan2:
		return fmt.Sprintf("atan2((double)(%s), (double)(%s))", a[0], a[1]), nil
	case BExp:
		return fmt.Sprintf("exp((double)(%s))", a[0]), nil
	case BExpm1:
		return fmt.Sprintf("expm1((double)(%s))", a[0]), nil
	case BExp2:
		return fmt.Sprintf("exp2((double)(%s))", a[0]), nil
	case BExp10:
		return fmt.Sprintf("pow(10.0, (double)(%s))", a[0]), nil
	case BLog:
		return fmt.Sprintf("log((double)(%s))", a[0]), nil
	case BLog10:
		return fmt.Sprintf("log10((double)(%s))", a[0]), nil
	case BLog1p:
		return fmt.Sprintf("log1p((double)(%s))", a[0]), nil
	case BLog2:
		return fmt.Sprintf("log2((double)(%s))", a[0]), nil
	case BSinh:
		return fmt.Sprintf("sinh((double)(%s))", a[0]), nil
	case BCosh:
		return fmt.Sprintf("cosh((double)(%s))", a[0]), nil
	case BTanh:
		return fmt.Sprintf("tanh((double)(%s))", a[0]), nil
	case BAsinh:
		return fmt.Sprintf("asinh((double)(%s))", a[0]), nil
	case BAcosh:
		return fmt.Sprintf("acosh((double)(%s))", a[0]), nil
	case BAtanh:
		return fmt.Sprintf("atanh((double)(%s))", a[0]), nil
	case BSinpi:
		return fmt.Sprintf("sin(M_PI * (double)(%s))", a[0]), nil
	case BCospi:
		return fmt.Sprintf("cos(M_PI * (double)(%s))", a[0]), nil
	case BCbrt:
		return fmt.Sprintf("cbrt((double)(%s))", a[0]), nil
	case BErf:
		return fmt.Sprintf("erf((double)(%s))", a[0]), nil
	case BErfc:
		return fmt.Sprintf("erfc((double)(%s))", a[0]), nil
	case BTgamma:
		return fmt.Sprintf("tgamma((double)(%s))", a[0]), nil
	case BLgamma:
		return fmt.Sprintf("lgamma((double)(%s))", a[0]), nil
	case BPow:
		return fmt.Sprintf("pow((double)(%s), (double)(%s))", a[0], a[1]), nil
	case BHypot:
		return fmt.Sprintf("hypot((double)(%s), (double)(%s))", a[0], a[1]), nil
	case BWhere:
		return fmt.Sprintf("((%s) ? (%s) : (%s))", a[0], a[1], a[2]), nil
	}
	if id.IsReduction() {
		name := "?"
		if e, ok := lookupBuiltinByID(id); ok {
			name = e.Name
		}
		return "", fmt.Errorf("jit lowering: reduction builtin %q has no per-element C translation", name)
	}
	if id.IsStringOnly() {
		name := "?"
		if e, ok := lookupBuiltinByID(id); ok {
			name = e.Name
		}
		return "", fmt.Errorf("jit lowering: string builtin %q has no C translation", name)
	}
	return "", fmt.Errorf("jit lowering: unsupported builtin id %d", id)
}

// dslDtypeSig renders the resolved dtypes of a kernel's parameters and
// output into the stable string jit.FingerprintInputs.DtypeSig expects
// — part of spec.md §4.8's "deterministic fingerprint... computed
// over... resolved dtypes of parameters."
func dslDtypeSig(dp *DSLProgram, outDtype Dtype) string {
	var b strings.Builder
	b.WriteString(outDtype.String())
	for _, p := range dp.Params {
		b.WriteByte(';')
		b.WriteString(p.Name)
		b.WriteByte(':')
		b.WriteString(p.Dtype.String())
	}
	return b.String()
}

// dslLayoutSig renders an N-D layout (or the absence of one, for a
// flat kernel) into the stable string jit.FingerprintInputs.LayoutSig
// expects.
func dslLayoutSig(layout *NDLayout) string {
	if layout == nil {
		return "flat"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "r%d", layout.Rank)
	for d := 0; d < layout.Rank; d++ {
		fmt.Fprintf(&b, ";%d,%d,%d", layout.Shape[d], layout.Chunk[d], layout.Block[d])
	}
	return b.String()
}

// attemptDSLJIT runs the full spec.md §4.8 pipeline — lowering, gating,
// fingerprinting, cache lookup, backend compilation — for one kernel
// DSL program, and returns the loaded native kernel on success. Any
// failure at any stage (including lowerDSLToKernelIR's own "can't
// represent this in C" errors, which are folded into the same
// ErrFallback-shaped outcome as a gate or backend failure) returns a
// nil kernel; CompileDSL treats that exactly like DSL_JIT being unset
// and keeps the tree-walking interpreter.
func attemptDSLJIT(dp *DSLProgram, outDtype Dtype, layout *NDLayout, cfg *Config) *jit.Kernel {
	if cfg == nil || !cfg.jitEnabled() {
		return nil
	}

	ir, err := lowerDSLToKernelIR(dp, outDtype)
	if err != nil {
		return nil
	}

	cache, err := jit.NewCache(cfg.tmpdir())
	if err != nil {
		return nil
	}
	backend := cfg.newJITBackend()
	compiler := jit.NewCompiler(cache, backend, cfg.toGateConfig())

	fp := jit.Fingerprint(jit.FingerprintInputs{
		Source:       dp.Name,
		DtypeSig:     dslDtypeSig(dp, outDtype),
		LayoutSig:    dslLayoutSig(layout),
		EngineVer:    EngineVersion,
		CompilerID:   cfg.compilerID(),
		Dialect:      dp.Dialect,
		AccuracyMode: defaultParams().ULPMode.String(),
	})

	kernel, err := compiler.Build(fp, dslDtypeSig(dp, outDtype), cfg.compilerID(), ir)
	if err != nil {
		return nil
	}
	return kernel
}
