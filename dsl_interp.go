package miniexpr

import "github.com/clarete/miniexpr/simd"

// dslControl signals early exit from a statement list, the tree-walker
// equivalent of break/continue/return.
type dslControl int

const (
	dslNone dslControl = iota
	dslCtlBreak
	dslCtlContinue
	dslCtlReturn
)

// EvalDSLBlock runs dp once per lane of a blockLen-wide block
// (spec.md §4.6's "element dialect": "each output lane runs the
// program independently"). The vector dialect's mask-based
// short-circuiting (spec.md §4.6) is a performance optimisation over
// the same per-lane semantics — a lane inactive under the outer mask
// simply never reaches a `return`, which is exactly what independent
// per-lane execution already produces — so one interpreter loop serves
// both dialects. DSLProgram.Dialect is carried into the JIT's KernelIR
// and fingerprint; jit.Lower emits the same per-row loop for both
// dialects.
func EvalDSLBlock(dp *DSLProgram, paramBufs []buffer, blockLen int, policy simd.Policy) (buffer, error) {
	return evalDSLBlockAt(dp, paramBufs, blockLen, policy, 0, blockLen)
}

// evalDSLBlockAt is EvalDSLBlock plus the running position a flat Eval
// call is at: start is this block's offset into the overall nitems
// run, total is that run's length. A flat call has no N-D layout, so
// spec.md §4.6's reserved identifiers are resolved as a rank-1 walk:
// _i0 is the lane, _n0 is the run length, _flat_idx/_global_linear_idx
// is start+lane — the same "global linear index of the current
// element" the N-D dispatcher produces, just without chunk/block
// tiling on top of it.
func evalDSLBlockAt(dp *DSLProgram, paramBufs []buffer, blockLen int, policy simd.Policy, start, total int) (buffer, error) {
	out := vectorBuffer(resolveDSLOutputDtype(dp), blockLen)
	shape := [MaxRank]int{total}
	globalStart := [MaxRank]int{start}
	for lane := 0; lane < blockLen; lane++ {
		vars := make([]buffer, len(dp.varIdx))
		for i, d := range dp.Params {
			vars[dp.varIdx[d.Name]] = scalarBuffer(vectorElemOrScalar(paramBufs[i], lane))
		}
		populateReservedIndexVars(dp, vars, 1, shape, globalStart, [MaxRank]int{lane})
		result, ctl, err := execDSLBlock(dp, dp.Body, vars, policy)
		if err != nil {
			return buffer{}, err
		}
		if ctl != dslCtlReturn {
			storeConst(&out, lane, zeroValue(out.dtype))
			continue
		}
		storeConst(&out, lane, result)
	}
	return out, nil
}

// EvalDSLBlockND is evalDSLBlockAt's N-D counterpart (spec.md §4.7): it
// resolves the reserved index identifiers from layout/ext per lane
// instead of treating the block as a flat rank-1 run. A lane outside
// ext.Valid is padding; per spec.md §8 scenario 6 it is written as the
// output dtype's zero value without running the kernel body at all, so
// a kernel reading an input buffer near the block boundary never reads
// past the caller-supplied valid region.
func EvalDSLBlockND(dp *DSLProgram, paramBufs []buffer, blockLen int, policy simd.Policy, layout *NDLayout, ext BlockExtent) (buffer, error) {
	out := vectorBuffer(resolveDSLOutputDtype(dp), blockLen)
	rank := layout.Rank
	blockPerDim := layout.Block[:rank]
	for lane := 0; lane < blockLen; lane++ {
		localIdx := decompose(lane, blockPerDim, rank)
		if !withinValid(localIdx, ext.Valid, rank) {
			storeConst(&out, lane, zeroValue(out.dtype))
			continue
		}
		vars := make([]buffer, len(dp.varIdx))
		for i, d := range dp.Params {
			vars[dp.varIdx[d.Name]] = scalarBuffer(vectorElemOrScalar(paramBufs[i], lane))
		}
		populateReservedIndexVars(dp, vars, rank, layout.Shape, ext.GlobalStart, localIdx)
		result, ctl, err := execDSLBlock(dp, dp.Body, vars, policy)
		if err != nil {
			return buffer{}, err
		}
		if ctl != dslCtlReturn {
			storeConst(&out, lane, zeroValue(out.dtype))
			continue
		}
		storeConst(&out, lane, result)
	}
	return out, nil
}

func withinValid(localIdx [MaxRank]int, valid [MaxRank]int, rank int) bool {
	for d := 0; d < rank; d++ {
		if localIdx[d] >= valid[d] {
			return false
		}
	}
	return true
}

// populateReservedIndexVars fills the reserved _i0.._flat_idx slots
// (spec.md §4.6) in vars for one lane, given the rank, the full shape
// per dimension, the block's global starting offset per dimension, and
// the lane's block-local index per dimension. Dimensions at or beyond
// rank are zero-filled: a kernel declaring _i5 in a rank-2 context asks
// for a dimension that doesn't exist, and reads back 0 rather than
// undefined garbage. Only slots the parser actually registered
// (reservedIndexNames, dsl_parser.go) are touched — vars is already
// sized to len(dp.varIdx) by the caller.
func populateReservedIndexVars(dp *DSLProgram, vars []buffer, rank int, shape, globalStart, localIdx [MaxRank]int) {
	set := func(name string, v ConstValue) {
		if idx, ok := dp.varIdx[name]; ok {
			vars[idx] = scalarBuffer(v)
		}
	}

	var flat int64
	var stride int64 = 1
	for d := rank - 1; d >= 0; d-- {
		flat += int64(globalStart[d]+localIdx[d]) * stride
		stride *= int64(shape[d])
	}

	set("_ndim", NewIntConst(int64(rank), I64))
	set("_flat_idx", NewIntConst(flat, I64))
	set("_global_linear_idx", NewIntConst(flat, I64))
	for d := 0; d < MaxRank; d++ {
		var iv, nv int64
		if d < rank {
			iv = int64(localIdx[d])
			nv = int64(shape[d])
		}
		set("_i"+itoa(d), NewIntConst(iv, I64))
		set("_n"+itoa(d), NewIntConst(nv, I64))
	}
}

func vectorElemOrScalar(b buffer, i int) ConstValue {
	if b.isScalar {
		return scalarToConst(b)
	}
	return vectorElemToConst(b, i)
}

func zeroValue(d Dtype) ConstValue {
	switch {
	case d.IsFloat():
		return NewFloatConst(0, d)
	case d.IsUnsignedInteger():
		return NewUintConst(0, d)
	case d.IsComplex():
		return NewComplexConst(0, d)
	case d == Bool:
		return NewBoolConst(false)
	case d == Str:
		return NewStringConst(nil)
	default:
		return NewIntConst(0, d)
	}
}

// resolveDSLOutputDtype infers the kernel's output dtype from its
// `return` statements — the DSL has no explicit output-dtype
// declaration (spec.md §3), so the dtype of the first return met in a
// depth-first walk of the body settles it; later returns are not
// compared against it, and a body with no return yields F64.
func resolveDSLOutputDtype(dp *DSLProgram) Dtype {
	var found Dtype = F64
	var walk func([]dslStmt) bool
	walk = func(stmts []dslStmt) bool {
		for _, s := range stmts {
			switch s.kind {
			case dslReturn:
				found = dp.arena.at(s.expr).dtype
				return true
			case dslIf:
				if walk(s.body) {
					return true
				}
				for _, ei := range s.elseIfs {
					if walk(ei.body) {
						return true
					}
				}
				if walk(s.elseBody) {
					return true
				}
			case dslFor:
				if walk(s.body) {
					return true
				}
			}
		}
		return false
	}
	walk(dp.Body)
	return found
}

func execDSLBlock(dp *DSLProgram, stmts []dslStmt, vars []buffer, policy simd.Policy) (ConstValue, dslControl, error) {
	for _, s := range stmts {
		result, ctl, err := execDSLStmt(dp, s, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		if ctl != dslNone {
			return result, ctl, nil
		}
	}
	return ConstValue{}, dslNone, nil
}

func execDSLStmt(dp *DSLProgram, s dslStmt, vars []buffer, policy simd.Policy) (ConstValue, dslControl, error) {
	switch s.kind {
	case dslAssign:
		v, err := evalExprScalar(dp.arena, s.expr, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		vars[dp.varIdx[s.target]] = scalarBuffer(v)
		return ConstValue{}, dslNone, nil

	case dslAugAssign:
		cur := scalarToConst(vars[dp.varIdx[s.target]])
		rhs, err := evalExprScalar(dp.arena, s.expr, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		dtype, err := Promote(cur.Dtype, rhs.Dtype)
		if err != nil {
			return ConstValue{}, dslNone, &CompileError{Code: CompileTypeMismatch, Message: err.Error()}
		}
		combined, ok := evalBuiltinScalar(s.augOp, dtype, dtype, []ConstValue{cur, rhs})
		if !ok {
			return ConstValue{}, dslNone, &CompileError{Code: CompileTypeMismatch, Message: "augmented assignment failed"}
		}
		vars[dp.varIdx[s.target]] = scalarBuffer(combined)
		return ConstValue{}, dslNone, nil

	case dslIf:
		cond, err := evalExprScalar(dp.arena, s.expr, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		if cond.AsBool() {
			return execDSLBlock(dp, s.body, vars, policy)
		}
		for _, ei := range s.elseIfs {
			c, err := evalExprScalar(dp.arena, ei.cond, vars, policy)
			if err != nil {
				return ConstValue{}, dslNone, err
			}
			if c.AsBool() {
				return execDSLBlock(dp, ei.body, vars, policy)
			}
		}
		return execDSLBlock(dp, s.elseBody, vars, policy)

	case dslFor:
		bound, err := evalExprScalar(dp.arena, s.expr, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		n := bound.AsInt64()
		for i := int64(0); i < n; i++ {
			vars[dp.varIdx[s.loopVar]] = scalarBuffer(NewIntConst(i, I64))
			result, ctl, err := execDSLBlock(dp, s.body, vars, policy)
			if err != nil {
				return ConstValue{}, dslNone, err
			}
			if ctl == dslCtlReturn {
				return result, ctl, nil
			}
			if ctl == dslCtlBreak {
				break
			}
			// dslCtlContinue and dslNone both fall through to the next iteration
		}
		return ConstValue{}, dslNone, nil

	case dslReturn:
		v, err := evalExprScalar(dp.arena, s.expr, vars, policy)
		if err != nil {
			return ConstValue{}, dslNone, err
		}
		return v, dslCtlReturn, nil

	case dslBreak:
		return ConstValue{}, dslCtlBreak, nil

	case dslContinue:
		return ConstValue{}, dslCtlContinue, nil
	}
	return ConstValue{}, dslNone, nil
}

// evalExprScalar evaluates one arena expression against a single lane
// of scalar variable bindings, reusing the block interpreter's node
// walker (evalNode) with a one-element block.
func evalExprScalar(arena *Expr, root nodeRef, vars []buffer, policy simd.Policy) (ConstValue, error) {
	ctx := &evalContext{arena: arena, vars: vars, policy: policy}
	if err := evalNode(ctx, root, 1); err != nil {
		return ConstValue{}, err
	}
	return scalarToConst(ctx.scratch.pop()), nil
}
