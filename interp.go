package miniexpr

import (
	"math"
	"unicode/utf8"

	"github.com/clarete/miniexpr/simd"
)

// BlockSize is the default element count per interpreter block,
// spec.md §4.4: "a natural choice is 1024-4096 elements tuned for
// L1/L2 cache."
const BlockSize = 2048

// evalContext carries the inputs the block interpreter needs while
// walking one compiled Expr over one block: variable buffers, the
// SIMD policy for this call, and the scratch tempStack. EvalBlock
// builds a fresh context, and so a fresh scratch, for every block.
type evalContext struct {
	arena   *Expr
	vars    []buffer // indexed by VarKind.varIndex
	policy  simd.Policy
	scratch tempStack
}

// evalNode walks r in post order over a block of width blockLen,
// leaving the result on top of ctx.scratch.
func evalNode(ctx *evalContext, r nodeRef, blockLen int) error {
	n := ctx.arena.at(r)
	switch n.kind {
	case ConstKind:
		ctx.scratch.push(scalarBuffer(n.constVal))
		return nil

	case VarKind:
		ctx.scratch.push(ctx.vars[n.varIndex])
		return nil

	case CallKind:
		for _, a := range n.args {
			if err := evalNode(ctx, a, blockLen); err != nil {
				return err
			}
		}
		args := ctx.scratch.popN(len(n.args))
		if n.builtin.IsReduction() {
			result, err := applyReduction(n.builtin, n.dtype, args[0])
			if err != nil {
				return err
			}
			ctx.scratch.push(result)
			return nil
		}
		result, err := applyOp(ctx.policy, n.builtin, n.inputDtype, n.dtype, blockLen, args)
		if err != nil {
			return err
		}
		ctx.scratch.push(result)
		return nil
	}
	return nil
}

// EvalBlock evaluates e over one block of up to BlockSize elements and
// returns the (possibly cast) result buffer. vars holds one buffer
// per compiled variable slot (scalars broadcast automatically — see
// buffer.go). This is the single-block primitive both Eval (looping
// over BlockSize-sized chunks of a flat 1-D call) and the N-D
// dispatcher's per-block evaluation funnel through.
func EvalBlock(e *Expr, outDtype Dtype, vars []buffer, blockLen int, p simd.Policy) (buffer, error) {
	ctx := &evalContext{arena: e, vars: vars, policy: p}
	if err := evalNode(ctx, e.Root(), blockLen); err != nil {
		return buffer{}, err
	}
	result := ctx.scratch.pop()
	return castBuffer(result, outDtype, blockLen)
}

func castBuffer(b buffer, outDtype Dtype, blockLen int) (buffer, error) {
	if outDtype == AUTO || outDtype == b.dtype {
		return b, nil
	}
	if !representable(b.dtype, outDtype) {
		return buffer{}, &CompileError{Code: CompileTypeUnrepresentable, Message: "output dtype not reachable from root dtype"}
	}
	if b.isScalar {
		return scalarBuffer(castConst(scalarToConst(b), outDtype)), nil
	}
	n := b.length()
	out := vectorBuffer(outDtype, n)
	for i := 0; i < n; i++ {
		v := castConst(vectorElemToConst(b, i), outDtype)
		storeConst(&out, i, v)
	}
	return out, nil
}

func scalarToConst(b buffer) ConstValue {
	switch {
	case b.dtype.IsSignedInteger():
		return NewIntConst(b.sI, b.dtype)
	case b.dtype.IsUnsignedInteger():
		return NewUintConst(b.sU, b.dtype)
	case b.dtype.IsFloat():
		return NewFloatConst(b.sF, b.dtype)
	case b.dtype.IsComplex():
		return NewComplexConst(b.sC, b.dtype)
	case b.dtype == Bool:
		return NewBoolConst(b.sB)
	default:
		return NewStringConst(b.sS)
	}
}

func vectorElemToConst(b buffer, i int) ConstValue {
	switch {
	case b.vI != nil:
		return NewIntConst(b.vI[i], b.dtype)
	case b.vU != nil:
		return NewUintConst(b.vU[i], b.dtype)
	case b.vF != nil:
		return NewFloatConst(b.vF[i], b.dtype)
	case b.vC != nil:
		return NewComplexConst(b.vC[i], b.dtype)
	case b.vB != nil:
		return NewBoolConst(b.vB[i])
	default:
		return NewStringConst(b.vS[i])
	}
}

func storeConst(b *buffer, i int, v ConstValue) {
	switch {
	case b.vI != nil:
		b.vI[i] = v.AsInt64()
	case b.vU != nil:
		b.vU[i] = v.U
	case b.vF != nil:
		b.vF[i] = v.AsFloat64()
	case b.vC != nil:
		b.vC[i] = v.AsComplex128()
	case b.vB != nil:
		b.vB[i] = v.AsBool()
	case b.vS != nil:
		b.vS[i] = v.S
	}
}

func castConst(v ConstValue, to Dtype) ConstValue {
	switch {
	case to.IsSignedInteger():
		return NewIntConst(v.AsInt64(), to)
	case to.IsUnsignedInteger():
		return NewUintConst(uint64(v.AsInt64()), to)
	case to.IsFloat():
		return NewFloatConst(v.AsFloat64(), to)
	case to.IsComplex():
		return NewComplexConst(v.AsComplex128(), to)
	case to == Bool:
		return NewBoolConst(v.AsBool())
	default:
		return v
	}
}

// applyReduction folds a vector operand to a scalar per spec.md §4.4's
// reduction semantics: sum/prod/min/max/any/all over every element the
// call presents, observed in ascending index order.
func applyReduction(id BuiltinID, outDtype Dtype, in buffer) (buffer, error) {
	n := in.length()
	if n < 0 {
		// a reduction over a scalar operand is the operand itself.
		return in, nil
	}
	switch id {
	case BSum, BProd:
		if outDtype.IsComplex() {
			acc := complex128(0)
			if id == BProd {
				acc = 1
			}
			for i := 0; i < n; i++ {
				if id == BSum {
					acc += in.atComplex128(i)
				} else {
					acc *= in.atComplex128(i)
				}
			}
			return scalarBuffer(NewComplexConst(acc, outDtype)), nil
		}
		acc := 0.0
		if id == BProd {
			acc = 1
		}
		for i := 0; i < n; i++ {
			v := in.atFloat64(i)
			if id == BSum {
				acc += v
			} else {
				acc *= v
			}
		}
		if outDtype.IsUnsignedInteger() {
			return scalarBuffer(NewUintConst(uint64(acc), outDtype)), nil
		}
		if outDtype.IsFloat() {
			return scalarBuffer(NewFloatConst(acc, outDtype)), nil
		}
		return scalarBuffer(NewIntConst(int64(acc), outDtype)), nil

	case BMin, BMax:
		if n == 0 {
			return buffer{}, &CompileError{Code: CompileTypeMismatch, Message: "reduction over empty input"}
		}
		best := in.atFloat64(0)
		for i := 1; i < n; i++ {
			v := in.atFloat64(i)
			if (id == BMin && v < best) || (id == BMax && v > best) {
				best = v
			}
		}
		if outDtype.IsFloat() {
			return scalarBuffer(NewFloatConst(best, outDtype)), nil
		}
		if outDtype.IsUnsignedInteger() {
			return scalarBuffer(NewUintConst(uint64(best), outDtype)), nil
		}
		return scalarBuffer(NewIntConst(int64(best), outDtype)), nil

	case BAny, BAll:
		result := id == BAll
		for i := 0; i < n; i++ {
			v := in.atBool(i)
			if id == BAny && v {
				result = true
				break
			}
			if id == BAll && !v {
				result = false
				break
			}
		}
		return scalarBuffer(NewBoolConst(result)), nil
	}
	return buffer{}, &CompileError{Code: CompileTypeMismatch, Message: "unknown reduction"}
}

// applyOp dispatches one CallKind node's operator/builtin over a block
// of blockLen elements, broadcasting scalar args lazily per spec.md
// §4.4/§9 (no B-wide materialisation of a scalar operand).
func applyOp(p simd.Policy, id BuiltinID, inputDtype, outDtype Dtype, blockLen int, args []buffer) (buffer, error) {
	if id == BWhere {
		return applyWhere(outDtype, blockLen, args)
	}
	if id.IsStringOnly() || inputDtype == Str {
		return applyStringOp(id, blockLen, args)
	}
	if inputDtype.IsComplex() {
		return applyComplexOp(id, outDtype, blockLen, args)
	}

	allScalar := true
	for _, a := range args {
		if !a.isScalar {
			allScalar = false
		}
	}
	resultLen := blockLen
	if allScalar {
		resultLen = -1
	}

	if entry, ok := lookupBuiltinByID(id); ok && isUnaryMathBuiltin(id) {
		kernel, found := simd.UnaryKernel(entry.Name, p.Mode)
		if !found || p.DisableSIMD {
			kernel, _ = simd.UnaryKernel(entry.Name, simd.ULP1)
		}
		return mapUnaryFloat(kernel, outDtype, resultLen, args[0]), nil
	}
	if entry, ok := lookupBuiltinByID(id); ok && isBinaryMathBuiltin(id) {
		kernel, found := simd.BinaryKernel(entry.Name, p.Mode)
		if !found || p.DisableSIMD {
			kernel, _ = simd.BinaryKernel(entry.Name, simd.ULP1)
		}
		return mapBinaryFloat(kernel, outDtype, resultLen, args[0], args[1])
	}

	switch id {
	case OpAdd:
		return mapArith(outDtype, resultLen, args[0], args[1], func(a, b float64) float64 { return a + b })
	case OpSub:
		return mapArith(outDtype, resultLen, args[0], args[1], func(a, b float64) float64 { return a - b })
	case OpMul:
		return mapArith(outDtype, resultLen, args[0], args[1], func(a, b float64) float64 { return a * b })
	case OpDiv:
		return mapArith(outDtype, resultLen, args[0], args[1], func(a, b float64) float64 { return a / b })
	case OpMod:
		return mapArith(outDtype, resultLen, args[0], args[1], math.Mod)
	case OpPow:
		return mapArith(outDtype, resultLen, args[0], args[1], math.Pow)
	case OpNeg:
		return mapUnaryFloat(func(a float64) float64 { return -a }, outDtype, resultLen, args[0]), nil
	case OpPos:
		return args[0], nil
	case OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		return mapIntOp(id, outDtype, resultLen, args[0], args[1]), nil
	case OpBitNot:
		return mapIntUnary(func(a int64) int64 { return ^a }, outDtype, resultLen, args[0]), nil
	case OpEq:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a == b }), nil
	case OpNe:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a != b }), nil
	case OpLt:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a < b }), nil
	case OpLe:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a <= b }), nil
	case OpGt:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a > b }), nil
	case OpGe:
		return mapCompare(resultLen, args[0], args[1], func(a, b float64) bool { return a >= b }), nil
	case OpLogicalAnd:
		return mapLogical(resultLen, args[0], args[1], func(a, b bool) bool { return a && b }), nil
	case OpLogicalOr:
		return mapLogical(resultLen, args[0], args[1], func(a, b bool) bool { return a || b }), nil
	case OpLogicalNot:
		return mapLogicalUnary(resultLen, args[0], func(a bool) bool { return !a }), nil
	case BAbs:
		return mapUnaryFloat(math.Abs, outDtype, resultLen, args[0]), nil
	case BSqrt:
		return mapUnaryFloat(math.Sqrt, outDtype, resultLen, args[0]), nil
	}
	return buffer{}, &CompileError{Code: CompileTypeMismatch, Message: "no kernel registered for this builtin"}
}

func isUnaryMathBuiltin(id BuiltinID) bool {
	switch id {
	case BSin, BCos, BTan, BAsin, BAcos, BAtan, BExp, BExpm1, BExp2, BExp10,
		BLog, BLog10, BLog1p, BLog2, BSinh, BCosh, BTanh, BAsinh, BAcosh,
		BAtanh, BSinpi, BCospi, BCbrt, BErf, BErfc, BTgamma, BLgamma:
		return true
	}
	return false
}

func isBinaryMathBuiltin(id BuiltinID) bool {
	switch id {
	case BAtan2, BPow, BHypot:
		return true
	}
	return false
}

func outLen(a, b buffer, blockLen int) int {
	if a.isScalar && b.isScalar {
		return -1
	}
	return blockLen
}

// float64ToConst tags a raw float64 result with outDtype, routing
// non-float dtypes through the same int64/uint64 conversion castConst
// uses — every arithmetic kernel computes in float64 internally (the
// simd.Unary/Binary kernel signatures are float64-only) but must hand
// back a ConstValue whose populated field matches its own dtype, since
// scalarBuffer/storeConst read the field selected by dtype, not F.
func float64ToConst(v float64, dtype Dtype) ConstValue {
	switch {
	case dtype.IsSignedInteger():
		return NewIntConst(int64(v), dtype)
	case dtype.IsUnsignedInteger():
		return NewUintConst(uint64(int64(v)), dtype)
	default:
		return NewFloatConst(v, dtype)
	}
}

func mapArith(outDtype Dtype, resultLen int, a, b buffer, f func(x, y float64) float64) (buffer, error) {
	n := outLen(a, b, resultLen)
	if n < 0 {
		return scalarBuffer(float64ToConst(f(a.scalarFloat64(), b.scalarFloat64()), outDtype)), nil
	}
	out := vectorBuffer(outDtype, n)
	for i := 0; i < n; i++ {
		storeConst(&out, i, float64ToConst(f(a.atFloat64(i), b.atFloat64(i)), outDtype))
	}
	return out, nil
}

func mapUnaryFloat(f simd.Unary, outDtype Dtype, resultLen int, a buffer) buffer {
	if resultLen < 0 || a.isScalar {
		return scalarBuffer(float64ToConst(f(a.scalarFloat64()), outDtype))
	}
	out := vectorBuffer(outDtype, resultLen)
	for i := 0; i < resultLen; i++ {
		storeConst(&out, i, float64ToConst(f(a.atFloat64(i)), outDtype))
	}
	return out
}

func mapBinaryFloat(f simd.Binary, outDtype Dtype, resultLen int, a, b buffer) (buffer, error) {
	n := outLen(a, b, resultLen)
	if n < 0 {
		return scalarBuffer(float64ToConst(f(a.scalarFloat64(), b.scalarFloat64()), outDtype)), nil
	}
	out := vectorBuffer(outDtype, n)
	for i := 0; i < n; i++ {
		storeConst(&out, i, float64ToConst(f(a.atFloat64(i), b.atFloat64(i)), outDtype))
	}
	return out, nil
}

func mapIntOp(id BuiltinID, outDtype Dtype, resultLen int, a, b buffer) buffer {
	apply := func(x, y int64) int64 {
		switch id {
		case OpBitAnd:
			return x & y
		case OpBitOr:
			return x | y
		case OpBitXor:
			return x ^ y
		case OpShl:
			return x << uint(y)
		case OpShr:
			return x >> uint(y)
		}
		return 0
	}
	n := outLen(a, b, resultLen)
	if n < 0 {
		v := apply(intOf(a, -1), intOf(b, -1))
		return scalarBuffer(intConstOf(v, outDtype))
	}
	out := vectorBuffer(outDtype, n)
	for i := 0; i < n; i++ {
		storeConst(&out, i, intConstOf(apply(intOf(a, i), intOf(b, i)), outDtype))
	}
	return out
}

func mapIntUnary(f func(int64) int64, outDtype Dtype, resultLen int, a buffer) buffer {
	if resultLen < 0 || a.isScalar {
		return scalarBuffer(intConstOf(f(intOf(a, -1)), outDtype))
	}
	out := vectorBuffer(outDtype, resultLen)
	for i := 0; i < resultLen; i++ {
		storeConst(&out, i, intConstOf(f(intOf(a, i)), outDtype))
	}
	return out
}

func intOf(b buffer, i int) int64 {
	if i < 0 || b.isScalar {
		if b.dtype.IsUnsignedInteger() {
			return int64(b.sU)
		}
		return b.sI
	}
	if b.vU != nil {
		return int64(b.vU[i])
	}
	return b.vI[i]
}

func intConstOf(v int64, dtype Dtype) ConstValue {
	if dtype.IsUnsignedInteger() {
		return NewUintConst(uint64(v), dtype)
	}
	return NewIntConst(v, dtype)
}

func mapCompare(resultLen int, a, b buffer, f func(x, y float64) bool) buffer {
	n := outLen(a, b, resultLen)
	if n < 0 {
		return scalarBuffer(NewBoolConst(f(a.scalarFloat64(), b.scalarFloat64())))
	}
	out := vectorBuffer(Bool, n)
	for i := 0; i < n; i++ {
		out.setBool(i, f(a.atFloat64(i), b.atFloat64(i)))
	}
	return out
}

func mapLogical(resultLen int, a, b buffer, f func(x, y bool) bool) buffer {
	n := outLen(a, b, resultLen)
	if n < 0 {
		return scalarBuffer(NewBoolConst(f(a.atBool(-1), b.atBool(-1))))
	}
	out := vectorBuffer(Bool, n)
	for i := 0; i < n; i++ {
		out.setBool(i, f(boolAt(a, i), boolAt(b, i)))
	}
	return out
}

func mapLogicalUnary(resultLen int, a buffer, f func(bool) bool) buffer {
	if resultLen < 0 || a.isScalar {
		return scalarBuffer(NewBoolConst(f(a.atBool(-1))))
	}
	out := vectorBuffer(Bool, resultLen)
	for i := 0; i < resultLen; i++ {
		out.setBool(i, f(boolAt(a, i)))
	}
	return out
}

func boolAt(b buffer, i int) bool {
	if b.isScalar {
		return b.sB
	}
	return b.vB[i]
}

func applyWhere(outDtype Dtype, blockLen int, args []buffer) (buffer, error) {
	cond, x, y := args[0], args[1], args[2]
	if cond.isScalar && x.isScalar && y.isScalar {
		if cond.sB {
			return x, nil
		}
		return y, nil
	}
	out := vectorBuffer(outDtype, blockLen)
	for i := 0; i < blockLen; i++ {
		if boolAt(cond, i) {
			storeConst(&out, i, pickConst(x, i))
		} else {
			storeConst(&out, i, pickConst(y, i))
		}
	}
	return out, nil
}

func pickConst(b buffer, i int) ConstValue {
	if b.isScalar {
		return scalarToConst(b)
	}
	return vectorElemToConst(b, i)
}

func applyStringOp(id BuiltinID, blockLen int, args []buffer) (buffer, error) {
	n := blockLen
	if args[0].isScalar && args[1].isScalar {
		n = -1
	}
	cmp := func(s, t []rune) bool {
		s, t = trimTrailingNUL(s), trimTrailingNUL(t)
		switch id {
		case OpEq:
			return string(s) == string(t)
		case OpNe:
			return string(s) != string(t)
		case BStartsWith:
			return len(s) >= len(t) && string(s[:len(t)]) == string(t)
		case BEndsWith:
			return len(s) >= len(t) && string(s[len(s)-len(t):]) == string(t)
		case BContains:
			return utf8.ValidString(string(s)) && containsRunes(s, t)
		}
		return false
	}
	if n < 0 {
		return scalarBuffer(NewBoolConst(cmp(args[0].atString(-1), args[1].atString(-1)))), nil
	}
	out := vectorBuffer(Bool, n)
	for i := 0; i < n; i++ {
		out.setBool(i, cmp(stringAt(args[0], i), stringAt(args[1], i)))
	}
	return out, nil
}

func stringAt(b buffer, i int) []rune {
	if b.isScalar {
		return b.sS
	}
	return b.vS[i]
}

func trimTrailingNUL(s []rune) []rune {
	end := len(s)
	for end > 0 && s[end-1] == 0 {
		end--
	}
	return s[:end]
}

func containsRunes(s, sub []rune) bool {
	if len(sub) == 0 {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func applyComplexOp(id BuiltinID, outDtype Dtype, blockLen int, args []buffer) (buffer, error) {
	if len(args) == 1 {
		n := blockLen
		if args[0].isScalar {
			n = -1
		}
		if n < 0 {
			return scalarBuffer(NewComplexConst(-args[0].atComplex128(-1), outDtype)), nil
		}
		out := vectorBuffer(outDtype, n)
		for i := 0; i < n; i++ {
			out.setComplex128(i, -args[0].atComplex128(i))
		}
		return out, nil
	}
	a, b := args[0], args[1]
	n := outLen(a, b, blockLen)
	apply := func(x, y complex128) complex128 {
		switch id {
		case OpAdd:
			return x + y
		case OpSub:
			return x - y
		case OpMul:
			return x * y
		case OpDiv:
			return x / y
		}
		return 0
	}
	if n < 0 {
		return scalarBuffer(NewComplexConst(apply(a.atComplex128(-1), b.atComplex128(-1)), outDtype)), nil
	}
	out := vectorBuffer(outDtype, n)
	for i := 0; i < n; i++ {
		out.setComplex128(i, apply(a.atComplex128(i), b.atComplex128(i)))
	}
	return out, nil
}

// evalBuiltinScalar bridges the optimizer's constant-folding call site
// (ConstValue in, ConstValue out) to the same applyOp kernel dispatch
// used by the block interpreter, so folding and runtime evaluation can
// never disagree.
func evalBuiltinScalar(id BuiltinID, inputDtype, outDtype Dtype, args []ConstValue) (ConstValue, bool) {
	bufs := make([]buffer, len(args))
	for i, a := range args {
		bufs[i] = scalarBuffer(a)
	}
	result, err := applyOp(simd.Default(), id, inputDtype, outDtype, 1, bufs)
	if err != nil {
		return ConstValue{}, false
	}
	return scalarToConst(result), true
}
