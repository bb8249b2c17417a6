package miniexpr

import (
	"github.com/clarete/miniexpr/jit"
	"github.com/clarete/miniexpr/simd"
)

// Expression is the compiled-expression handle from spec.md §3/§6:
// root node (held by its Expr arena), overall output dtype, optional
// linearised bytecode, optional JIT kernel, and optional N-D layout.
// Immutable after Compile returns, so it is safe to share and
// evaluate concurrently across goroutines (spec.md §5).
type Expression struct {
	arena   *Expr
	outDtype Dtype
	vars    []VarDecl
	varIdx  map[string]int
	program *Program
	layout  *NDLayout
	kernel  *jit.Kernel
}

// Compile parses and type-checks source as a single infix expression
// (spec.md §4.1), optimises it (spec.md §4.3), resolves outputDtype
// (AUTO infers from the root node; a concrete dtype inserts a
// validated cast), and returns an immutable handle ready for Eval.
func Compile(source string, vars []VarDecl, outputDtype Dtype) (*Expression, *CompileError) {
	arena, varIdx, err := ParseInfix(source, vars)
	if err != nil {
		return nil, asCompileError(err, source)
	}

	declMap := make(map[string]VarDecl, len(vars))
	for _, v := range vars {
		declMap[v.Name] = v
	}
	if _, err := Optimize(arena, declMap, varIdx); err != nil {
		return nil, asCompileError(err, source)
	}

	root := arena.at(arena.Root())
	resolved := outputDtype
	if resolved == AUTO {
		resolved = root.dtype
	} else if !representable(root.dtype, resolved) {
		return nil, &CompileError{
			Code:    CompileTypeUnrepresentable,
			Message: "requested output dtype is not reachable from the expression's inferred dtype",
			Source:  source,
		}
	}

	prog := compileProgram(arena, varIdx)
	return &Expression{
		arena:    arena,
		outDtype: resolved,
		vars:     vars,
		varIdx:   varIdx,
		program:  prog,
	}, nil
}

// CompileND compiles source exactly as Compile does and additionally
// attaches the N-D layout describing how evaluation calls will tile
// the logical array (spec.md §4.7).
func CompileND(source string, vars []VarDecl, outputDtype Dtype, shape, chunk, block []int) (*Expression, *CompileError) {
	expr, cerr := Compile(source, vars, outputDtype)
	if cerr != nil {
		return nil, cerr
	}
	layout, err := NewNDLayout(shape, chunk, block)
	if err != nil {
		return nil, &CompileError{Code: CompileSyntax, Message: err.Error(), Source: source}
	}
	expr.layout = layout
	return expr, nil
}

// asCompileError normalises a parse-pipeline error into a *CompileError
// and stamps it with source so Error() can render a line:col location
// instead of a bare byte offset (pos.go's LineIndex).
func asCompileError(err error, source string) *CompileError {
	if ce, ok := err.(*CompileError); ok {
		if ce.Source == "" {
			ce.Source = source
		}
		return ce
	}
	return &CompileError{Code: CompileSyntax, Message: err.Error(), Source: source}
}

// GetDtype returns the handle's resolved output dtype.
func (e *Expression) GetDtype() Dtype { return e.outDtype }

// HasJITKernel reports whether a native kernel is currently loaded for
// this handle (spec.md §6 introspection).
func (e *Expression) HasJITKernel() bool { return e.kernel != nil }

// Disassemble renders the handle's linearised bytecode one mnemonic
// per line, for diagnostics and benchmarking tools — spec.md §6's
// debug/introspection surface around the optional compiled form.
func (e *Expression) Disassemble() string {
	if e.program == nil {
		return ""
	}
	return e.program.String()
}

// Free drops the handle's JIT kernel reference, if any. The arena and
// program are ordinary Go-managed memory and need no explicit release;
// Free exists to satisfy spec.md §6's handle-lifecycle API and to keep
// the kernel's refcount accurate (jit.Kernel.Release).
func (e *Expression) Free() {
	if e.kernel != nil {
		e.kernel.Release()
		e.kernel = nil
	}
}

// Eval evaluates the compiled expression over a flat run of nitems
// elements, reading each variable's data from inputs (same order as
// the vars slice passed to Compile) and writing nitems output elements
// into out. params may be nil to use the process-wide defaults.
func Eval(e *Expression, inputs []VarBuffer, out OutBuffer, nitems int, params *Params) EvalStatus {
	if out.Data == nil {
		return EvalNullArg
	}
	if len(inputs) != len(e.vars) {
		return EvalShapeMismatch
	}
	p := resolvePolicy(params)

	status := EvalSuccess
	for start := 0; start < nitems; start += BlockSize {
		blockLen := minInt(BlockSize, nitems-start)
		vars, err := bindVarBuffers(e.vars, inputs, start, blockLen)
		if err != nil {
			return EvalInternal
		}
		result, err := EvalBlock(e.arena, e.outDtype, vars, blockLen, p)
		if err != nil {
			return EvalInternal
		}
		if err := writeOutBuffer(out, start, blockLen, result); err != nil {
			return EvalInternal
		}
	}
	return status
}

// EvalND evaluates one padded block of the N-D layout attached by
// CompileND, per spec.md §4.7: the kernel always receives a
// Π block[d]-sized region; valid_nitems (via ValidNitemsND) tells the
// caller which prefix (in row-major traversal restricted to the valid
// extents) is not padding.
func EvalND(e *Expression, inputs []VarBuffer, out OutBuffer, nchunk, nblock int, params *Params) EvalStatus {
	if e.layout == nil {
		return EvalShapeMismatch
	}
	if out.Data == nil {
		return EvalNullArg
	}
	if len(inputs) != len(e.vars) {
		return EvalShapeMismatch
	}
	ext, err := e.layout.Extent(nchunk, nblock)
	if err != nil {
		return EvalShapeMismatch
	}
	blockLen := e.layout.PaddedNitems()
	p := resolvePolicy(params)

	vars, err := bindVarBuffers(e.vars, inputs, 0, blockLen)
	if err != nil {
		return EvalInternal
	}
	vars = withReservedIndexVars(vars, e, ext, blockLen)

	result, err := EvalBlock(e.arena, e.outDtype, vars, blockLen, p)
	if err != nil {
		return EvalInternal
	}
	if err := writeOutBuffer(out, 0, blockLen, result); err != nil {
		return EvalInternal
	}
	return EvalSuccess
}

// ValidNitemsND reports how many of the block's Π block[d] positions
// are non-padding for the given (nchunk, nblock) pair.
func ValidNitemsND(e *Expression, nchunk, nblock int) (int, EvalStatus) {
	if e.layout == nil {
		return 0, EvalShapeMismatch
	}
	ext, err := e.layout.Extent(nchunk, nblock)
	if err != nil {
		return 0, EvalShapeMismatch
	}
	return ext.ValidNitems(e.layout.Rank), EvalSuccess
}

func resolvePolicy(params *Params) simd.Policy {
	if params == nil {
		return defaultParams().toPolicy()
	}
	return params.toPolicy()
}

// VarBuffer is one caller-supplied variable's data for an Eval call:
// either a pointer to a dense run of nitems elements, or a single
// scalar value broadcast over the whole call (spec.md §3's "optional
// default data pointer").
type VarBuffer struct {
	Scalar   *ConstValue
	IntData  []int64
	UintData []uint64
	F32Data  []float32
	F64Data  []float64
	BoolData []bool
	StrData  [][]rune
}

// OutBuffer is the caller-owned destination for Eval/EvalND.
type OutBuffer struct {
	Data any // points at one of []int64/[]uint64/[]float32/[]float64/[]bool/[][]rune sized to the call
}

func bindVarBuffers(decls []VarDecl, inputs []VarBuffer, start, blockLen int) ([]buffer, error) {
	out := make([]buffer, len(decls))
	for i, d := range decls {
		in := inputs[i]
		if in.Scalar != nil {
			out[i] = scalarBuffer(*in.Scalar)
			continue
		}
		out[i] = sliceToBuffer(d.Dtype, in, start, blockLen)
	}
	return out, nil
}

func sliceToBuffer(dtype Dtype, in VarBuffer, start, n int) buffer {
	b := vectorBuffer(dtype, n)
	switch {
	case in.IntData != nil:
		copy(b.vI, in.IntData[start:start+n])
	case in.UintData != nil:
		copy(b.vU, in.UintData[start:start+n])
	case in.F64Data != nil:
		copy(b.vF, in.F64Data[start:start+n])
	case in.F32Data != nil:
		for i := 0; i < n; i++ {
			b.vF[i] = float64(in.F32Data[start+i])
		}
	case in.BoolData != nil:
		copy(b.vB, in.BoolData[start:start+n])
	case in.StrData != nil:
		copy(b.vS, in.StrData[start:start+n])
	}
	return b
}

func writeOutBuffer(out OutBuffer, start, n int, result buffer) error {
	switch dst := out.Data.(type) {
	case []int64:
		for i := 0; i < n; i++ {
			dst[start+i] = intAtResult(result, i)
		}
	case []uint64:
		for i := 0; i < n; i++ {
			dst[start+i] = uint64(intAtResult(result, i))
		}
	case []float64:
		for i := 0; i < n; i++ {
			dst[start+i] = result.atFloat64(elemIdx(result, i))
		}
	case []float32:
		for i := 0; i < n; i++ {
			dst[start+i] = float32(result.atFloat64(elemIdx(result, i)))
		}
	case []bool:
		for i := 0; i < n; i++ {
			dst[start+i] = result.atBool(elemIdx(result, i))
		}
	case [][]rune:
		for i := 0; i < n; i++ {
			dst[start+i] = stringAt(result, elemIdx(result, i))
		}
	}
	return nil
}

func elemIdx(b buffer, i int) int {
	if b.isScalar {
		return -1
	}
	return i
}

func intAtResult(b buffer, i int) int64 {
	if b.isScalar {
		if b.dtype.IsUnsignedInteger() {
			return int64(b.sU)
		}
		return b.sI
	}
	return intOf(b, i)
}

// withReservedIndexVars is a genuine no-op: the reserved `_i0.._flat_idx`
// identifiers (spec.md §4.6) are only ever registered as local slots by
// the DSL parser's reservedIndexNames (dsl_parser.go); an infix
// Expression's variable table never contains them, so there is nothing
// for an N-D infix Eval to splice in. The DSL path's equivalent
// (populateReservedIndexVars in dsl_interp.go, driven from
// EvalDSLBlockND) is where those identifiers actually get resolved per
// lane.
func withReservedIndexVars(vars []buffer, e *Expression, ext BlockExtent, blockLen int) []buffer {
	return vars
}

// RegisterJITHelpers installs caller-supplied allocate/free functions
// for hosts that cannot open native code themselves, spec.md §6's
// `register_jit_helpers(alloc_fn, free_fn)`.
func RegisterJITHelpers(alloc jit.AllocFunc, free jit.FreeFunc) {
	jit.RegisterHelpers(alloc, free)
}

// DSLExpression is the compiled handle for a kernel DSL program
// (spec.md §3's `def kernel(...):` form), analogous to Expression but
// driven by the statement-level interpreter in dsl_interp.go rather
// than the single-expression arena walker. layout is only set by
// CompileNDDSL; kernel is only set when CompileDSL/CompileNDDSL
// attempted and succeeded at JIT lowering (spec.md §4.8).
type DSLExpression struct {
	prog     *DSLProgram
	outDtype Dtype
	vars     []VarDecl
	layout   *NDLayout
	kernel   *jit.Kernel
}

// jitConfig is process-wide: spec.md §6 says the DSL_JIT gate and its
// companions are read once from the environment at process start, not
// re-read per compile. A test can point this at a different *Config to
// exercise the gated path deterministically.
var jitConfig = NewJITConfig()

// CompileDSL parses source as a kernel DSL program (dsl_parser.go) and
// resolves its output dtype from the dtype its `return` statements
// settle on (see resolveDSLOutputDtype in dsl_interp.go — the DSL has
// no separate output-dtype parameter the way Compile does). When
// DSL_JIT=1, it then attempts to lower and compile the program to a
// native kernel (spec.md §4.8); on any failure at any stage the handle
// falls back to the tree-walking interpreter silently, exactly as
// spec.md §4.8 requires ("never surfaces a compile-time error to the
// caller").
func CompileDSL(source string, vars []VarDecl) (*DSLExpression, *CompileError) {
	prog, err := ParseDSL(source, vars)
	if err != nil {
		return nil, asCompileError(err, source)
	}
	outDtype := resolveDSLOutputDtype(prog)
	return &DSLExpression{
		prog:     prog,
		outDtype: outDtype,
		vars:     vars,
		kernel:   attemptDSLJIT(prog, outDtype, nil, jitConfig),
	}, nil
}

// CompileNDDSL compiles source exactly as CompileDSL does and
// additionally attaches the N-D layout describing how EvalNDDSL calls
// will tile the logical array (spec.md §4.7), folding the layout into
// the JIT fingerprint computed for this handle.
func CompileNDDSL(source string, vars []VarDecl, shape, chunk, block []int) (*DSLExpression, *CompileError) {
	prog, err := ParseDSL(source, vars)
	if err != nil {
		return nil, asCompileError(err, source)
	}
	layout, err := NewNDLayout(shape, chunk, block)
	if err != nil {
		return nil, &CompileError{Code: CompileSyntax, Message: err.Error(), Source: source}
	}
	outDtype := resolveDSLOutputDtype(prog)
	return &DSLExpression{
		prog:     prog,
		outDtype: outDtype,
		vars:     vars,
		layout:   layout,
		kernel:   attemptDSLJIT(prog, outDtype, layout, jitConfig),
	}, nil
}

// GetDtype returns the handle's resolved output dtype.
func (e *DSLExpression) GetDtype() Dtype { return e.outDtype }

// HasJITKernel reports whether a native kernel is currently loaded for
// this handle (spec.md §6 introspection).
func (e *DSLExpression) HasJITKernel() bool { return e.kernel != nil }

// Free drops the handle's JIT kernel reference, if any, mirroring
// Expression.Free.
func (e *DSLExpression) Free() {
	if e.kernel != nil {
		e.kernel.Release()
		e.kernel = nil
	}
}

// EvalDSL evaluates a compiled kernel DSL program over a flat run of
// nitems elements, one independent lane per element (spec.md §4.6).
// e.kernel is never invoked here: the jit package's Compiler.load
// always reports the native object unavailable (no cgo-linked loader
// in this build, see jit/compiler.go), so HasJITKernel never actually
// returns true in practice; the tree-walking interpreter remains the
// only code path that runs a kernel body to completion.
func EvalDSL(e *DSLExpression, inputs []VarBuffer, out OutBuffer, nitems int, params *Params) EvalStatus {
	if out.Data == nil {
		return EvalNullArg
	}
	if len(inputs) != len(e.vars) {
		return EvalShapeMismatch
	}
	p := resolvePolicy(params)

	for start := 0; start < nitems; start += BlockSize {
		blockLen := minInt(BlockSize, nitems-start)
		vars, err := bindVarBuffers(e.vars, inputs, start, blockLen)
		if err != nil {
			return EvalInternal
		}
		result, err := evalDSLBlockAt(e.prog, vars, blockLen, p, start, nitems)
		if err != nil {
			return EvalInternal
		}
		if err := writeOutBuffer(out, start, blockLen, result); err != nil {
			return EvalInternal
		}
	}
	return EvalSuccess
}

// EvalNDDSL evaluates one padded block of the N-D layout attached by
// CompileNDDSL, the DSL counterpart of EvalND (spec.md §4.7).
func EvalNDDSL(e *DSLExpression, inputs []VarBuffer, out OutBuffer, nchunk, nblock int, params *Params) EvalStatus {
	if e.layout == nil {
		return EvalShapeMismatch
	}
	if out.Data == nil {
		return EvalNullArg
	}
	if len(inputs) != len(e.vars) {
		return EvalShapeMismatch
	}
	ext, err := e.layout.Extent(nchunk, nblock)
	if err != nil {
		return EvalShapeMismatch
	}
	blockLen := e.layout.PaddedNitems()
	p := resolvePolicy(params)

	vars, err := bindVarBuffers(e.vars, inputs, 0, blockLen)
	if err != nil {
		return EvalInternal
	}

	result, err := EvalDSLBlockND(e.prog, vars, blockLen, p, e.layout, ext)
	if err != nil {
		return EvalInternal
	}
	if err := writeOutBuffer(out, 0, blockLen, result); err != nil {
		return EvalInternal
	}
	return EvalSuccess
}

// ValidNitemsNDDSL reports how many of the block's Π block[d] positions
// are non-padding for the given (nchunk, nblock) pair.
func ValidNitemsNDDSL(e *DSLExpression, nchunk, nblock int) (int, EvalStatus) {
	if e.layout == nil {
		return 0, EvalShapeMismatch
	}
	ext, err := e.layout.Extent(nchunk, nblock)
	if err != nil {
		return 0, EvalShapeMismatch
	}
	return ext.ValidNitems(e.layout.Rank), EvalSuccess
}
