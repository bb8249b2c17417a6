package miniexpr

import (
	"fmt"
	"strings"
)

// Op is one instruction of the linearised post-order bytecode spec.md
// §4.4 asks for as the optional "compiled form" of an Expr: a flat
// post-order sequence of the node arena. The block interpreter does
// not execute it (interp.go recurses over the arena); it is rendered
// by Expression.Disassemble. Grounded on the teacher's Instruction interface
// (vm_instructions.go in the original), stripped of the PEG VM's
// choice-point/capture machinery — a numeric expression has no
// backtracking, so there is exactly one op per arena node, emitted in
// post order.
type Op interface {
	// Name returns the mnemonic used by Program.String for debugging.
	Name() string
}

// OpLoadConst pushes a compile-time constant.
type OpLoadConst struct {
	Value ConstValue
}

func (OpLoadConst) Name() string { return "load_const" }

// OpLoadVar pushes the value of variable slot Index (resolved by
// Compile against the variable table supplied at compile time).
type OpLoadVar struct {
	Index   int
	VarName string
}

func (OpLoadVar) Name() string { return "load_var" }

// OpCall pops Arity operands and pushes the result of applying
// Builtin to them. Covers both operators and named functions — spec.md
// §9's tagged-enum redesign means both run through the same
// instruction, dispatched on Builtin.ID at execution time.
type OpCall struct {
	Builtin BuiltinID
	Arity   int
	Dtype   Dtype // output dtype, already resolved by the compiler
}

func (OpCall) Name() string { return "call" }

// OpReduce is a specialised OpCall for sum/prod/min/max/any/all: the
// interpreter implements these as a fold over a vector operand rather
// than an elementwise kernel, so they get their own opcode instead of
// reusing OpCall's per-element dispatch.
type OpReduce struct {
	Builtin BuiltinID
	Dtype   Dtype
}

func (OpReduce) Name() string { return "reduce" }

// Program is the flattened bytecode for one compiled Expr: Ops in
// post order. Compile builds one per Expression and Disassemble
// renders it; evaluation walks the Expr arena directly (interp.go)
// and never reads the Program.
type Program struct {
	Ops []Op
}

// emitter accumulates Ops while walking an Expr in post order.
type emitter struct {
	ops []Op
}

func compileProgram(e *Expr, vars map[string]int) *Program {
	em := &emitter{}
	em.visit(e, e.Root(), vars)
	return &Program{Ops: em.ops}
}

// String renders the Program as one mnemonic per line, operands
// included, for Expression.Disassemble.
func (p *Program) String() string {
	var b strings.Builder
	for i, op := range p.Ops {
		fmt.Fprintf(&b, "%3d  %s\n", i, opString(op))
	}
	return b.String()
}

func opString(op Op) string {
	switch o := op.(type) {
	case OpLoadConst:
		return fmt.Sprintf("%s %s", o.Name(), o.Value.String())
	case OpLoadVar:
		return fmt.Sprintf("%s %s(%d)", o.Name(), o.VarName, o.Index)
	case OpCall:
		return fmt.Sprintf("%s %s/%d -> %s", o.Name(), builtinMnemonic(o.Builtin), o.Arity, o.Dtype)
	case OpReduce:
		return fmt.Sprintf("%s %s -> %s", o.Name(), builtinMnemonic(o.Builtin), o.Dtype)
	default:
		return op.Name()
	}
}

func builtinMnemonic(id BuiltinID) string {
	if e, ok := lookupBuiltinByID(id); ok {
		if e.Symbol != "" {
			return e.Symbol
		}
		return e.Name
	}
	return "?"
}

func (em *emitter) visit(e *Expr, r nodeRef, vars map[string]int) {
	n := e.at(r)
	switch n.kind {
	case ConstKind:
		em.ops = append(em.ops, OpLoadConst{Value: n.constVal})
	case VarKind:
		idx := vars[n.varName]
		em.ops = append(em.ops, OpLoadVar{Index: idx, VarName: n.varName})
	case CallKind:
		for _, a := range n.args {
			em.visit(e, a, vars)
		}
		if n.builtin.IsReduction() {
			em.ops = append(em.ops, OpReduce{Builtin: n.builtin, Dtype: n.dtype})
		} else {
			em.ops = append(em.ops, OpCall{Builtin: n.builtin, Arity: len(n.args), Dtype: n.dtype})
		}
	}
}
