package miniexpr

import (
	"fmt"
	"strings"
)

// NodeKind tags the variant of an arena node (spec.md §3's "tagged
// union": numeric constant, variable reference, function/closure call,
// operator). Per spec.md §9's redesign note, operators are not encoded
// as function pointers; both operators and named builtin calls become
// CallKind nodes carrying a BuiltinID, and the registry in builtins.go
// is the "side table" mapping id to arity/dtype/output-rule.
type NodeKind uint8

const (
	ConstKind NodeKind = iota
	VarKind
	CallKind
)

// nodeRef indexes into an Expr's node arena. 0 is never a valid node
// (the arena's slot 0 is reserved/unused) so the zero value can signal
// "no node" without a separate bool.
type nodeRef int32

// node is one arena slot. Only the fields relevant to its Kind are
// populated; this is deliberately a closed sum type (a handful of
// scalar/slice fields) rather than an interface, because spec.md §9
// asks for an index-addressed arena specifically to make sharing
// explicit and Free O(1) — an interface-per-variant tree (as the
// teacher's grammar_ast.go uses for its PEG AST) would put each node on
// the heap individually and make the arena pointless.
type node struct {
	kind NodeKind
	rg   Range

	dtype      Dtype // the node's own inferred output dtype
	inputDtype Dtype // the promoted operand dtype actually used for evaluation

	// ConstKind
	constVal ConstValue

	// VarKind
	varName  string
	varIndex int // resolved slot into the compiled handle's variable table

	// CallKind
	builtin BuiltinID
	name    string // source-level name, for error messages and String()
	args    []nodeRef
	pure    bool
}

// Expr is the arena holding every node of one compiled expression tree.
// Children are referenced by nodeRef index into the same slice, so a
// shared subexpression (common-subexpression elimination) is just two
// parents pointing at the same index, and Free is dropping the slice.
type Expr struct {
	nodes []node
	root  nodeRef
}

func newExprArena() *Expr {
	// slot 0 reserved so the zero nodeRef means "absent".
	return &Expr{nodes: make([]node, 1, 32)}
}

func (e *Expr) alloc(n node) nodeRef {
	e.nodes = append(e.nodes, n)
	return nodeRef(len(e.nodes) - 1)
}

func (e *Expr) at(r nodeRef) *node { return &e.nodes[r] }

func (e *Expr) Root() nodeRef { return e.root }

func (e *Expr) newConst(v ConstValue, rg Range) nodeRef {
	return e.alloc(node{kind: ConstKind, rg: rg, dtype: v.Dtype, inputDtype: v.Dtype, constVal: v, pure: true})
}

func (e *Expr) newVar(name string, rg Range) nodeRef {
	return e.alloc(node{kind: VarKind, rg: rg, varName: name, pure: true})
}

func (e *Expr) newCall(builtin BuiltinID, name string, args []nodeRef, pure bool, rg Range) nodeRef {
	return e.alloc(node{kind: CallKind, rg: rg, builtin: builtin, name: name, args: args, pure: pure})
}

// isConst reports whether r is a fully-resolved constant node, the
// condition the optimizer's constant-folding pass checks for each
// node's children (spec.md §4.3).
func (e *Expr) isConst(r nodeRef) bool {
	return e.at(r).kind == ConstKind
}

// String renders the node rooted at r back to infix source. Used for
// the round-trip testable property in spec.md §8 ("parse(print(tree))
// yields an equivalent tree").
func (e *Expr) String(r nodeRef) string {
	var b strings.Builder
	e.writeNode(&b, r)
	return b.String()
}

func (e *Expr) writeNode(b *strings.Builder, r nodeRef) {
	n := e.at(r)
	switch n.kind {
	case ConstKind:
		b.WriteString(n.constVal.String())
	case VarKind:
		b.WriteString(n.varName)
	case CallKind:
		meta, ok := lookupBuiltinByID(n.builtin)
		if ok && meta.Symbol != "" && len(n.args) == 2 {
			b.WriteString("(")
			e.writeNode(b, n.args[0])
			fmt.Fprintf(b, " %s ", meta.Symbol)
			e.writeNode(b, n.args[1])
			b.WriteString(")")
			return
		}
		if ok && meta.Symbol != "" && len(n.args) == 1 {
			fmt.Fprintf(b, "%s(", meta.Symbol)
			e.writeNode(b, n.args[0])
			b.WriteString(")")
			return
		}
		b.WriteString(n.name)
		b.WriteString("(")
		for i, a := range n.args {
			if i > 0 {
				b.WriteString(", ")
			}
			e.writeNode(b, a)
		}
		b.WriteString(")")
	}
}

// PrettyString renders the tree rooted at r with the teacher's
// box-drawing tree-printer helper (tree_printer.go), retargeted at
// expression nodes instead of PEG parse values.
func (e *Expr) PrettyString(r nodeRef) string {
	tp := newTreePrinter(func(s string, _ FormatToken) string { return s })
	e.prettyVisit(tp, r)
	return tp.output.String()
}

func (e *Expr) prettyVisit(tp *treePrinter[FormatToken], r nodeRef) {
	n := e.at(r)
	switch n.kind {
	case ConstKind:
		tp.write(n.constVal.String())
		tp.write(fmt.Sprintf(" :%s", n.dtype))
	case VarKind:
		tp.write(n.varName)
		tp.write(fmt.Sprintf(" :%s", n.dtype))
	case CallKind:
		tp.writel(fmt.Sprintf("%s :%s", n.name, n.dtype))
		for i, a := range n.args {
			last := i == len(n.args)-1
			if last {
				tp.pwrite("└── ")
				tp.indent("    ")
			} else {
				tp.pwrite("├── ")
				tp.indent("│   ")
			}
			e.prettyVisit(tp, a)
			tp.unindent()
			if !last {
				tp.write("\n")
			}
		}
	}
}

// Equal compares two subtrees structurally (same dtypes, same operator
// structure), used by the round-trip testable property and by the
// optimizer to detect a no-op rewrite.
func (e *Expr) Equal(a, b nodeRef) bool {
	na, nb := e.at(a), e.at(b)
	if na.kind != nb.kind || na.dtype != nb.dtype {
		return false
	}
	switch na.kind {
	case ConstKind:
		return na.constVal.Equal(nb.constVal)
	case VarKind:
		return na.varName == nb.varName
	case CallKind:
		if na.builtin != nb.builtin || len(na.args) != len(nb.args) {
			return false
		}
		for i := range na.args {
			if !e.Equal(na.args[i], nb.args[i]) {
				return false
			}
		}
		return true
	}
	return false
}
