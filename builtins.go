package miniexpr

import "fmt"

// BuiltinID tags a CallKind node with which operation it performs —
// the "tagged enum of built-in op identifiers" spec.md §9 asks for in
// place of function-pointer operators.
type BuiltinID int

const (
	BuiltinInvalid BuiltinID = iota

	// operators, parsed directly by the Pratt parser (never looked up
	// by name in builtinTable — they have no surface-syntax identifier)
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNeg
	OpPos
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogicalAnd
	OpLogicalOr
	OpLogicalNot

	// named builtin functions, looked up by identifier in builtinTable
	BSin
	BCos
	BTan
	BAsin
	BAcos
	BAtan
	BAtan2
	BExp
	BExpm1
	BExp2
	BExp10
	BLog
	BLog10
	BLog1p
	BLog2
	BSinh
	BCosh
	BTanh
	BAsinh
	BAcosh
	BAtanh
	BSinpi
	BCospi
	BCbrt
	BErf
	BErfc
	BTgamma
	BLgamma
	BPow
	BHypot
	BSqrt
	BAbs
	BSum
	BProd
	BMin
	BMax
	BAny
	BAll
	BWhere
	BStartsWith
	BEndsWith
	BContains
)

// outputRule computes a CallKind node's output dtype from its
// already-promoted input dtype, per spec.md §4.1's
// "output-dtype rule (one of: same as operand, promote to float,
// always float64, boolean, reduction of T)".
type outputRule func(input Dtype) (Dtype, error)

func sameAsOperand(input Dtype) (Dtype, error) { return input, nil }

func alwaysFloat64(Dtype) (Dtype, error) { return F64, nil }

func promoteToFloat(input Dtype) (Dtype, error) {
	if input.IsFloat() {
		return input, nil
	}
	return F64, nil
}

func alwaysBool(Dtype) (Dtype, error) { return Bool, nil }

func reductionRule(name string) outputRule {
	return func(input Dtype) (Dtype, error) { return ReductionOutputDtype(name, input) }
}

// builtinEntry is one row of the registry: arity, purity, and the
// output-dtype rule, per spec.md §4.1.
type builtinEntry struct {
	Name    string
	ID      BuiltinID
	Arity   int // -1 means variadic-over-one-type (reductions take any element count via a single vector arg)
	Pure    bool
	Symbol  string // non-empty for operators: the infix symbol used by Expr.String's round-trip printer
	Rule    outputRule
	IsTrig  bool // restricted to real numeric operands only (no string)
}

// builtinTable is the alphabetically-sorted function registry from
// spec.md §4.1. Operators are not listed here (they have no identifier
// to look up); builtinsByName is derived from this table at init time
// and checkBuiltinTableSorted enforces the ordering invariant spec.md
// requires to be checked at startup.
var builtinTable = []builtinEntry{
	{Name: "abs", ID: BAbs, Arity: 1, Pure: true, Rule: sameAsOperand},
	{Name: "acos", ID: BAcos, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "acosh", ID: BAcosh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "all", ID: BAll, Arity: 1, Pure: true, Rule: reductionRule("all")},
	{Name: "any", ID: BAny, Arity: 1, Pure: true, Rule: reductionRule("any")},
	{Name: "asin", ID: BAsin, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "asinh", ID: BAsinh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "atan", ID: BAtan, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "atan2", ID: BAtan2, Arity: 2, Pure: true, Rule: promoteToFloat},
	{Name: "atanh", ID: BAtanh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "cbrt", ID: BCbrt, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "contains", ID: BContains, Arity: 2, Pure: true, Rule: alwaysBool},
	{Name: "cos", ID: BCos, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "cosh", ID: BCosh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "cospi", ID: BCospi, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "endswith", ID: BEndsWith, Arity: 2, Pure: true, Rule: alwaysBool},
	{Name: "erf", ID: BErf, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "erfc", ID: BErfc, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "exp", ID: BExp, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "exp10", ID: BExp10, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "exp2", ID: BExp2, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "expm1", ID: BExpm1, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "hypot", ID: BHypot, Arity: 2, Pure: true, Rule: promoteToFloat},
	{Name: "lgamma", ID: BLgamma, Arity: 1, Pure: true, Rule: alwaysFloat64},
	{Name: "log", ID: BLog, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "log10", ID: BLog10, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "log1p", ID: BLog1p, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "log2", ID: BLog2, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "max", ID: BMax, Arity: 1, Pure: true, Rule: reductionRule("max")},
	{Name: "min", ID: BMin, Arity: 1, Pure: true, Rule: reductionRule("min")},
	{Name: "pow", ID: BPow, Arity: 2, Pure: true, Rule: promoteToFloat},
	{Name: "prod", ID: BProd, Arity: 1, Pure: true, Rule: reductionRule("prod")},
	{Name: "sin", ID: BSin, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "sinh", ID: BSinh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "sinpi", ID: BSinpi, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "sqrt", ID: BSqrt, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "startswith", ID: BStartsWith, Arity: 2, Pure: true, Rule: alwaysBool},
	{Name: "sum", ID: BSum, Arity: 1, Pure: true, Rule: reductionRule("sum")},
	{Name: "tan", ID: BTan, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "tanh", ID: BTanh, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "tgamma", ID: BTgamma, Arity: 1, Pure: true, Rule: promoteToFloat},
	{Name: "where", ID: BWhere, Arity: 3, Pure: true, Rule: sameAsOperandOfSecondArg},
}

// sameAsOperandOfSecondArg is where(c, x, y)'s output rule: the
// interpreter passes the promoted dtype of x/y (the branches), not c
// (the boolean mask), so plain sameAsOperand reads correctly here too;
// named separately for clarity at the call site.
func sameAsOperandOfSecondArg(input Dtype) (Dtype, error) { return input, nil }

// operatorTable gives each operator its BuiltinID, arity, and infix
// symbol for the round-trip printer. Not indexed by name — the parser
// constructs CallNodes for operators directly from precedence, never
// via an identifier lookup — but it is the "side table that maps op-id
// -> numeric semantics" spec.md §9 calls for, shared by the parser,
// optimizer and interpreter.
var operatorTable = map[BuiltinID]builtinEntry{
	OpAdd:        {ID: OpAdd, Arity: 2, Pure: true, Symbol: "+", Rule: sameAsOperand},
	OpSub:        {ID: OpSub, Arity: 2, Pure: true, Symbol: "-", Rule: sameAsOperand},
	OpMul:        {ID: OpMul, Arity: 2, Pure: true, Symbol: "*", Rule: sameAsOperand},
	OpDiv:        {ID: OpDiv, Arity: 2, Pure: true, Symbol: "/", Rule: promoteToFloat},
	OpMod:        {ID: OpMod, Arity: 2, Pure: true, Symbol: "%", Rule: sameAsOperand},
	OpPow:        {ID: OpPow, Arity: 2, Pure: true, Symbol: "**", Rule: promoteToFloat},
	OpNeg:        {ID: OpNeg, Arity: 1, Pure: true, Symbol: "-", Rule: sameAsOperand},
	OpPos:        {ID: OpPos, Arity: 1, Pure: true, Symbol: "+", Rule: sameAsOperand},
	OpBitAnd:     {ID: OpBitAnd, Arity: 2, Pure: true, Symbol: "&", Rule: sameAsOperand},
	OpBitOr:      {ID: OpBitOr, Arity: 2, Pure: true, Symbol: "|", Rule: sameAsOperand},
	OpBitXor:     {ID: OpBitXor, Arity: 2, Pure: true, Symbol: "^", Rule: sameAsOperand},
	OpBitNot:     {ID: OpBitNot, Arity: 1, Pure: true, Symbol: "~", Rule: sameAsOperand},
	OpShl:        {ID: OpShl, Arity: 2, Pure: true, Symbol: "<<", Rule: sameAsOperand},
	OpShr:        {ID: OpShr, Arity: 2, Pure: true, Symbol: ">>", Rule: sameAsOperand},
	OpEq:         {ID: OpEq, Arity: 2, Pure: true, Symbol: "==", Rule: alwaysBool},
	OpNe:         {ID: OpNe, Arity: 2, Pure: true, Symbol: "!=", Rule: alwaysBool},
	OpLt:         {ID: OpLt, Arity: 2, Pure: true, Symbol: "<", Rule: alwaysBool},
	OpLe:         {ID: OpLe, Arity: 2, Pure: true, Symbol: "<=", Rule: alwaysBool},
	OpGt:         {ID: OpGt, Arity: 2, Pure: true, Symbol: ">", Rule: alwaysBool},
	OpGe:         {ID: OpGe, Arity: 2, Pure: true, Symbol: ">=", Rule: alwaysBool},
	OpLogicalAnd: {ID: OpLogicalAnd, Arity: 2, Pure: true, Symbol: "&&", Rule: alwaysBool},
	OpLogicalOr:  {ID: OpLogicalOr, Arity: 2, Pure: true, Symbol: "||", Rule: alwaysBool},
	OpLogicalNot: {ID: OpLogicalNot, Arity: 1, Pure: true, Symbol: "!", Rule: alwaysBool},
}

var builtinsByName map[string]builtinEntry
var builtinsByID map[BuiltinID]builtinEntry

func init() {
	checkBuiltinTableSorted()
	builtinsByName = make(map[string]builtinEntry, len(builtinTable))
	builtinsByID = make(map[BuiltinID]builtinEntry, len(builtinTable)+len(operatorTable))
	for _, e := range builtinTable {
		builtinsByName[e.Name] = e
		builtinsByID[e.ID] = e
	}
	for id, e := range operatorTable {
		builtinsByID[id] = e
	}
}

// checkBuiltinTableSorted is the startup invariant spec.md §4.1
// mandates: "an invariant-checking routine MUST verify sort order at
// startup." A panic here is a programming error (someone appended an
// entry out of order), not a runtime condition callers should recover
// from.
func checkBuiltinTableSorted() {
	for i := 1; i < len(builtinTable); i++ {
		if builtinTable[i-1].Name >= builtinTable[i].Name {
			panic(fmt.Sprintf("builtin table not sorted: %q >= %q", builtinTable[i-1].Name, builtinTable[i].Name))
		}
	}
}

func lookupBuiltinByName(name string) (builtinEntry, bool) {
	e, ok := builtinsByName[name]
	return e, ok
}

func lookupBuiltinByID(id BuiltinID) (builtinEntry, bool) {
	e, ok := builtinsByID[id]
	return e, ok
}

func (id BuiltinID) IsReduction() bool {
	switch id {
	case BSum, BProd, BMin, BMax, BAny, BAll:
		return true
	}
	return false
}

func (id BuiltinID) IsComparison() bool {
	switch id {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

func (id BuiltinID) IsStringOnly() bool {
	switch id {
	case BStartsWith, BEndsWith, BContains:
		return true
	}
	return false
}

func (id BuiltinID) AllowsString() bool {
	switch id {
	case OpEq, OpNe, BStartsWith, BEndsWith, BContains:
		return true
	}
	return false
}
