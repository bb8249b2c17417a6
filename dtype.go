package miniexpr

import "fmt"

// Dtype is the engine's scalar element type, spec.md §3. AUTO is a
// compile-time-only sentinel requesting inference; it never appears on
// a fully type-checked node.
type Dtype int

const (
	AUTO Dtype = iota
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	C64
	C128
	Bool
	Str // fixed-width UCS-4 string; item byte width carried per Variable
)

var dtypeNames = map[Dtype]string{
	AUTO: "auto",
	I8:   "i8", I16: "i16", I32: "i32", I64: "i64",
	U8: "u8", U16: "u16", U32: "u32", U64: "u64",
	F32: "f32", F64: "f64",
	C64: "c64", C128: "c128",
	Bool: "bool",
	Str:  "str",
}

func (d Dtype) String() string {
	if n, ok := dtypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

func (d Dtype) IsInteger() bool {
	switch d {
	case I8, I16, I32, I64, U8, U16, U32, U64:
		return true
	}
	return false
}

func (d Dtype) IsSignedInteger() bool {
	switch d {
	case I8, I16, I32, I64:
		return true
	}
	return false
}

func (d Dtype) IsUnsignedInteger() bool {
	switch d {
	case U8, U16, U32, U64:
		return true
	}
	return false
}

func (d Dtype) IsFloat() bool { return d == F32 || d == F64 }

func (d Dtype) IsComplex() bool { return d == C64 || d == C128 }

func (d Dtype) IsReal() bool { return d.IsInteger() || d.IsFloat() || d == Bool }

func (d Dtype) IsNumeric() bool { return d.IsReal() || d.IsComplex() }

// Width returns the element size in bytes for fixed-width dtypes.
// Str's width is not fixed engine-wide (spec.md §3: "item size in
// bytes recorded per variable"), so it is not handled here.
func (d Dtype) Width() int {
	switch d {
	case I8, U8, Bool:
		return 1
	case I16, U16:
		return 2
	case I32, U32, F32:
		return 4
	case I64, U64, F64, C64:
		return 8
	case C128:
		return 16
	}
	return 0
}

// intRankByWidth orders integer dtypes by width for widening decisions; index
// is "how many bits, ignoring sign".
var intRankByWidth = map[Dtype]int{
	I8: 1, U8: 1,
	I16: 2, U16: 2,
	I32: 3, U32: 3,
	I64: 4, U64: 4,
}

// signedEquivalentWidening returns the smallest signed integer dtype
// whose range contains all values of u.
func signedEquivalentWidening(u Dtype) Dtype {
	switch u {
	case U8:
		return I16
	case U16:
		return I32
	case U32:
		return I64
	case U64:
		// No wider signed type exists; the promotion rule in spec.md
		// §4.2 ("promoting unsigned to the next signed width
		// sufficient to hold it") has no headroom left at u64, so the
		// unsigned type itself is kept. Downstream arithmetic on two
		// u64 operands stays unsigned.
		return U64
	}
	return u
}

// Promote implements the two-operand promotion lattice from spec.md
// §4.2. Order of arguments does not matter; the result is symmetric.
func Promote(a, b Dtype) (Dtype, error) {
	if a == b {
		return a, nil
	}

	// bool widens to whatever integer dtype it's compared/operated
	// with.
	if a == Bool && b.IsInteger() {
		return b, nil
	}
	if b == Bool && a.IsInteger() {
		return a, nil
	}
	if a == Bool && b == Bool {
		return Bool, nil
	}

	// string only promotes with string (spec.md restricts string ops
	// to string/string and the result is always boolean, handled by
	// the caller via the comparison/predicate output rule, not here).
	if a == Str || b == Str {
		if a == Str && b == Str {
			return Str, nil
		}
		return AUTO, fmt.Errorf("string can't be promoted with non-string dtype %s/%s", a, b)
	}

	// complex x complex: c64 x c128 -> c128
	if a.IsComplex() && b.IsComplex() {
		return C128, nil
	}
	// real x complex -> complex of matching width
	if a.IsComplex() && b.IsReal() {
		return promoteRealIntoComplex(a, b), nil
	}
	if b.IsComplex() && a.IsReal() {
		return promoteRealIntoComplex(b, a), nil
	}

	// f32 x f64 -> f64
	if a.IsFloat() && b.IsFloat() {
		return F64, nil
	}
	// integer x float -> float of the float's width, never widening
	// the float beyond its own source width.
	if a.IsFloat() && b.IsInteger() {
		return a, nil
	}
	if b.IsFloat() && a.IsInteger() {
		return b, nil
	}

	// integer x integer: signed widening to the wider of the two,
	// preserving signedness if both signed, otherwise promoting
	// unsigned to the next signed width sufficient to hold it.
	if a.IsInteger() && b.IsInteger() {
		return promoteIntInt(a, b), nil
	}

	return AUTO, fmt.Errorf("no promotion rule for dtypes %s/%s", a, b)
}

func promoteRealIntoComplex(complexDtype, real Dtype) Dtype {
	if complexDtype == C128 {
		return C128
	}
	// c64 paired with f64 (or an integer wide enough that it would
	// promote to f64 on its own) widens to c128; paired with
	// anything narrower it stays c64.
	if real == F64 || real == I64 || real == U64 {
		return C128
	}
	return C64
}

func promoteIntInt(a, b Dtype) Dtype {
	if a.IsSignedInteger() && b.IsSignedInteger() {
		if intRankByWidth[a] >= intRankByWidth[b] {
			return a
		}
		return b
	}
	if a.IsUnsignedInteger() && b.IsUnsignedInteger() {
		if intRankByWidth[a] >= intRankByWidth[b] {
			return a
		}
		return b
	}
	// one signed, one unsigned: promote the unsigned operand to the
	// next signed width sufficient to hold it, then widen to the wider
	// of the two signed dtypes.
	var signed, unsigned Dtype
	if a.IsSignedInteger() {
		signed, unsigned = a, b
	} else {
		signed, unsigned = b, a
	}
	widenedUnsigned := signedEquivalentWidening(unsigned)
	if !widenedUnsigned.IsSignedInteger() {
		// u64 has no wider signed home; the result stays u64-ranged,
		// so fall back to the unsigned dtype itself.
		return widenedUnsigned
	}
	if intRankByWidth[widenedUnsigned] >= intRankByWidth[signed] {
		return widenedUnsigned
	}
	return signed
}

// narrowestSignedInt returns the narrowest signed integer dtype that
// can hold v, per the literal policy in spec.md §4.2.
func narrowestSignedInt(v int64) Dtype {
	switch {
	case v >= -128 && v <= 127:
		return I8
	case v >= -32768 && v <= 32767:
		return I16
	case v >= -2147483648 && v <= 2147483647:
		return I32
	default:
		return I64
	}
}

// ReductionOutputDtype implements spec.md §4.2's reduction output rule:
// sum/prod over integer -> i64/u64 (signedness preserved); sum/prod
// over float -> same float width; min/max -> input dtype; any/all ->
// boolean.
func ReductionOutputDtype(op string, input Dtype) (Dtype, error) {
	switch op {
	case "sum", "prod":
		switch {
		case input.IsSignedInteger() || input == Bool:
			return I64, nil
		case input.IsUnsignedInteger():
			return U64, nil
		case input.IsFloat():
			return input, nil
		case input.IsComplex():
			return input, nil
		}
		return AUTO, fmt.Errorf("%s: unsupported input dtype %s", op, input)
	case "min", "max":
		return input, nil
	case "any", "all":
		return Bool, nil
	}
	return AUTO, fmt.Errorf("unknown reduction %q", op)
}

// representable reports whether a value of dtype from can be cast to
// dtype to: any numeric to numeric except complex to real, and string
// only to string. Used to validate a concrete (non-AUTO) output dtype
// (Compile in api.go, castBuffer in interp.go), spec.md §4.2
// ("validate that it is reachable").
func representable(from, to Dtype) bool {
	if from == to {
		return true
	}
	if to == Str || from == Str {
		return from == to
	}
	if from.IsComplex() && !to.IsComplex() {
		return false // narrowing a complex value to real drops data
	}
	return to.IsNumeric() && from.IsNumeric()
}
