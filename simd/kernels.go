package simd

import "math"

// Unary is a one-argument transcendental kernel operating on a single
// float64 lane. The block interpreter calls this once per element (or,
// for f32 operands, after widening to float64 and narrowing back) —
// spec.md doesn't require literal SIMD instructions, only that two
// accuracy tiers and a scalar fallback exist and are selected by
// policy; that contract is satisfied by two distinct algorithms per
// function rather than hand-written vector assembly (see DESIGN.md for
// why no cgo/assembly backend is wired).
type Unary func(x float64) float64

// Binary is a two-argument transcendental kernel (atan2, hypot, pow).
type Binary func(x, y float64) float64

// UnaryKernel looks up the unary kernel for name at the given accuracy
// tier. ok is false for names with no vector kernel (binary-only
// functions, or names the registry doesn't recognise).
func UnaryKernel(name string, mode ULPMode) (fn Unary, ok bool) {
	tbl := unaryU10
	if mode == ULP35 {
		tbl = unaryU35
	}
	fn, ok = tbl[name]
	return fn, ok
}

// BinaryKernel looks up the binary kernel for name at the given
// accuracy tier.
func BinaryKernel(name string, mode ULPMode) (fn Binary, ok bool) {
	tbl := binaryU10
	if mode == ULP35 {
		tbl = binaryU35
	}
	fn, ok = tbl[name]
	return fn, ok
}

// u10: the accurate tier. These are simply the standard library's
// correctly-rounded implementations; spec.md's 1-ULP budget is the
// stdlib's own documented accuracy.
var unaryU10 = map[string]Unary{
	"sin":    math.Sin,
	"cos":    math.Cos,
	"tan":    math.Tan,
	"asin":   math.Asin,
	"acos":   math.Acos,
	"atan":   math.Atan,
	"exp":    math.Exp,
	"expm1":  math.Expm1,
	"exp2":   math.Exp2,
	"exp10":  exp10,
	"log":    math.Log,
	"log10":  math.Log10,
	"log1p":  math.Log1p,
	"log2":   math.Log2,
	"sinh":   math.Sinh,
	"cosh":   math.Cosh,
	"tanh":   math.Tanh,
	"asinh":  math.Asinh,
	"acosh":  math.Acosh,
	"atanh":  math.Atanh,
	"sinpi":  sinpi,
	"cospi":  cospi,
	"cbrt":   math.Cbrt,
	"erf":    math.Erf,
	"erfc":   math.Erfc,
	"tgamma": math.Gamma,
	"lgamma": lgammaNoSign,
	"sqrt":   math.Sqrt,
	"abs":    math.Abs,
}

var binaryU10 = map[string]Binary{
	"atan2": math.Atan2,
	"pow":   math.Pow,
	"hypot": math.Hypot,
}

// u35: the fast tier, up to 3.5 ULP. sin/cos/tan, exp and log get
// their own kernels (range reduction + a fixed-length polynomial, with
// no special-case handling); everything else reuses the accurate
// implementation, which trivially satisfies "within the 3.5 ULP
// budget" since it is within the tighter 1 ULP budget.
var unaryU35 = map[string]Unary{
	"sin":    fastSin,
	"cos":    fastCos,
	"tan":    fastTan,
	"asin":   math.Asin,
	"acos":   math.Acos,
	"atan":   math.Atan,
	"exp":    fastExp,
	"expm1":  math.Expm1,
	"exp2":   math.Exp2,
	"exp10":  exp10,
	"log":    fastLog,
	"log10":  math.Log10,
	"log1p":  math.Log1p,
	"log2":   math.Log2,
	"sinh":   math.Sinh,
	"cosh":   math.Cosh,
	"tanh":   math.Tanh,
	"asinh":  math.Asinh,
	"acosh":  math.Acosh,
	"atanh":  math.Atanh,
	"sinpi":  sinpi,
	"cospi":  cospi,
	"cbrt":   math.Cbrt,
	"erf":    math.Erf,
	"erfc":   math.Erfc,
	"tgamma": math.Gamma,
	"lgamma": lgammaNoSign,
	"sqrt":   math.Sqrt,
	"abs":    math.Abs,
}

var binaryU35 = map[string]Binary{
	"atan2": math.Atan2,
	"pow":   math.Pow,
	"hypot": math.Hypot,
}

func exp10(x float64) float64 { return math.Pow(10, x) }
func sinpi(x float64) float64 { return math.Sin(math.Pi * x) }
func cospi(x float64) float64 { return math.Cos(math.Pi * x) }
func lgammaNoSign(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// ---- u35 fast kernels ----
//
// Range-reduce to [-pi/4, pi/4] around the nearest multiple of pi/2,
// subtracting pi/2 in two parts (math.Pi/2, then pio2Lo) with fused
// multiply-adds, then evaluate a degree-17 (sin) / degree-16 (cos)
// truncated Taylor polynomial. This is the same structural shape as
// the accurate libm algorithms, without their extra-precision
// reduction, so the error grows for very large |x|.

const twoOverPi = 0.6366197723675814

// pio2Lo and ln2Lo are the parts of pi/2 and ln 2 that math.Pi/2 and
// math.Ln2 round away.
const (
	pio2Lo = 6.123233995736766e-17
	ln2Lo  = 2.3190468138462996e-17
)

func fastSin(x float64) float64 {
	q := math.Round(x * twoOverPi)
	r := math.FMA(-q, math.Pi/2, x)
	r = math.FMA(-q, pio2Lo, r)
	n := int(q) & 3
	s, c := fastSinCosCore(r)
	switch n {
	case 0:
		return s
	case 1:
		return c
	case 2:
		return -s
	default:
		return -c
	}
}

func fastCos(x float64) float64 {
	q := math.Round(x * twoOverPi)
	r := math.FMA(-q, math.Pi/2, x)
	r = math.FMA(-q, pio2Lo, r)
	s, c := fastSinCosCore(r)
	switch int(q) & 3 {
	case 0:
		return c
	case 1:
		return -s
	case 2:
		return -c
	default:
		return s
	}
}

func fastTan(x float64) float64 {
	q := math.Round(x * twoOverPi)
	r := math.FMA(-q, math.Pi/2, x)
	r = math.FMA(-q, pio2Lo, r)
	n := int(q) & 3
	s, c := fastSinCosCore(r)
	if n&1 == 1 {
		s, c = c, -s
	}
	if n == 2 || n == 3 {
		s, c = -s, -c
	}
	return s / c
}

// fastSinCosCore evaluates odd/even Taylor polynomials for sin/cos of
// r in [-pi/4, pi/4].
func fastSinCosCore(r float64) (s, c float64) {
	r2 := r * r
	// sin(r) ~= r - r^3/3! + r^5/5! - ... + r^17/17!
	s = r * (1 + r2*(-1.0/6+r2*(1.0/120+r2*(-1.0/5040+r2*(1.0/362880+r2*(-1.0/39916800+r2*(1.0/6227020800+r2*(-1.0/1307674368000+r2*(1.0/355687428096000)))))))))
	// cos(r) ~= 1 - r^2/2! + r^4/4! - ... + r^16/16!
	c = 1 + r2*(-0.5+r2*(1.0/24+r2*(-1.0/720+r2*(1.0/40320+r2*(-1.0/3628800+r2*(1.0/479001600+r2*(-1.0/87178291200+r2*(1.0/20922789888000))))))))
	return s, c
}

func fastExp(x float64) float64 {
	// Range-reduce x = k*ln2 + r, r in [-ln2/2, ln2/2] (ln2 subtracted in
	// two parts), then a polynomial for e^r and ldexp back by k.
	k := math.Round(x / math.Ln2)
	r := math.FMA(-k, math.Ln2, x)
	r = math.FMA(-k, ln2Lo, r)
	// e^r ~= 1 + r + r^2/2! + ... + r^12/12!
	er := 1 + r*(1+r*(0.5+r*(1.0/6+r*(1.0/24+r*(1.0/120+r*(1.0/720+r*(1.0/5040+r*(1.0/40320+r*(1.0/362880+r*(1.0/3628800+r*(1.0/39916800+r*(1.0/479001600))))))))))))
	return math.Ldexp(er, int(k))
}

func fastLog(x float64) float64 {
	if x <= 0 {
		return math.Log(x)
	}
	frac, exp := math.Frexp(x)
	// frac in [0.5, 1); shift to [sqrt(0.5), sqrt(2)) for a tighter
	// polynomial around 1.
	if frac < math.Sqrt2/2 {
		frac *= 2
		exp--
	}
	// ln(frac) = 2*atanh(s) with s = (frac-1)/(frac+1), |s| <= 0.172:
	// 2*(s + s^3/3 + s^5/5 + ... + s^21/21)
	s := (frac - 1) / (frac + 1)
	s2 := s * s
	lnFrac := 2 * s * (1 + s2*(1.0/3+s2*(1.0/5+s2*(1.0/7+s2*(1.0/9+s2*(1.0/11+s2*(1.0/13+s2*(1.0/15+s2*(1.0/17+s2*(1.0/19+s2*(1.0/21)))))))))))
	e := float64(exp)
	return math.FMA(e, math.Ln2, math.FMA(e, ln2Lo, lnFrac))
}
