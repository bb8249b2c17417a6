package miniexpr

import "golang.org/x/exp/constraints"

// minOrdered/maxOrdered back the small int-comparison helpers scattered
// through the layout dispatcher and block loop (ndlayout.go, api.go);
// written generic over constraints.Ordered rather than duplicated per
// call site, the way a numeric-heavy Go codebase typically factors
// this once a second instantiation shows up.
func minOrdered[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxOrdered[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
