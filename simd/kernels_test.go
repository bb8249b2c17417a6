package simd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinCosPythagorean(t *testing.T) {
	for _, x := range []float64{0, 0.1, 1, 2.5, -3.2, 10.75} {
		for _, mode := range []ULPMode{ULP1, ULP35} {
			sin, ok := UnaryKernel("sin", mode)
			assert.True(t, ok)
			cos, ok := UnaryKernel("cos", mode)
			assert.True(t, ok)
			got := sin(x)*sin(x) + cos(x)*cos(x)
			tol := 5e-15
			if mode == ULP35 {
				tol = 5e-9
			}
			assert.InDelta(t, 1.0, got, tol)
		}
	}
}

func TestFastExpMatchesStdlib(t *testing.T) {
	for _, x := range []float64{-4, -1, 0, 0.5, 2, 6} {
		assert.InDelta(t, math.Exp(x), fastExp(x), math.Exp(x)*1e-6+1e-9)
	}
}

func TestFastLogMatchesStdlib(t *testing.T) {
	for _, x := range []float64{0.01, 0.5, 1, 2, 50, 1000} {
		assert.InDelta(t, math.Log(x), fastLog(x), 1e-6)
	}
}

func TestUnknownKernelName(t *testing.T) {
	_, ok := UnaryKernel("not_a_function", ULP1)
	assert.False(t, ok)
}

func TestVectorWidthHintPositive(t *testing.T) {
	assert.GreaterOrEqual(t, VectorWidthHint(8), 1)
}
