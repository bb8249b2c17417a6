package miniexpr

import (
	"testing"

	"github.com/clarete/miniexpr/simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalDSLBlock_ReservedIndexVars_FlatWalk(t *testing.T) {
	src := "def kernel():\n    return _flat_idx + _i0 + _n0\n"
	dp, err := ParseDSL(src, nil)
	require.NoError(t, err)

	out, err := evalDSLBlockAt(dp, nil, 3, simd.Policy{}, 10, 20)
	require.NoError(t, err)

	// lane 0: _flat_idx=_global_linear_idx=10, _i0=0, _n0=20 -> 30
	assert.Equal(t, int64(30), intOf(out, 0))
	assert.Equal(t, int64(32), intOf(out, 1))
	assert.Equal(t, int64(34), intOf(out, 2))
}

func TestEvalDSLBlock_ReservedIndexVars_Ndim(t *testing.T) {
	src := "def kernel():\n    return _ndim\n"
	dp, err := ParseDSL(src, nil)
	require.NoError(t, err)

	out, err := evalDSLBlockAt(dp, nil, 1, simd.Policy{}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), intOf(out, 0))
}

// TestEvalDSLBlockND_ReservedIndexVars reproduces spec.md §8 scenario
// 6 exactly: a 2-D block starting at global (3, 0) with block (4, N)
// and shape (R, N), kernel `return _flat_idx + 17 + 5`. Every valid
// lane must equal (3+i0)*N + i1 + 22; every padded lane must be 0.
func TestEvalDSLBlockND_ReservedIndexVars(t *testing.T) {
	const N = 5
	const R = 10
	src := "def kernel():\n    return _flat_idx + 17 + 5\n"
	dp, err := ParseDSL(src, nil)
	require.NoError(t, err)

	layout := &NDLayout{Rank: 2, Shape: [MaxRank]int{R, N}, Block: [MaxRank]int{4, N}}
	ext := BlockExtent{GlobalStart: [MaxRank]int{3, 0}, Valid: [MaxRank]int{3, 4}}
	blockLen := 4 * N

	out, err := EvalDSLBlockND(dp, nil, blockLen, simd.Policy{}, layout, ext)
	require.NoError(t, err)

	for i0 := 0; i0 < 4; i0++ {
		for i1 := 0; i1 < N; i1++ {
			lane := i0*N + i1
			got := intOf(out, lane)
			if i0 < ext.Valid[0] && i1 < ext.Valid[1] {
				want := int64((3+i0)*N + i1 + 22)
				assert.Equal(t, want, got, "lane (%d,%d)", i0, i1)
			} else {
				assert.Equal(t, int64(0), got, "padded lane (%d,%d)", i0, i1)
			}
		}
	}
}

func TestEvalDSLBlockND_ReservedIndexVars_IAndN(t *testing.T) {
	src := "def kernel():\n    return _i0 * 100 + _i1 + _n0 + _n1\n"
	dp, err := ParseDSL(src, nil)
	require.NoError(t, err)

	layout := &NDLayout{Rank: 2, Shape: [MaxRank]int{7, 9}, Block: [MaxRank]int{2, 3}}
	ext := BlockExtent{GlobalStart: [MaxRank]int{0, 0}, Valid: [MaxRank]int{2, 3}}

	out, err := EvalDSLBlockND(dp, nil, 6, simd.Policy{}, layout, ext)
	require.NoError(t, err)

	// lane (i0=1, i1=2): 1*100 + 2 + 7 + 9 = 118
	assert.Equal(t, int64(118), intOf(out, 1*3+2))
}
