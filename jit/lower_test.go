package jit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGates(t *testing.T) {
	tests := []struct {
		name    string
		ir      KernelIR
		cfg     GateConfig
		wantErr bool
	}{
		{"clean kernel passes", KernelIR{}, GateConfig{CacheDirWritable: true}, false},
		{"complex arithmetic gated", KernelIR{UsesComplex: true}, GateConfig{CacheDirWritable: true}, true},
		{"string ops gated", KernelIR{UsesString: true}, GateConfig{CacheDirWritable: true}, true},
		{"reserved index without index vars gated", KernelIR{UsesReservedIndex: true}, GateConfig{CacheDirWritable: true, IndexVarsSynthAllowed: true}, true},
		{"reserved index allowed", KernelIR{UsesReservedIndex: true}, GateConfig{CacheDirWritable: true, IndexVarsAllowed: true, IndexVarsSynthAllowed: true}, false},
		{"unwritable cache dir gated", KernelIR{}, GateConfig{CacheDirWritable: false}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckGates(tt.ir, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLower_RendersKernelBlockSignature(t *testing.T) {
	ir := KernelIR{
		Params:      []Param{{Name: "x", CType: "double"}},
		OutputCType: "double",
		Body: []Stmt{
			{Kind: StmtAssign, Target: "double acc", CType: "", Expr: "in_x[row]"},
			{Kind: StmtReturn, Expr: "in_x[row] * 2"},
		},
	}
	src, err := Lower(ir)
	require.NoError(t, err)
	assert.Contains(t, src, "void kernel_block(const void *inputs[], void *output, long nitems, const long indices[])")
	assert.Contains(t, src, "const double *in_x = (const double *)inputs[0];")
	assert.Contains(t, src, "out[row] = in_x[row] * 2;")
}

func TestLower_ForAndIfNesting(t *testing.T) {
	ir := KernelIR{
		OutputCType: "double",
		Body: []Stmt{
			{Kind: StmtFor, LoopVar: "i", LoopBound: "10", Body: []Stmt{
				{Kind: StmtIf, Cond: "i == 3", Then: []Stmt{{Kind: StmtBreak}}, Else: []Stmt{{Kind: StmtContinue}}},
			}},
		},
	}
	src, err := Lower(ir)
	require.NoError(t, err)
	assert.Contains(t, src, "for (long i = 0; i < 10; i++) {")
	assert.Contains(t, src, "if (i == 3) {")
	assert.Contains(t, src, "break;")
	assert.Contains(t, src, "continue;")
}

func TestLower_ReservedIndexEmitsFlatIdx(t *testing.T) {
	ir := KernelIR{OutputCType: "double", UsesReservedIndex: true}
	src, err := Lower(ir)
	require.NoError(t, err)
	assert.Contains(t, src, "const long _flat_idx = indices[row];")
}
