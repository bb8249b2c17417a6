package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Dtype
		want    Dtype
		wantErr bool
	}{
		{"same dtype", I32, I32, I32, false},
		{"bool with int widens to int", Bool, I16, I16, false},
		{"f32 x f64 widens to f64", F32, F64, F64, false},
		{"int x float keeps float width", I64, F32, F32, false},
		{"same-sign int widens to wider", I8, I32, I32, false},
		{"i64 x u8 stays i64 (u8 fits in i16)", I64, U8, I64, false},
		{"u64 x i32 has no signed home, stays u64", U64, I32, U64, false},
		{"string x string", Str, Str, Str, false},
		{"string x number errors", Str, I32, AUTO, true},
		{"complex x complex widens", C64, C128, C128, false},
		{"real x complex widens per width", F64, C64, C128, false},
		{"narrow real x c64 stays c64", I8, C64, C64, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Promote(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// promotion is symmetric.
			got2, err2 := Promote(tt.b, tt.a)
			require.NoError(t, err2)
			assert.Equal(t, tt.want, got2)
		})
	}
}

func TestReductionOutputDtype(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		input Dtype
		want  Dtype
	}{
		{"sum over signed int widens to i64", "sum", I16, I64},
		{"sum over unsigned int widens to u64", "sum", U16, U64},
		{"sum over bool widens to i64", "sum", Bool, I64},
		{"sum over float keeps width", "sum", F32, F32},
		{"min keeps input dtype", "min", I32, I32},
		{"any yields bool", "any", Bool, Bool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReductionOutputDtype(tt.op, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReductionOutputDtype_UnknownOpErrors(t *testing.T) {
	_, err := ReductionOutputDtype("median", F64)
	assert.Error(t, err)
}

func TestDtype_Predicates(t *testing.T) {
	assert.True(t, I32.IsInteger())
	assert.True(t, I32.IsSignedInteger())
	assert.False(t, I32.IsUnsignedInteger())
	assert.True(t, U32.IsUnsignedInteger())
	assert.True(t, F64.IsFloat())
	assert.True(t, C128.IsComplex())
	assert.True(t, Bool.IsReal())
	assert.True(t, I64.IsNumeric())
	assert.False(t, Str.IsNumeric())
}

func TestDtype_Width(t *testing.T) {
	assert.Equal(t, 1, I8.Width())
	assert.Equal(t, 4, F32.Width())
	assert.Equal(t, 8, F64.Width())
	assert.Equal(t, 16, C128.Width())
	assert.Equal(t, 0, Str.Width())
}

func TestDtype_String(t *testing.T) {
	assert.Equal(t, "i64", I64.String())
	assert.Equal(t, "auto", AUTO.String())
}
