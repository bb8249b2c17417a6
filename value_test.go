package miniexpr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstValue_Conversions(t *testing.T) {
	tests := []struct {
		name      string
		v         ConstValue
		wantFloat float64
		wantInt   int64
		wantBool  bool
	}{
		{"signed int", NewIntConst(-7, I64), -7, -7, true},
		{"unsigned int", NewUintConst(9, U32), 9, 9, true},
		{"float", NewFloatConst(2.5, F64), 2.5, 2, true},
		{"bool true", NewBoolConst(true), 1, 1, true},
		{"bool false", NewBoolConst(false), 0, 0, false},
		{"zero float is falsy", NewFloatConst(0, F64), 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFloat, tt.v.AsFloat64())
			assert.Equal(t, tt.wantInt, tt.v.AsInt64())
			assert.Equal(t, tt.wantBool, tt.v.AsBool())
		})
	}
}

func TestConstValue_Equal(t *testing.T) {
	assert.True(t, NewIntConst(3, I64).Equal(NewIntConst(3, I64)))
	assert.False(t, NewIntConst(3, I64).Equal(NewIntConst(4, I64)))
	assert.False(t, NewIntConst(3, I64).Equal(NewFloatConst(3, F64)), "dtypes differ")
	assert.True(t, NewStringConst([]rune("hi")).Equal(NewStringConst([]rune("hi"))))
}

func TestConstValue_String(t *testing.T) {
	tests := []struct {
		name string
		v    ConstValue
		want string
	}{
		{"int", NewIntConst(42, I64), "42"},
		{"uint", NewUintConst(7, U32), "7"},
		{"bool", NewBoolConst(true), "true"},
		{"float integral widens with .0", NewFloatConst(3, F64), "3.0"},
		{"float fractional", NewFloatConst(3.5, F64), "3.5"},
		{"positive infinity", NewFloatConst(math.Inf(1), F64), "inf"},
		{"negative infinity", NewFloatConst(math.Inf(-1), F64), "-inf"},
		{"string is quoted", NewStringConst([]rune("hi")), `"hi"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}
