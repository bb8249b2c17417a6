package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarBuffer_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    ConstValue
	}{
		{"signed int", NewIntConst(-5, I32)},
		{"unsigned int", NewUintConst(9, U16)},
		{"float", NewFloatConst(1.5, F64)},
		{"complex", NewComplexConst(complex(1, 2), C128)},
		{"bool", NewBoolConst(true)},
		{"string", NewStringConst([]rune("hi"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := scalarBuffer(tt.v)
			assert.Equal(t, -1, b.length())
			got := scalarToConst(b)
			assert.True(t, tt.v.Equal(got))
		})
	}
}

func TestVectorBuffer_StoreAndReadBack(t *testing.T) {
	out := vectorBuffer(I64, 3)
	assert.Equal(t, 3, out.length())

	storeConst(&out, 0, NewIntConst(10, I64))
	storeConst(&out, 1, NewIntConst(20, I64))
	storeConst(&out, 2, NewIntConst(30, I64))

	assert.Equal(t, int64(10), vectorElemToConst(out, 0).I)
	assert.Equal(t, int64(20), vectorElemToConst(out, 1).I)
	assert.Equal(t, int64(30), vectorElemToConst(out, 2).I)
}

func TestBuffer_AtFloat64BroadcastsScalar(t *testing.T) {
	b := scalarBuffer(NewFloatConst(4.5, F64))
	assert.Equal(t, 4.5, b.atFloat64(0))
	assert.Equal(t, 4.5, b.atFloat64(7))
}

func TestBuffer_AtFloat64OnIntegerVector(t *testing.T) {
	b := vectorBuffer(I32, 2)
	storeConst(&b, 0, NewIntConst(3, I32))
	storeConst(&b, 1, NewIntConst(4, I32))
	assert.Equal(t, 3.0, b.atFloat64(0))
	assert.Equal(t, 4.0, b.atFloat64(1))
}

func TestTempStack_PushPopTopPopN(t *testing.T) {
	var s tempStack
	s.push(scalarBuffer(NewIntConst(1, I64)))
	s.push(scalarBuffer(NewIntConst(2, I64)))
	s.push(scalarBuffer(NewIntConst(3, I64)))

	assert.Equal(t, 3, s.len())
	assert.Equal(t, int64(3), s.top().sI)

	top := s.pop()
	assert.Equal(t, int64(3), top.sI)
	assert.Equal(t, 2, s.len())

	rest := s.popN(2)
	assert.Equal(t, int64(1), rest[0].sI)
	assert.Equal(t, int64(2), rest[1].sI)
	assert.Equal(t, 0, s.len())
}
