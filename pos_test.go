package miniexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange_String(t *testing.T) {
	assert.Equal(t, "4", NewRange(4, 4).String())
	assert.Equal(t, "4..9", NewRange(4, 9).String())
}

func TestRange_Contains(t *testing.T) {
	assert.True(t, NewRange(0, 10).Contains(NewRange(2, 5)))
	assert.False(t, NewRange(2, 5).Contains(NewRange(0, 10)))
}

func TestLineIndex_LocationAt_SingleLine(t *testing.T) {
	li := NewLineIndex([]byte("x + y"))
	loc := li.LocationAt(4)
	assert.EqualValues(t, 1, loc.Line)
	assert.EqualValues(t, 5, loc.Column)
	assert.Equal(t, 4, loc.Cursor)
}

func TestLineIndex_LocationAt_MultiLine(t *testing.T) {
	li := NewLineIndex([]byte("abc\ndef\nghi"))
	assert.EqualValues(t, Location{Line: 1, Column: 1, Cursor: 0}, li.LocationAt(0))
	assert.EqualValues(t, Location{Line: 2, Column: 1, Cursor: 4}, li.LocationAt(4))
	assert.EqualValues(t, Location{Line: 3, Column: 2, Cursor: 9}, li.LocationAt(9))
}

func TestLineIndex_LocationAt_ClampsOutOfRangeCursor(t *testing.T) {
	li := NewLineIndex([]byte("abc"))
	assert.EqualValues(t, 1, li.LocationAt(-5).Line)
	assert.Equal(t, 0, li.LocationAt(-5).Cursor)
	assert.Equal(t, 3, li.LocationAt(999).Cursor)
}

func TestLineIndex_Span(t *testing.T) {
	li := NewLineIndex([]byte("abc\ndefgh"))
	sp := li.Span(NewRange(4, 7))
	assert.EqualValues(t, 2, sp.Start.Line)
	assert.EqualValues(t, 1, sp.Start.Column)
	assert.EqualValues(t, 2, sp.End.Line)
	assert.EqualValues(t, 4, sp.End.Column)
}

func TestSpan_String_SingleLine(t *testing.T) {
	sp := NewSpan(Location{Line: 1, Column: 3}, Location{Line: 1, Column: 3})
	assert.Equal(t, "3", sp.String())

	sp2 := NewSpan(Location{Line: 1, Column: 3}, Location{Line: 1, Column: 7})
	assert.Equal(t, "3..7", sp2.String())
}

func TestSpan_String_MultiLine(t *testing.T) {
	sp := NewSpan(Location{Line: 2, Column: 3}, Location{Line: 2, Column: 3})
	assert.Equal(t, "2:3", sp.String())

	sp2 := NewSpan(Location{Line: 1, Column: 1}, Location{Line: 2, Column: 4})
	assert.Equal(t, "1:1..2:4", sp2.String())
}
