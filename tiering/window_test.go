package tiering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAssigner(t *testing.T, base, maxAge int64, perTier int) *WindowAssigner {
	t.Helper()
	a, err := NewWindowAssigner(base, maxAge, perTier)
	require.NoError(t, err)
	return a
}

func TestNewWindowAssignerValidation(t *testing.T) {
	_, err := NewWindowAssigner(0, 100, 4)
	assert.Error(t, err)
	_, err = NewWindowAssigner(-6, 100, 4)
	assert.Error(t, err)
	_, err = NewWindowAssigner(6, 100, 1)
	assert.Error(t, err)
	_, err = NewWindowAssigner(6, -1, 4)
	assert.Error(t, err)
}

func TestIncomingWindowContainsNow(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)

	w := a.IncomingWindow(16)
	assert.Equal(t, int64(12), w.Start())
	assert.Equal(t, int64(18), w.End())
	assert.Equal(t, 0, w.CompareToTimestamp(16))
}

func TestCompareToTimestampBoundaries(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)
	w := a.IncomingWindow(16) // [12, 18)

	// A timestamp exactly on the lower boundary belongs to the window.
	assert.Equal(t, 0, w.CompareToTimestamp(12))
	assert.Equal(t, 0, w.CompareToTimestamp(17))
	// The upper boundary belongs to the next window.
	assert.Equal(t, -1, w.CompareToTimestamp(18))
	assert.Equal(t, 1, w.CompareToTimestamp(11))
}

func TestCompareToTimestampNegative(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)
	w := a.IncomingWindow(1) // [0, 6)

	assert.Equal(t, 0, w.CompareToTimestamp(0))
	assert.Equal(t, 1, w.CompareToTimestamp(-1))

	earlier := w.NextEarlier() // promotes to [-24, 0)
	assert.Equal(t, int64(-24), earlier.Start())
	assert.Equal(t, int64(0), earlier.End())
	assert.Equal(t, 0, earlier.CompareToTimestamp(-1))
	assert.Equal(t, 0, earlier.CompareToTimestamp(-24))
	assert.Equal(t, 1, earlier.CompareToTimestamp(-25))
}

func TestNextEarlierLadder(t *testing.T) {
	// With now=161 and max age 100 the ladder is three base windows, then
	// tier-1 windows of width 24 until the age cutoff freezes the width.
	a := newTestAssigner(t, 6, 100, 4)

	var starts []int64
	w := a.IncomingWindow(161)
	for i := 0; i < 8; i++ {
		starts = append(starts, w.Start())
		w = w.NextEarlier()
	}
	assert.Equal(t, []int64{156, 150, 144, 120, 96, 72, 48, 24}, starts)
}

func TestNextEarlierStopsWideningPastMaxAge(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)

	w := a.AssignWindow(161, 96) // [96, 120), width 24
	assert.Equal(t, int64(96), w.Start())
	assert.Equal(t, int64(120), w.End())

	// 96-96=0 is before the cutoff of 61, so the width stays 24 instead of
	// promoting to 96.
	earlier := w.NextEarlier()
	assert.Equal(t, int64(72), earlier.Start())
	assert.Equal(t, int64(96), earlier.End())
}

func TestAssignWindowLocatesTimestamp(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)

	w := a.AssignWindow(161, 143)
	assert.Equal(t, int64(120), w.Start())
	assert.Equal(t, int64(144), w.End())
	assert.Equal(t, 0, w.CompareToTimestamp(143))

	w = a.AssignWindow(16, 15)
	assert.Equal(t, int64(12), w.Start())
}

func TestWindowArithmeticSaturatesAtExtremes(t *testing.T) {
	a := newTestAssigner(t, math.MaxInt64/2, 100, 2)

	w := a.IncomingWindow(math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64-1), w.Start())
	assert.Equal(t, int64(math.MaxInt64), w.End())

	var starts []int64
	for i := 0; i < 4; i++ {
		starts = append(starts, w.Start())
		w = w.NextEarlier()
	}
	assert.Equal(t, []int64{
		math.MaxInt64 - 1,
		math.MaxInt64 / 2,
		0,
		-math.MaxInt64 / 2,
	}, starts)
	// The walk keeps terminating: the next window covers the far negative
	// range rather than wrapping around.
	assert.Equal(t, 0, w.CompareToTimestamp(math.MinInt64))
}

func TestWindowString(t *testing.T) {
	a := newTestAssigner(t, 6, 100, 4)
	assert.Equal(t, "[12, 18)", a.IncomingWindow(16).String())
}
