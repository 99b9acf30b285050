package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.UnixMilli(1000)
	c := NewMockClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, int64(1250), c.Now().UnixMilli())

	c.SetTime(time.UnixMilli(42))
	assert.Equal(t, int64(42), c.Now().UnixMilli())
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := SystemClockDefault.Now()
	assert.False(t, got.Before(before))
}
