package compaction

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/testutil"
)

func TestNewBoundaryMultiWriterValidation(t *testing.T) {
	rec := &testutil.WriterRecorder{}

	_, err := NewBoundaryMultiWriter(nil, 0, rec.Factory())
	assert.Error(t, err)

	// First boundary must be the sentinel.
	_, err = NewBoundaryMultiWriter([]int64{0, 10}, 0, rec.Factory())
	assert.Error(t, err)

	// Strictly ascending.
	_, err = NewBoundaryMultiWriter([]int64{math.MinInt64, 10, 10}, 0, rec.Factory())
	assert.Error(t, err)

	_, err = NewBoundaryMultiWriter([]int64{math.MinInt64, 10, 20}, 0, rec.Factory())
	assert.NoError(t, err)
}

func TestMultiWriterRoutesCellsByTimestamp(t *testing.T) {
	rec := &testutil.WriterRecorder{}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64, 10, 20}, 100, rec.Factory())
	require.NoError(t, err)

	cells := []core.Cell{
		{Key: []byte("a"), Timestamp: 5},
		{Key: []byte("b"), Timestamp: 10}, // exactly on a boundary: upper window
		{Key: []byte("c"), Timestamp: 19},
		{Key: []byte("d"), Timestamp: 25},
	}
	for i := range cells {
		require.NoError(t, mw.Append(&cells[i]))
	}

	oldest := rec.WriterForStart(math.MinInt64)
	require.NotNil(t, oldest)
	require.Len(t, oldest.Cells, 1)
	assert.Equal(t, []byte("a"), oldest.Cells[0].Key)

	mid := rec.WriterForStart(10)
	require.NotNil(t, mid)
	require.Len(t, mid.Cells, 2)
	assert.Equal(t, []byte("b"), mid.Cells[0].Key)
	assert.Equal(t, []byte("c"), mid.Cells[1].Key)

	newest := rec.WriterForStart(20)
	require.NotNil(t, newest)
	require.Len(t, newest.Cells, 1)

	assert.Equal(t, 3, mw.WriterCount())
	assert.Equal(t, uint64(100), oldest.Opts.EstimatedKeys)
}

func TestMultiWriterSkipsEmptyWindows(t *testing.T) {
	rec := &testutil.WriterRecorder{}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64, 10, 20}, 0, rec.Factory())
	require.NoError(t, err)

	c := core.Cell{Key: []byte("a"), Timestamp: 25}
	require.NoError(t, mw.Append(&c))
	require.NoError(t, mw.FinishWithMetadata(core.OutputMetadata{MaxSeqID: 1}))

	// Only the window that received data exists.
	assert.Equal(t, 1, mw.WriterCount())
	require.Len(t, rec.Writers, 1)
	assert.True(t, rec.Writers[0].Finished)
	assert.Equal(t, uint64(1), rec.Writers[0].Meta.MaxSeqID)
}

func TestMultiWriterFinishFailureAbortsRemaining(t *testing.T) {
	rec := &testutil.WriterRecorder{}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64, 10}, 0, rec.Factory())
	require.NoError(t, err)

	a := core.Cell{Key: []byte("a"), Timestamp: 5}
	b := core.Cell{Key: []byte("b"), Timestamp: 15}
	require.NoError(t, mw.Append(&a))
	require.NoError(t, mw.Append(&b))

	rec.WriterForStart(math.MinInt64).FinishErr = errors.New("disk full")
	err = mw.FinishWithMetadata(core.OutputMetadata{})
	require.Error(t, err)
	assert.True(t, rec.WriterForStart(10).Aborted)
	assert.False(t, rec.WriterForStart(10).Finished)
}

func TestMultiWriterAbortDiscardsEverything(t *testing.T) {
	rec := &testutil.WriterRecorder{}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64, 10}, 0, rec.Factory())
	require.NoError(t, err)

	a := core.Cell{Key: []byte("a"), Timestamp: 5}
	b := core.Cell{Key: []byte("b"), Timestamp: 15}
	require.NoError(t, mw.Append(&a))
	require.NoError(t, mw.Append(&b))
	require.NoError(t, mw.Abort())

	for _, w := range rec.Writers {
		assert.True(t, w.Aborted)
	}
}

func TestMultiWriterFactoryFailureSurfaces(t *testing.T) {
	rec := &testutil.WriterRecorder{NextErr: errors.New("no space")}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64}, 0, rec.Factory())
	require.NoError(t, err)

	c := core.Cell{Key: []byte("a"), Timestamp: 5}
	assert.ErrorContains(t, mw.Append(&c), "no space")
}

func TestMultiWriterBytesWritten(t *testing.T) {
	rec := &testutil.WriterRecorder{}
	mw, err := NewBoundaryMultiWriter([]int64{math.MinInt64, 10}, 0, rec.Factory())
	require.NoError(t, err)

	a := core.Cell{Key: []byte("a"), Timestamp: 5, Value: []byte("v")}
	b := core.Cell{Key: []byte("b"), Timestamp: 15, Value: []byte("w")}
	require.NoError(t, mw.Append(&a))
	require.NoError(t, mw.Append(&b))

	assert.Equal(t, a.EncodedSize()+b.EncodedSize(), mw.BytesWritten())
}
