package tiering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/testutil"
)

func filesWithSizes(sizes ...int64) []core.StoreFile {
	files := make([]core.StoreFile, len(sizes))
	for i, s := range sizes {
		files[i] = testutil.NewMemFile(uint64(i+1), s, 0, int64(i), uint64(i+1))
	}
	return files
}

func TestExplorerPicksLargestValidRun(t *testing.T) {
	e := NewRatioExplorer(2, 12)
	files := filesWithSizes(20, 21, 22, 280, 23, 24)

	got := e.Apply(files, 1.2)
	require.NotNil(t, got)
	// The 280-byte file poisons every run containing it; the longest clean
	// run is the three files before it.
	assert.Equal(t, []int64{20, 21, 22}, sizesOf(got))
}

func TestExplorerPrefersMoreFilesThenSmallerSize(t *testing.T) {
	e := NewRatioExplorer(2, 12)

	// Two disjoint valid runs of equal length: the cheaper one wins.
	files := filesWithSizes(50, 51, 9000, 20, 21)
	got := e.Apply(files, 1.2)
	require.NotNil(t, got)
	assert.Equal(t, []int64{20, 21}, sizesOf(got))

	// A longer run beats a cheaper shorter one.
	files = filesWithSizes(2, 3, 9000, 30, 31, 32)
	got = e.Apply(files, 1.2)
	require.NotNil(t, got)
	assert.Equal(t, []int64{30, 31, 32}, sizesOf(got))
}

func TestExplorerHonorsMaxFiles(t *testing.T) {
	e := NewRatioExplorer(2, 3)
	files := filesWithSizes(10, 11, 12, 13, 14)

	got := e.Apply(files, 1.2)
	require.NotNil(t, got)
	assert.Len(t, got, 3)
	for _, f := range got {
		assert.True(t, filesInRatio([]core.StoreFile{f}, 1.2))
	}
}

func TestExplorerReturnsNilWhenNothingQualifies(t *testing.T) {
	e := NewRatioExplorer(2, 12)

	assert.Nil(t, e.Apply(filesWithSizes(10), 1.2))
	assert.Nil(t, e.Apply(filesWithSizes(1, 9000), 1.2))
	assert.Nil(t, e.Apply(nil, 1.2))
}

func TestExplorerResultSatisfiesRatio(t *testing.T) {
	e := NewRatioExplorer(2, 12)
	files := filesWithSizes(5, 400, 12, 13, 700, 14, 15, 16, 3000)

	got := e.Apply(files, 1.2)
	if got != nil {
		assert.True(t, filesInRatio(got, 1.2))
		assert.GreaterOrEqual(t, len(got), 2)
		assert.LessOrEqual(t, len(got), 12)
	}
}

func TestFilesInRatio(t *testing.T) {
	assert.True(t, filesInRatio(filesWithSizes(10, 10, 10), 1.2))
	// 25 > 1.2 * (10+10)
	assert.False(t, filesInRatio(filesWithSizes(10, 10, 25), 1.2))
	// 24 <= 1.2 * 20
	assert.True(t, filesInRatio(filesWithSizes(10, 10, 24), 1.2))
	// Single files are trivially in ratio.
	assert.True(t, filesInRatio(filesWithSizes(9000), 1.2))
}

func TestTrimToMaxFilesDropsLargestKeepingOrder(t *testing.T) {
	files := filesWithSizes(20, 9000, 21, 400, 22)

	trimmed := trimToMaxFiles(files, 3)
	assert.Equal(t, []int64{20, 21, 22}, sizesOf(trimmed))

	// Already small enough: untouched.
	assert.Equal(t, []int64{20, 9000, 21, 400, 22}, sizesOf(trimToMaxFiles(files, 5)))
}

func sizesOf(files []core.StoreFile) []int64 {
	out := make([]int64, 0, len(files))
	for _, f := range files {
		out = append(out, f.Size())
	}
	return out
}
