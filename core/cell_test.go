package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareCells(t *testing.T) {
	base := &Cell{Key: []byte("b"), Timestamp: 100, Type: CellTypePut, SeqID: 5}

	t.Run("key ascending", func(t *testing.T) {
		assert.Negative(t, CompareCells(&Cell{Key: []byte("a"), Timestamp: 1}, base))
		assert.Positive(t, CompareCells(&Cell{Key: []byte("c"), Timestamp: 999}, base))
	})
	t.Run("timestamp descending within a key", func(t *testing.T) {
		newer := &Cell{Key: []byte("b"), Timestamp: 200, Type: CellTypePut, SeqID: 1}
		assert.Negative(t, CompareCells(newer, base))
		assert.Positive(t, CompareCells(base, newer))
	})
	t.Run("delete sorts before put at same timestamp", func(t *testing.T) {
		del := &Cell{Key: []byte("b"), Timestamp: 100, Type: CellTypeDelete, SeqID: 5}
		assert.Negative(t, CompareCells(del, base))
	})
	t.Run("seq id descending as last resort", func(t *testing.T) {
		older := &Cell{Key: []byte("b"), Timestamp: 100, Type: CellTypePut, SeqID: 3}
		assert.Negative(t, CompareCells(base, older))
		assert.Equal(t, 0, CompareCells(base, base))
	})
}

func TestCellClone(t *testing.T) {
	c := &Cell{
		Key:       []byte("k"),
		Timestamp: 7,
		SeqID:     9,
		Type:      CellTypePut,
		Value:     []byte("v"),
		Tags:      []byte("t"),
	}
	dup := c.Clone()
	assert.Equal(t, c, dup)

	dup.Key[0] = 'x'
	dup.Value[0] = 'x'
	dup.Tags[0] = 'x'
	assert.Equal(t, []byte("k"), c.Key)
	assert.Equal(t, []byte("v"), c.Value)
	assert.Equal(t, []byte("t"), c.Tags)
}

func TestCellEncodedSize(t *testing.T) {
	c := &Cell{Key: []byte("ab"), Value: []byte("cde"), Tags: []byte("f")}
	// 2 + 3 + 1 payload bytes plus the fixed 17-byte header.
	assert.Equal(t, int64(23), c.EncodedSize())
}
