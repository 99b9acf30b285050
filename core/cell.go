package core

import "bytes"

// CellType defines the logical type of a cell in a store file.
type CellType byte

const (
	// CellTypePut is a regular versioned value.
	CellTypePut CellType = 'P'
	// CellTypeDelete is a tombstone covering a single version of a key.
	CellTypeDelete CellType = 'D'
	// CellTypeDeleteFamily is a tombstone covering all versions of a key
	// at or before its timestamp.
	CellTypeDeleteFamily CellType = 'F'
)

// Cell is a single immutable key-value entry inside a store file.
// Key carries the packed row/family/qualifier produced by the file catalog;
// the engine treats it as an opaque, ordered byte string.
type Cell struct {
	Key       []byte
	Timestamp int64
	SeqID     uint64
	Type      CellType
	Value     []byte
	Tags      []byte
}

// cellFixedOverhead accounts for the timestamp, sequence id and type bytes
// when estimating the on-disk footprint of a cell.
const cellFixedOverhead = 8 + 8 + 1

// EncodedSize estimates how many bytes the cell occupies in a store file.
func (c *Cell) EncodedSize() int64 {
	return int64(len(c.Key)+len(c.Value)+len(c.Tags)) + cellFixedOverhead
}

// Clone returns a deep copy of the cell. Iterators are allowed to reuse
// their buffers between calls to Next, so anything held across an advance
// must be cloned.
func (c *Cell) Clone() *Cell {
	dup := &Cell{
		Key:       append([]byte(nil), c.Key...),
		Timestamp: c.Timestamp,
		SeqID:     c.SeqID,
		Type:      c.Type,
		Value:     append([]byte(nil), c.Value...),
	}
	if c.Tags != nil {
		dup.Tags = append([]byte(nil), c.Tags...)
	}
	return dup
}

// CompareCells orders cells the way merged output must be ordered:
// key ascending, then timestamp descending (newest version first), then
// type, then sequence id descending.
func CompareCells(a, b *Cell) int {
	if cmp := bytes.Compare(a.Key, b.Key); cmp != 0 {
		return cmp
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return -1
		}
		return 1
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	if a.SeqID != b.SeqID {
		if a.SeqID > b.SeqID {
			return -1
		}
		return 1
	}
	return 0
}
