// Package iterator provides the k-way merging cursor the compaction executor
// streams input files through.
package iterator

import (
	"container/heap"
	"fmt"

	"github.com/INLOpen/nexustier/core"
)

// mergingItem is an entry in the merge heap: one source iterator plus its
// current cell, cloned because the source may reuse its buffers on Next().
type mergingItem struct {
	iter core.CellIterator
	cell *core.Cell
}

// mergingHeap implements heap.Interface ordered by the global cell order
// (key ascending, timestamp descending, type, sequence id descending).
type mergingHeap []*mergingItem

func (h mergingHeap) Len() int { return len(h) }
func (h mergingHeap) Less(i, j int) bool {
	return core.CompareCells(h[i].cell, h[j].cell) < 0
}
func (h mergingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergingHeap) Push(x interface{}) {
	*h = append(*h, x.(*mergingItem))
}
func (h *mergingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[0 : n-1]
	return item
}

// MergingIterator combines the cell streams of multiple store files into one
// globally ordered stream. Cells from one source retain their original order;
// nothing is deduplicated or dropped here - visibility decisions belong to
// the caller.
type MergingIterator struct {
	iters   []core.CellIterator
	heap    mergingHeap
	current *core.Cell
	err     error
}

var _ core.CellIterator = (*MergingIterator)(nil)

// NewMerging primes one heap entry per source iterator. Sources that are
// exhausted from the start are tolerated. On error all sources are closed.
func NewMerging(iters []core.CellIterator) (*MergingIterator, error) {
	mi := &MergingIterator{
		iters: iters,
		heap:  make(mergingHeap, 0, len(iters)),
	}
	for _, iter := range iters {
		if iter.Next() {
			cell, err := iter.At()
			if err != nil {
				mi.Close()
				return nil, fmt.Errorf("merging iterator: failed to prime source: %w", err)
			}
			mi.heap = append(mi.heap, &mergingItem{iter: iter, cell: cell.Clone()})
		} else if err := iter.Error(); err != nil {
			mi.Close()
			return nil, fmt.Errorf("merging iterator: source failed during priming: %w", err)
		}
	}
	heap.Init(&mi.heap)
	return mi, nil
}

// Next advances to the next cell in global order.
func (mi *MergingIterator) Next() bool {
	if mi.err != nil {
		return false
	}
	if mi.heap.Len() == 0 {
		mi.current = nil
		return false
	}
	top := mi.heap[0]
	mi.current = top.cell
	if top.iter.Next() {
		cell, err := top.iter.At()
		if err != nil {
			mi.err = err
			return false
		}
		top.cell = cell.Clone()
		heap.Fix(&mi.heap, 0)
	} else {
		if err := top.iter.Error(); err != nil {
			mi.err = err
			return false
		}
		heap.Pop(&mi.heap)
	}
	return true
}

// At returns the current cell. The cell is owned by the iterator and only
// valid until the next call to Next().
func (mi *MergingIterator) At() (*core.Cell, error) {
	if mi.current == nil {
		return nil, fmt.Errorf("merging iterator: At called without a valid position")
	}
	return mi.current, nil
}

func (mi *MergingIterator) Error() error { return mi.err }

// Close closes every source iterator exactly once and reports the first
// failure.
func (mi *MergingIterator) Close() error {
	var firstErr error
	for _, iter := range mi.iters {
		if err := iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	mi.iters = nil
	mi.heap = nil
	return firstErr
}

// Empty is an iterator that is always exhausted.
type Empty struct{}

var _ core.CellIterator = (*Empty)(nil)

// NewEmpty creates an iterator with no cells.
func NewEmpty() *Empty { return &Empty{} }

func (*Empty) Next() bool { return false }
func (*Empty) At() (*core.Cell, error) {
	return nil, fmt.Errorf("empty iterator has no current cell")
}
func (*Empty) Error() error { return nil }
func (*Empty) Close() error { return nil }
