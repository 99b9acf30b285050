package compaction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/INLOpen/nexustier/core"
)

// BoundaryMultiWriter fans merged cells out to one output writer per
// boundary-delimited window. Boundaries are ascending lower bounds; the first
// is always the open sentinel, so every timestamp lands in exactly one
// window. Child writers are created lazily on first use, so windows that
// receive no cells produce no output files.
type BoundaryMultiWriter struct {
	boundaries []int64
	factory    core.StoreFileWriterFactory
	estimated  uint64

	writers []core.StoreFileWriter
	bytes   []int64
}

// NewBoundaryMultiWriter validates that the boundary ladder starts at the
// sentinel and is strictly ascending.
func NewBoundaryMultiWriter(boundaries []int64, estimatedKeys uint64, factory core.StoreFileWriterFactory) (*BoundaryMultiWriter, error) {
	if len(boundaries) == 0 {
		return nil, errors.New("multiwriter: boundaries must not be empty")
	}
	if boundaries[0] != core.SentinelBoundary {
		return nil, fmt.Errorf("multiwriter: first boundary must be the open sentinel, got %d", boundaries[0])
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, fmt.Errorf("multiwriter: boundaries must be strictly ascending, got %d after %d", boundaries[i], boundaries[i-1])
		}
	}
	return &BoundaryMultiWriter{
		boundaries: boundaries,
		factory:    factory,
		estimated:  estimatedKeys,
		writers:    make([]core.StoreFileWriter, len(boundaries)),
		bytes:      make([]int64, len(boundaries)),
	}, nil
}

// Append routes the cell to the window owning its timestamp.
func (m *BoundaryMultiWriter) Append(c *core.Cell) error {
	// Index of the last boundary <= timestamp.
	idx := sort.Search(len(m.boundaries), func(i int) bool {
		return m.boundaries[i] > c.Timestamp
	}) - 1
	if m.writers[idx] == nil {
		w, err := m.factory(core.StoreFileWriterOptions{
			WindowStart:   m.boundaries[idx],
			EstimatedKeys: m.estimated,
		})
		if err != nil {
			return fmt.Errorf("multiwriter: creating writer for window start %d: %w", m.boundaries[idx], err)
		}
		m.writers[idx] = w
	}
	if err := m.writers[idx].Append(c); err != nil {
		return err
	}
	m.bytes[idx] = m.writers[idx].BytesWritten()
	return nil
}

// BytesWritten reports the total bytes appended across all children.
func (m *BoundaryMultiWriter) BytesWritten() int64 {
	var total int64
	for i, w := range m.writers {
		if w != nil {
			m.bytes[i] = w.BytesWritten()
			total += m.bytes[i]
		}
	}
	return total
}

// WriterCount reports how many child writers were actually opened.
func (m *BoundaryMultiWriter) WriterCount() int {
	n := 0
	for _, w := range m.writers {
		if w != nil {
			n++
		}
	}
	return n
}

// FinishWithMetadata finalizes every opened child with the same metadata. If
// any child fails, the remaining opened children are aborted so no partial
// output becomes visible.
func (m *BoundaryMultiWriter) FinishWithMetadata(meta core.OutputMetadata) error {
	for i, w := range m.writers {
		if w == nil {
			continue
		}
		if err := w.FinishWithMetadata(meta); err != nil {
			abortErr := m.abortFrom(i + 1)
			return errors.Join(fmt.Errorf("multiwriter: finishing window start %d: %w", m.boundaries[i], err), abortErr)
		}
	}
	return nil
}

// Abort discards every opened child.
func (m *BoundaryMultiWriter) Abort() error {
	return m.abortFrom(0)
}

func (m *BoundaryMultiWriter) abortFrom(start int) error {
	var errs []error
	for i := start; i < len(m.writers); i++ {
		if m.writers[i] == nil {
			continue
		}
		if err := m.writers[i].Abort(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ core.StoreFileWriter = (*BoundaryMultiWriter)(nil)
