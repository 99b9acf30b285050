// Package testutil holds in-memory store file doubles shared by the
// compaction and tiering tests.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/INLOpen/nexustier/core"
)

// MemFile is an in-memory core.StoreFile. Metadata fields are set explicitly
// by tests; Cells must be pre-sorted in core.CompareCells order.
type MemFile struct {
	FileID         uint64
	FileSize       int64
	MinTs          int64
	MaxTs          int64
	Seq            uint64
	Keys           uint64
	MVCCReadpoint  uint64
	TagsLength     int
	BulkLoaded     bool
	MajorCompacted bool
	ModTime        time.Time
	Cells          []core.Cell

	// IteratorErr, when set, is returned by NewIterator.
	IteratorErr error
}

var _ core.StoreFile = (*MemFile)(nil)

// NewMemFile builds a file whose metadata is the common shape the selection
// tests need: minTs..maxTs timestamp range, a given size and sequence id.
func NewMemFile(id uint64, size, minTs, maxTs int64, seq uint64) *MemFile {
	return &MemFile{
		FileID:   id,
		FileSize: size,
		MinTs:    minTs,
		MaxTs:    maxTs,
		Seq:      seq,
	}
}

func (f *MemFile) ID() uint64                  { return f.FileID }
func (f *MemFile) Size() int64                 { return f.FileSize }
func (f *MemFile) MinTimestamp() int64         { return f.MinTs }
func (f *MemFile) MaxTimestamp() int64         { return f.MaxTs }
func (f *MemFile) SeqID() uint64               { return f.Seq }
func (f *MemFile) MaxMVCCReadpoint() uint64    { return f.MVCCReadpoint }
func (f *MemFile) MaxTagsLength() int          { return f.TagsLength }
func (f *MemFile) IsBulkLoaded() bool          { return f.BulkLoaded }
func (f *MemFile) IsMajorCompacted() bool      { return f.MajorCompacted }
func (f *MemFile) ModificationTime() time.Time { return f.ModTime }

func (f *MemFile) KeyCount() uint64 {
	if f.Keys != 0 {
		return f.Keys
	}
	return uint64(len(f.Cells))
}

func (f *MemFile) NewIterator() (core.CellIterator, error) {
	if f.IteratorErr != nil {
		return nil, f.IteratorErr
	}
	return &memIterator{cells: f.Cells, pos: -1}, nil
}

type memIterator struct {
	cells []core.Cell
	pos   int
}

func (it *memIterator) Next() bool {
	if it.pos+1 >= len(it.cells) {
		return false
	}
	it.pos++
	return true
}

func (it *memIterator) At() (*core.Cell, error) {
	if it.pos < 0 || it.pos >= len(it.cells) {
		return nil, fmt.Errorf("memIterator: At out of range at %d", it.pos)
	}
	return &it.cells[it.pos], nil
}

func (it *memIterator) Error() error { return nil }
func (it *memIterator) Close() error { return nil }

// MemWriter is an in-memory core.StoreFileWriter with error injection, used
// to observe compaction output and simulate sink failures.
type MemWriter struct {
	mu sync.Mutex

	Opts     core.StoreFileWriterOptions
	Cells    []core.Cell
	Meta     core.OutputMetadata
	Finished bool
	Aborted  bool

	AppendErr error
	FinishErr error
	AbortErr  error
}

var _ core.StoreFileWriter = (*MemWriter)(nil)

func (w *MemWriter) Append(c *core.Cell) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.AppendErr != nil {
		return w.AppendErr
	}
	w.Cells = append(w.Cells, *c.Clone())
	return nil
}

func (w *MemWriter) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var n int64
	for i := range w.Cells {
		n += int64(w.Cells[i].EncodedSize())
	}
	return n
}

func (w *MemWriter) FinishWithMetadata(meta core.OutputMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FinishErr != nil {
		return w.FinishErr
	}
	w.Meta = meta
	w.Finished = true
	return nil
}

func (w *MemWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Aborted = true
	return w.AbortErr
}

// WriterRecorder hands out MemWriters and remembers them so tests can inspect
// every output window a compaction opened.
type WriterRecorder struct {
	mu      sync.Mutex
	Writers []*MemWriter

	// NextErr, when set, fails the next factory call.
	NextErr error
}

// Factory returns a core.StoreFileWriterFactory backed by the recorder.
func (r *WriterRecorder) Factory() core.StoreFileWriterFactory {
	return func(opts core.StoreFileWriterOptions) (core.StoreFileWriter, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.NextErr != nil {
			err := r.NextErr
			r.NextErr = nil
			return nil, err
		}
		w := &MemWriter{Opts: opts}
		r.Writers = append(r.Writers, w)
		return w, nil
	}
}

// WriterForStart returns the recorded writer created for the given window
// start, or nil.
func (r *WriterRecorder) WriterForStart(start int64) *MemWriter {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.Writers {
		if w.Opts.WindowStart == start {
			return w
		}
	}
	return nil
}
