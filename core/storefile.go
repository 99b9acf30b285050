package core

import (
	"math"
	"time"
)

// UnsetTimestamp marks a put-timestamp aggregate that no cell has
// contributed to yet.
const UnsetTimestamp = math.MaxInt64

// SentinelBoundary opens every output boundary ladder. It is below any real
// timestamp, so the oldest output window is unbounded on the left.
const SentinelBoundary = math.MinInt64

// CellIterator is a forward cursor over the cells of a single store file.
// The *Cell returned by At is only valid until the next call to Next().
type CellIterator interface {
	Next() bool
	At() (*Cell, error)
	Error() error
	Close() error
}

// StoreFile is an immutable sorted run produced by a flush or a prior
// compaction. The compaction engine only reads summary attributes and cell
// streams; creation and retirement belong to the file catalog.
type StoreFile interface {
	ID() uint64
	// Size is the file length in bytes.
	Size() int64
	// MinTimestamp and MaxTimestamp bound the cell timestamps the file contains.
	MinTimestamp() int64
	MaxTimestamp() int64
	// SeqID is the monotonically assigned sequence id of the file (write order).
	SeqID() uint64
	// KeyCount is the number of cells in the file.
	KeyCount() uint64
	// MaxMVCCReadpoint is the highest MVCC marker stored in the file.
	MaxMVCCReadpoint() uint64
	MaxTagsLength() int
	IsBulkLoaded() bool
	// IsMajorCompacted reports whether the file is the output of a major compaction.
	IsMajorCompacted() bool
	ModificationTime() time.Time
	NewIterator() (CellIterator, error)
}

// OutputMetadata is stamped onto compaction output when the writer is finalized.
type OutputMetadata struct {
	MaxSeqID        uint64
	MajorCompaction bool
	EarliestPutTs   int64
	LatestPutTs     int64
	MaxTagsLength   int
}

// StoreFileWriter is the sink a compaction streams merged cells into.
// Output must never become visible before FinishWithMetadata returns nil;
// Abort discards everything written so far.
type StoreFileWriter interface {
	Append(c *Cell) error
	// BytesWritten reports how many bytes have been appended so far.
	BytesWritten() int64
	FinishWithMetadata(meta OutputMetadata) error
	Abort() error
}

// StoreFileWriterOptions parameterizes writer creation. WindowStart is the
// lower boundary of the window the writer's output belongs to (MinInt64 for
// the unbounded oldest window), and EstimatedKeys sizes internal structures.
type StoreFileWriterOptions struct {
	WindowStart   int64
	EstimatedKeys uint64
}

// StoreFileWriterFactory creates writers for compaction output. It is
// injected so tests can substitute in-memory sinks.
type StoreFileWriterFactory func(opts StoreFileWriterOptions) (StoreFileWriter, error)

// DropPolicy is the read-path policy oracle consulted per cell during major
// compactions. It decides whether a cell is an obsolete version, expired, or
// covered by a delete that is eligible for removal. Minor compactions never
// consult it.
type DropPolicy interface {
	ShouldDrop(c *Cell) bool
}

// KeepAllPolicy retains every cell. It is the implicit policy of minor
// compactions and a safe default for majors.
type KeepAllPolicy struct{}

func (KeepAllPolicy) ShouldDrop(*Cell) bool { return false }
