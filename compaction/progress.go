package compaction

import "sync/atomic"

// Status is the terminal outcome of a compaction execution.
type Status int

const (
	// StatusCompleted means every input cell was processed and the output
	// was finalized.
	StatusCompleted Status = iota
	// StatusCancelled means the operation stopped cooperatively before
	// finishing; partial output was discarded and inputs remain untouched.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result summarizes a finished execution. A non-nil error from Execute means
// the operation failed; Result is only meaningful when the error is nil.
type Result struct {
	Status       Status
	CellsWritten uint64
	BytesWritten int64
}

// Progress exposes live counters of a running compaction. All methods are
// safe for concurrent use.
type Progress struct {
	cellsRead    atomic.Uint64
	cellsWritten atomic.Uint64
	bytesWritten atomic.Int64
}

func (p *Progress) CellsRead() uint64    { return p.cellsRead.Load() }
func (p *Progress) CellsWritten() uint64 { return p.cellsWritten.Load() }
func (p *Progress) BytesWritten() int64  { return p.bytesWritten.Load() }
