package tiering

import "github.com/INLOpen/nexustier/core"

// Request describes one compaction to execute: the files to merge and retire,
// and the boundary ladder the output is split across. Boundaries are ascending
// window start timestamps and always begin with SentinelBoundary.
type Request struct {
	Files      []core.StoreFile
	Boundaries []int64
	Major      bool
}

// Empty reports whether the request selects nothing; an empty request is the
// normal "no window qualifies" result, not an error.
func (r *Request) Empty() bool {
	return r == nil || len(r.Files) == 0
}

// TotalSize sums the sizes of the selected files.
func (r *Request) TotalSize() int64 {
	if r == nil {
		return 0
	}
	return totalFileSize(r.Files)
}
