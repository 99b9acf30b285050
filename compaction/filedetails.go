package compaction

import (
	"log/slog"

	"github.com/INLOpen/nexustier/core"
)

// FileDetails summarizes the inputs of one compaction so the executor can
// size its output writer and decide which sequence ids may be zeroed.
type FileDetails struct {
	// MaxKeyCount is the sum of the input key counts, an upper bound on the
	// output key count.
	MaxKeyCount uint64
	// EarliestPutTs is the earliest put timestamp across all inputs. Only
	// populated when every file of the store participates.
	EarliestPutTs int64
	// LatestPutTs is the latest put timestamp across all inputs.
	LatestPutTs int64
	// MaxSeqID is the highest sequence id among the inputs; the output file
	// inherits it.
	MaxSeqID uint64
	// MaxMVCCReadpoint is the highest MVCC readpoint observed in the inputs.
	MaxMVCCReadpoint uint64
	// MaxTagsLength is the widest tag payload seen in any input.
	MaxTagsLength int
	// MinSeqIDToKeep is the smallest sequence id that must survive cleanup
	// because a newer file may still need it. Zero means no constraint.
	MinSeqIDToKeep uint64
}

// GatherFileDetails aggregates the metadata of the compaction inputs.
// allFiles reports whether the request covers every live file; only then may
// earliest put timestamps and the seq-id retention floor be computed, since a
// partial view could under-report them. keepSeqIDPeriodMillis keeps sequence
// ids of recently written files intact so replication and recovery can still
// resolve them; files older than the period raise the floor.
func GatherFileDetails(files []core.StoreFile, allFiles bool, keepSeqIDPeriodMillis int64, nowMillis int64, logger *slog.Logger) FileDetails {
	fd := FileDetails{EarliestPutTs: core.UnsetTimestamp}
	oldestToKeepSeqID := core.SaturatingSub(nowMillis, keepSeqIDPeriodMillis)
	for _, f := range files {
		fd.MaxKeyCount += f.KeyCount()

		seqID := f.SeqID()
		if allFiles && f.ModificationTime().UnixMilli() < oldestToKeepSeqID && seqID > fd.MinSeqIDToKeep {
			fd.MinSeqIDToKeep = seqID
		}
		if seqID > fd.MaxSeqID {
			fd.MaxSeqID = seqID
		}

		// Bulk loaded files carry no per-cell MVCC information; their
		// sequence id stands in for the readpoint.
		readpoint := f.MaxMVCCReadpoint()
		if f.IsBulkLoaded() && seqID > readpoint {
			readpoint = seqID
		}
		if readpoint > fd.MaxMVCCReadpoint {
			fd.MaxMVCCReadpoint = readpoint
		}

		if tl := f.MaxTagsLength(); tl > fd.MaxTagsLength {
			fd.MaxTagsLength = tl
		}

		if allFiles {
			if ts := f.MinTimestamp(); fd.EarliestPutTs == core.UnsetTimestamp || ts < fd.EarliestPutTs {
				fd.EarliestPutTs = ts
			}
		}
		if ts := f.MaxTimestamp(); ts > fd.LatestPutTs {
			fd.LatestPutTs = ts
		}

		if logger != nil {
			logger.Debug("compaction input file",
				"file_id", f.ID(),
				"size", f.Size(),
				"seq_id", seqID,
				"key_count", f.KeyCount(),
				"bulk_loaded", f.IsBulkLoaded())
		}
	}
	return fd
}
