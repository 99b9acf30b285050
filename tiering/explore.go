package tiering

import (
	"github.com/INLOpen/nexustier/core"
)

// RatioExplorer searches one window's files, ordered oldest to newest, for the
// cheapest valid contiguous subsequence to merge. A subsequence is valid when
// its length lies in [minFiles, maxFiles] and no member's size exceeds
// ratio times the combined size of the others; the ratio check keeps the
// engine from repeatedly rewriting one huge file against a handful of tiny
// ones.
type RatioExplorer struct {
	minFiles int
	maxFiles int
}

// NewRatioExplorer builds an explorer with the given length bounds.
func NewRatioExplorer(minFiles, maxFiles int) RatioExplorer {
	return RatioExplorer{minFiles: minFiles, maxFiles: maxFiles}
}

// Apply enumerates every contiguous subsequence of valid length and returns
// the best valid one, or nil when none qualifies. Among valid candidates the
// one merging more files wins; at equal file count the smaller total size
// wins (more files reclaimed per unit of merge I/O). The search is quadratic
// but the window size is capped by the blocking file count configuration.
func (e RatioExplorer) Apply(files []core.StoreFile, ratio float64) []core.StoreFile {
	var best []core.StoreFile
	var bestSize int64

	for start := 0; start < len(files); start++ {
		for end := start + e.minFiles - 1; end < len(files); end++ {
			candidate := files[start : end+1]
			if len(candidate) > e.maxFiles {
				break
			}
			size := totalFileSize(candidate)
			if !filesInRatio(candidate, ratio) {
				continue
			}
			if len(candidate) > len(best) || (len(candidate) == len(best) && size < bestSize) {
				best = candidate
				bestSize = size
			}
		}
	}
	if best == nil {
		return nil
	}
	return append([]core.StoreFile(nil), best...)
}

// filesInRatio reports whether every file's size stays within ratio times the
// sum of the sizes of the other files in the candidate set.
func filesInRatio(files []core.StoreFile, ratio float64) bool {
	if len(files) < 2 {
		return true
	}
	total := totalFileSize(files)
	for _, f := range files {
		others := total - f.Size()
		if float64(f.Size()) > float64(others)*ratio {
			return false
		}
	}
	return true
}

func totalFileSize(files []core.StoreFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size()
	}
	return total
}

// trimToMaxFiles drops the largest files from a forced selection until it fits
// the global file-count ceiling, preserving the order of the survivors.
func trimToMaxFiles(files []core.StoreFile, maxFiles int) []core.StoreFile {
	trimmed := append([]core.StoreFile(nil), files...)
	for len(trimmed) > maxFiles {
		largest := 0
		for i, f := range trimmed {
			if f.Size() > trimmed[largest].Size() {
				largest = i
			}
		}
		trimmed = append(trimmed[:largest], trimmed[largest+1:]...)
	}
	return trimmed
}
