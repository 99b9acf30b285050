package tiering

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/clock"
)

// PolicyOptions carries the full configuration surface of the selection
// policy. Values are validated by NewPolicy; an invalid configuration is
// fatal, never silently adjusted.
type PolicyOptions struct {
	MaxAgeMillis      int64
	BaseWindowMillis  int64
	WindowsPerTier    int
	IncomingWindowMin int
	MinFilesToCompact int
	MaxFilesToCompact int
	// CompactionRatio bounds how lopsided a minor selection may be; the
	// off-peak ratio applies when the caller signals off-peak hours.
	CompactionRatio        float64
	CompactionRatioOffPeak float64
	// BlockingFileCount is the per-window ceiling beyond which a selection is
	// forced even if no subsequence satisfies the ratio check.
	BlockingFileCount     int
	MajorCompactionPeriod time.Duration
	SingleOutputForMinor  bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Policy decides if and what to compact. Selection is a pure function over an
// immutable snapshot of candidate files plus the in-progress set; it performs
// no I/O and holds no locks.
type Policy struct {
	opts     PolicyOptions
	assigner *WindowAssigner
	explorer RatioExplorer
	clock    clock.Clock
	logger   *slog.Logger
}

// NewPolicy validates the options and builds a selection policy.
func NewPolicy(opts PolicyOptions) (*Policy, error) {
	if opts.CompactionRatio <= 0 {
		return nil, fmt.Errorf("tiering: compaction ratio must be positive, got %g", opts.CompactionRatio)
	}
	if opts.MinFilesToCompact < 2 {
		return nil, fmt.Errorf("tiering: min files to compact must be at least 2, got %d", opts.MinFilesToCompact)
	}
	if opts.MinFilesToCompact > opts.MaxFilesToCompact {
		return nil, fmt.Errorf("tiering: min files to compact (%d) exceeds max files to compact (%d)",
			opts.MinFilesToCompact, opts.MaxFilesToCompact)
	}
	if opts.IncomingWindowMin < opts.MinFilesToCompact {
		return nil, fmt.Errorf("tiering: incoming window min (%d) must not be below min files to compact (%d)",
			opts.IncomingWindowMin, opts.MinFilesToCompact)
	}
	if opts.CompactionRatioOffPeak <= 0 {
		opts.CompactionRatioOffPeak = opts.CompactionRatio
	}
	assigner, err := NewWindowAssigner(opts.BaseWindowMillis, opts.MaxAgeMillis, opts.WindowsPerTier)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.SystemClockDefault
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Policy{
		opts:     opts,
		assigner: assigner,
		explorer: NewRatioExplorer(opts.MinFilesToCompact, opts.MaxFilesToCompact),
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "SelectionPolicy"),
	}, nil
}

// Assigner exposes the window assigner so collaborators can compute the
// window of an output cell.
func (p *Policy) Assigner() *WindowAssigner { return p.assigner }

// NeedsCompaction reports whether any window, excluding files already being
// compacted, holds enough files to make a selection, or the blocking file
// count is exceeded, or a major compaction is due.
func (p *Policy) NeedsCompaction(candidates, inProgress []core.StoreFile) bool {
	eligible := excludeInProgress(candidates, inProgress)
	if req := p.selectMinor(eligible, false, true); !req.Empty() {
		return true
	}
	if p.opts.BlockingFileCount > 0 && len(eligible) > p.opts.BlockingFileCount {
		return true
	}
	return p.ShouldPerformMajorCompaction(eligible)
}

// ShouldPerformMajorCompaction reports whether the candidate set has gone
// unmerged for longer than the major compaction period. A set that is already
// a single major-compacted file never needs another pass.
func (p *Policy) ShouldPerformMajorCompaction(candidates []core.StoreFile) bool {
	if len(candidates) == 0 || p.opts.MajorCompactionPeriod <= 0 {
		return false
	}
	if len(candidates) == 1 && candidates[0].IsMajorCompacted() {
		return false
	}
	oldest := candidates[0].ModificationTime()
	for _, f := range candidates[1:] {
		if f.ModificationTime().Before(oldest) {
			oldest = f.ModificationTime()
		}
	}
	return p.clock.Now().Sub(oldest) > p.opts.MajorCompactionPeriod
}

// SelectMajorCompaction selects every candidate file. Boundaries are the full
// window ladder from the oldest populated window through now.
func (p *Policy) SelectMajorCompaction(candidates []core.StoreFile) *Request {
	if len(candidates) == 0 {
		return &Request{Major: true, Boundaries: []int64{SentinelBoundary}}
	}
	files := sortBySeqID(candidates)
	now := p.clock.Now().UnixMilli()

	minTimestamp := int64(math.MaxInt64)
	for _, f := range files {
		if f.MinTimestamp() < minTimestamp {
			minTimestamp = f.MinTimestamp()
		}
	}

	// Collect the start of every window between now and the oldest timestamp,
	// newest first, then flip into the ascending sentinel-prefixed ladder.
	var starts []int64
	for w := p.assigner.IncomingWindow(now); w.CompareToTimestamp(minTimestamp) > 0; w = w.NextEarlier() {
		starts = append(starts, w.Start())
	}
	boundaries := make([]int64, 0, len(starts)+1)
	boundaries = append(boundaries, SentinelBoundary)
	for i := len(starts) - 1; i >= 0; i-- {
		boundaries = append(boundaries, starts[i])
	}

	p.logger.Debug("Selected major compaction.",
		"file_count", len(files), "boundary_count", len(boundaries))
	return &Request{Files: files, Boundaries: boundaries, Major: true}
}

// SelectMinorCompaction walks the windows from most recent to oldest and
// returns a request for the first window that yields a valid selection. Only
// one window is compacted per request, bounding I/O and keeping windows
// independent. An empty request means no window qualifies.
func (p *Policy) SelectMinorCompaction(candidates []core.StoreFile, mayUseOffPeak bool) *Request {
	return p.selectMinor(candidates, mayUseOffPeak, false)
}

// selectMinor implements the window walk. When forceAny is set (the stuck
// path used by NeedsCompaction), any window with enough files produces a
// selection regardless of the ratio check.
func (p *Policy) selectMinor(candidates []core.StoreFile, mayUseOffPeak, forceAny bool) *Request {
	if len(candidates) == 0 {
		return &Request{}
	}
	now := p.clock.Now().UnixMilli()
	files := sortBySeqID(candidates)

	// Out-of-order data is expected: a file whose max timestamp precedes an
	// older file's goes into the same window as that older file, so windows
	// follow the prefix maximum of timestamps in write order.
	type filePair struct {
		file  core.StoreFile
		maxTs int64
	}
	pairs := make([]filePair, len(files))
	maxSeen := int64(math.MinInt64)
	for i, f := range files {
		if f.MaxTimestamp() > maxSeen {
			maxSeen = f.MaxTimestamp()
		}
		pairs[i] = filePair{file: f, maxTs: maxSeen}
	}
	// Newest first for the window walk.
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}

	window := p.assigner.IncomingWindow(now)
	minThreshold := p.opts.IncomingWindowMin
	incoming := true

	i := 0
	for i < len(pairs) {
		if window.CompareToTimestamp(pairs[i].maxTs) > 0 {
			// The file is too old for this window; move to the next earlier
			// one and drop back to the regular file threshold.
			window = window.NextEarlier()
			minThreshold = p.opts.MinFilesToCompact
			incoming = false
			continue
		}
		// Gather every file in this window. For the incoming window this also
		// tolerates files carrying future data.
		var bucket []core.StoreFile
		for i < len(pairs) && window.CompareToTimestamp(pairs[i].maxTs) <= 0 {
			bucket = append(bucket, pairs[i].file)
			i++
		}
		if len(bucket) >= minThreshold {
			if req := p.buildMinorRequest(bucket, window, incoming, mayUseOffPeak, forceAny); !req.Empty() {
				return req
			}
		}
	}
	return &Request{}
}

// buildMinorRequest turns one window's files into a request, or an empty
// request when the window has no valid selection. bucket arrives newest first
// and is flipped to write order for the ratio search.
func (p *Policy) buildMinorRequest(bucket []core.StoreFile, window Window, incoming, mayUseOffPeak, forceAny bool) *Request {
	ordered := make([]core.StoreFile, len(bucket))
	for i, f := range bucket {
		ordered[len(bucket)-1-i] = f
	}

	forced := forceAny || (p.opts.BlockingFileCount > 0 && len(ordered) > p.opts.BlockingFileCount)

	var selection []core.StoreFile
	switch {
	case forced:
		// Past the blocking ceiling the store is at risk of stalling writers;
		// merge the window whether or not the ratio check likes it.
		selection = trimToMaxFiles(ordered, p.opts.MaxFilesToCompact)
	case incoming:
		// A full incoming window is taken outright: merging very fresh files
		// amortizes well without ratio analysis.
		selection = trimToMaxFiles(ordered, p.opts.MaxFilesToCompact)
	default:
		ratio := p.opts.CompactionRatio
		if mayUseOffPeak {
			ratio = p.opts.CompactionRatioOffPeak
		}
		selection = p.explorer.Apply(ordered, ratio)
	}
	if len(selection) == 0 {
		return &Request{}
	}

	// A partial window merges into a single output file; splitting a partial
	// selection across boundaries would strand sibling files.
	singleOutput := len(selection) != len(ordered) || p.opts.SingleOutputForMinor
	boundaries := []int64{SentinelBoundary}
	if !singleOutput && window.Start() != SentinelBoundary {
		boundaries = append(boundaries, window.Start())
	}

	p.logger.Debug("Selected minor compaction.",
		"window", window.String(), "window_files", len(ordered),
		"selected_files", len(selection), "forced", forced, "incoming", incoming)
	return &Request{Files: selection, Boundaries: boundaries}
}

func sortBySeqID(files []core.StoreFile) []core.StoreFile {
	sorted := append([]core.StoreFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SeqID() < sorted[j].SeqID()
	})
	return sorted
}

func excludeInProgress(candidates, inProgress []core.StoreFile) []core.StoreFile {
	if len(inProgress) == 0 {
		return candidates
	}
	busy := make(map[uint64]struct{}, len(inProgress))
	for _, f := range inProgress {
		busy[f.ID()] = struct{}{}
	}
	eligible := make([]core.StoreFile, 0, len(candidates))
	for _, f := range candidates {
		if _, ok := busy[f.ID()]; !ok {
			eligible = append(eligible, f)
		}
	}
	return eligible
}
