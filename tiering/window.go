package tiering

import (
	"fmt"

	"github.com/INLOpen/nexustier/core"
)

// WindowAssigner computes the tiered time windows files are grouped into.
// Tier 0 windows are baseWindowMillis wide; every earlier tier multiplies the
// width by windowsPerTier until a window's start falls behind now-maxAgeMillis,
// after which the width stays fixed. A file belongs to exactly one window,
// determined solely by its maximum timestamp.
type WindowAssigner struct {
	baseWindowMillis int64
	windowsPerTier   int64
	maxAgeMillis     int64
}

// NewWindowAssigner validates the windowing configuration. Invalid values are
// rejected here rather than silently adjusted.
func NewWindowAssigner(baseWindowMillis, maxAgeMillis int64, windowsPerTier int) (*WindowAssigner, error) {
	if baseWindowMillis <= 0 {
		return nil, fmt.Errorf("tiering: base window width must be positive, got %d", baseWindowMillis)
	}
	if windowsPerTier < 2 {
		return nil, fmt.Errorf("tiering: windows per tier must be at least 2, got %d", windowsPerTier)
	}
	if maxAgeMillis < 0 {
		return nil, fmt.Errorf("tiering: max age must not be negative, got %d", maxAgeMillis)
	}
	return &WindowAssigner{
		baseWindowMillis: baseWindowMillis,
		windowsPerTier:   int64(windowsPerTier),
		maxAgeMillis:     maxAgeMillis,
	}, nil
}

// Window is a half-open time interval [Start(), End()). A timestamp t lies in
// the window iff the adjusted floor division of t by the window width equals
// divPosition, so a timestamp exactly on a boundary belongs to the window
// whose start equals that boundary.
type Window struct {
	// widthMillis is how big a range of timestamps fits inside the window.
	widthMillis int64
	// divPosition is the window's index on the timeline: Start = width*divPosition.
	divPosition int64
	// tierAgeCutoff caps tier promotion: windows entirely before it never widen.
	tierAgeCutoff  int64
	windowsPerTier int64
}

// IncomingWindow returns the most recent window, the one containing now.
func (a *WindowAssigner) IncomingWindow(now int64) Window {
	return Window{
		widthMillis:    a.baseWindowMillis,
		divPosition:    now / a.baseWindowMillis,
		tierAgeCutoff:  core.SaturatingSub(now, a.maxAgeMillis),
		windowsPerTier: a.windowsPerTier,
	}
}

// AssignWindow locates the unique window containing ts, walking earlier from
// the incoming window.
func (a *WindowAssigner) AssignWindow(now, ts int64) Window {
	w := a.IncomingWindow(now)
	for w.CompareToTimestamp(ts) > 0 {
		w = w.NextEarlier()
	}
	return w
}

// Start returns the inclusive lower boundary, saturating at the extremes.
func (w Window) Start() int64 {
	return core.SaturatingMul(w.widthMillis, w.divPosition)
}

// End returns the exclusive upper boundary, saturating at the extremes.
func (w Window) End() int64 {
	return core.SaturatingMul(w.widthMillis, w.divPosition+1)
}

// CompareToTimestamp reports -1, 0 or +1 as the window lies before, covers,
// or lies after the timestamp. Negative timestamps are shifted by width-1
// (saturating) before the truncated division so boundary membership stays
// inclusive on the lower edge.
func (w Window) CompareToTimestamp(ts int64) int {
	if ts < 0 {
		ts = core.SaturatingSub(ts, w.widthMillis-1)
	}
	pos := ts / w.widthMillis
	switch {
	case w.divPosition == pos:
		return 0
	case w.divPosition < pos:
		return -1
	default:
		return 1
	}
}

// NextEarlier returns the window immediately preceding this one. The width is
// promoted to the next tier only when the current tier is exhausted and the
// promoted window would still start at or after the tier age cutoff.
func (w Window) NextEarlier() Window {
	tierSpan := core.SaturatingMul(w.widthMillis, w.windowsPerTier)
	if w.divPosition%w.windowsPerTier > 0 ||
		core.SaturatingSub(w.Start(), tierSpan) < w.tierAgeCutoff {
		return Window{
			widthMillis:    w.widthMillis,
			divPosition:    w.divPosition - 1,
			tierAgeCutoff:  w.tierAgeCutoff,
			windowsPerTier: w.windowsPerTier,
		}
	}
	return Window{
		widthMillis:    core.SaturatingMul(w.widthMillis, w.windowsPerTier),
		divPosition:    w.divPosition/w.windowsPerTier - 1,
		tierAgeCutoff:  w.tierAgeCutoff,
		windowsPerTier: w.windowsPerTier,
	}
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d)", w.Start(), w.End())
}

// SentinelBoundary is the first element of every boundary ladder; it stands
// for negative infinity, the open lower edge of the oldest window.
const SentinelBoundary = core.SentinelBoundary
