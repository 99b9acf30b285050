package tiering

import (
	"fmt"
	"time"
)

// OffPeakHours is a daily hour range during which compactions may use the
// more aggressive off-peak ratio. The range may wrap past midnight; start and
// end equal means disabled.
type OffPeakHours struct {
	startHour int
	endHour   int
}

// NewOffPeakHours validates the [start, end) hour range. Both 0 disables
// off-peak entirely.
func NewOffPeakHours(startHour, endHour int) (OffPeakHours, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		return OffPeakHours{}, fmt.Errorf("tiering: off-peak hours must be within [0, 23], got start=%d end=%d", startHour, endHour)
	}
	return OffPeakHours{startHour: startHour, endHour: endHour}, nil
}

// Contains reports whether t falls inside the off-peak range.
func (o OffPeakHours) Contains(t time.Time) bool {
	if o.startHour == o.endHour {
		return false
	}
	h := t.Hour()
	if o.startHour < o.endHour {
		return h >= o.startHour && h < o.endHour
	}
	return h >= o.startHour || h < o.endHour
}
