package buddy

import (
	"time"
)

// DefaultCycleDays is the length of a buddy cycle.
const DefaultCycleDays = 14

// DefaultHistoryWeeks is how far back recent pairings count as repeats.
const DefaultHistoryWeeks = 8

// DefaultAnchor is the Monday all cycle boundaries are counted from.
var DefaultAnchor = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Schedule computes canonical cycle boundaries: consecutive periods of Days
// days starting at Anchor. All boundaries are UTC midnights.
type Schedule struct {
	Anchor time.Time
	Days   int
}

// DefaultSchedule returns the bi-weekly schedule anchored at DefaultAnchor.
func DefaultSchedule() Schedule {
	return Schedule{Anchor: DefaultAnchor, Days: DefaultCycleDays}
}

// Boundary returns the start and the inclusive last day of the cycle that
// contains now.
func (s Schedule) Boundary(now time.Time) (start, end time.Time) {
	days := s.Days
	if days <= 0 {
		days = DefaultCycleDays
	}
	anchor := dateOnly(s.Anchor)
	if s.Anchor.IsZero() {
		anchor = DefaultAnchor
	}
	elapsed := int(dateOnly(now).Sub(anchor).Hours() / 24)
	n := elapsed / days
	if elapsed < 0 && elapsed%days != 0 {
		n-- // floor for dates before the anchor
	}
	start = anchor.AddDate(0, 0, n*days)
	end = start.AddDate(0, 0, days-1)
	return start, end
}

// dateOnly truncates t to midnight UTC of its UTC calendar day.
func dateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
