package availability

import (
	"slices"
	"time"
)

// Interval is the half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether a and b share any instant. Intervals that only touch do not.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether b lies entirely inside a.
func (a Interval) Contains(b Interval) bool {
	return !b.Start.Before(a.Start) && !b.End.After(a.End)
}

// FreeStarts lays back-to-back slots of the given length over open, beginning at open.Start,
// and returns the starts of those that fit before open.End, begin strictly after notBefore
// and overlap none of busy.
func FreeStarts(open Interval, length time.Duration, busy []Interval, notBefore time.Time) []time.Time {
	if length <= 0 || !open.Start.Before(open.End) {
		return nil
	}
	sorted := slices.Clone(busy)
	slices.SortFunc(sorted, func(x, y Interval) int { return x.End.Compare(y.End) })

	var starts []time.Time
	next := 0
	for start := open.Start; !start.Add(length).After(open.End); start = start.Add(length) {
		slot := Interval{Start: start, End: start.Add(length)}
		// Busy spans ending at or before this slot cannot reach any later one.
		for next < len(sorted) && !sorted[next].End.After(slot.Start) {
			next++
		}
		if !slot.Start.After(notBefore) {
			continue
		}
		if !slices.ContainsFunc(sorted[next:], slot.Overlaps) {
			starts = append(starts, slot.Start)
		}
	}
	return starts
}
