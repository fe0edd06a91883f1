// Package cycle implements anniversary-anchored billing windows.
//
// A subscriber's quota period is anchored to the subscription start date,
// not the calendar month: cycle k runs from start+k months to the day before
// start+(k+1) months.
package cycle

import "time"

// Window is one billing period of a subscription.
type Window struct {
	Index int
	Start time.Time
	// End is clamped to "now" while the cycle is still in progress.
	End  time.Time
	Name string
}

// Current returns the window containing now for a subscription anchored at
// start. A now before start is treated as the first instant of cycle 0.
func Current(start, now time.Time) Window {
	if now.Before(start) {
		now = start
	}
	k := 0
	for !start.AddDate(0, k+1, 0).After(now) {
		k++
	}
	ws := start.AddDate(0, k, 0)
	end := NaturalEnd(start, k)
	if end.After(now) {
		end = now
	}
	return Window{Index: k, Start: ws, End: end, Name: Name(ws)}
}

// NaturalEnd returns the unclamped end of cycle k: the day before the next
// anniversary. AddDate normalizes month-end overflow (e.g. Jan 31 + 1 month).
func NaturalEnd(start time.Time, k int) time.Time {
	return start.AddDate(0, k+1, 0).AddDate(0, 0, -1)
}

// Name derives the stable, zero-padded cycle identifier from the cycle start
// date. Repeated calls within one cycle collide into the same name.
func Name(cycleStart time.Time) string {
	return cycleStart.UTC().Format("2006-01-02")
}
