package core

import "time"

// Period is the aggregation window for budget tracking: the calendar month
// containing a reference instant, from the first day of the month up to the
// instant itself. The reference time is always injected by the caller so
// period boundaries stay deterministic under test.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthOf returns the period for the calendar month containing ref.
func MonthOf(ref time.Time) Period {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return Period{Start: start, End: ref}
}

// Contains reports whether d falls inside the period. Comparison happens at
// calendar-date granularity and both boundary days are inclusive, so a
// transaction dated on the period's first day counts regardless of its
// recorded clock time.
func (p Period) Contains(d Date) bool {
	day := dateOnly(d.Time)
	return !day.Before(dateOnly(p.Start)) && !day.After(dateOnly(p.End))
}

// Key identifies the period for suppression watermarks, e.g. "2026-09".
func (p Period) Key() string {
	return p.Start.Format("2006-01")
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
