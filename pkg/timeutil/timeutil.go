// Package timeutil holds the process clock and the date format used in
// planner replies. Planner dates are naive; the clock only decides "today".
package timeutil

import (
	"sync"
	"time"
)

// LongDateLayout renders dates in replies, e.g. "Wednesday, February 18, 2026".
const LongDateLayout = "Monday, January 02, 2006"

var (
	clockMu sync.RWMutex
	nowFunc = time.Now
)

// Now returns the current time from the active clock.
func Now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return nowFunc()
}

// SetClock replaces the clock used by Now and returns a restore function.
// Tests use it to pin "today".
func SetClock(fn func() time.Time) (restore func()) {
	clockMu.Lock()
	prev := nowFunc
	nowFunc = fn
	clockMu.Unlock()

	return func() {
		clockMu.Lock()
		nowFunc = prev
		clockMu.Unlock()
	}
}

// FormatLongDate renders a date for human-facing replies.
func FormatLongDate(t time.Time) string {
	return t.Format(LongDateLayout)
}
