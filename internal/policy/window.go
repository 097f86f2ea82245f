package policy

import "time"

// Offset is the fixed posting-window timezone (IST, +05:30). It is applied as plain
// arithmetic; no zone database, no DST.
const Offset = 5*time.Hour + 30*time.Minute

const (
	windowHour       = 10
	windowLastMinute = 30
	dayLayout        = "2006-01-02"
)

// Local shifts now into the posting-window timezone. The result is expressed in UTC
// so that Hour, Minute and Date read the shifted wall clock.
func Local(now time.Time) time.Time {
	return now.UTC().Add(Offset)
}

// InWindow reports whether now falls in 10:00:00-10:30:59 local. The whole of minute
// 30 is inside the window.
func InWindow(now time.Time) bool {
	local := Local(now)
	return local.Hour() == windowHour && local.Minute() <= windowLastMinute
}

// Day is the calendar day of now in the posting-window timezone. The daily ledger is
// keyed by this value so "today" agrees with InWindow.
func Day(now time.Time) string {
	return Local(now).Format(dayLayout)
}

// Clock supplies the current instant. Production uses SystemClock; tests pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
