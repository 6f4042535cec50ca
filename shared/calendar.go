package shared

import (
	"time"
)

const (
	// Monthly futures settlement auto close moment (taipei time).
	autoCloseHour   = 13
	autoCloseMinute = 29
)

// AutoClosePredicate reports whether open positions must be force closed at
// the provided moment.
type AutoClosePredicate func(ts time.Time) bool

// thirdWednesday returns the day of month of the third wednesday of the
// provided month.
func thirdWednesday(year int, month time.Month) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Wednesday) - int(first.Weekday()) + 7) % 7
	return 1 + offset + 14
}

// IsAutoCloseMoment checks whether the provided timestamp is the monthly
// settlement auto close moment, 13:29 taipei time on the third wednesday.
func IsAutoCloseMoment(ts time.Time) bool {
	local := ts.In(TaipeiLocation())
	if local.Hour() != autoCloseHour || local.Minute() != autoCloseMinute {
		return false
	}

	return local.Day() == thirdWednesday(local.Year(), local.Month())
}
