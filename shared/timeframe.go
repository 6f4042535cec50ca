package shared

import (
	"time"
)

const (
	// SessionTimeLayout is the format layout for parsing session times in a day.
	SessionTimeLayout = "15:04"
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
	// taipeiZone is the IANA name of the exchange timezone.
	taipeiZone = "Asia/Taipei"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	OneHour
)

// String stringifies the provided timeframe.
func (t *Timeframe) String() string {
	switch *t {
	case OneMinute:
		return "1m"
	case OneHour:
		return "1H"
	default:
		return "unknown"
	}
}

// Duration returns the bucket span of the provided timeframe.
func (t *Timeframe) Duration() time.Duration {
	switch *t {
	case OneHour:
		return time.Hour
	default:
		return time.Minute
	}
}

// BucketKey truncates the provided timestamp to the start of its bucket for
// the provided timeframe.
func BucketKey(ts time.Time, timeframe Timeframe) time.Time {
	switch timeframe {
	case OneHour:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, ts.Location())
	default:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, ts.Location())
	}
}

// TaipeiLocation returns the exchange timezone.
func TaipeiLocation() *time.Location {
	loc, err := time.LoadLocation(taipeiZone)
	if err != nil {
		// Taipei observes no DST, the fixed offset is equivalent.
		return time.FixedZone("CST", 8*60*60)
	}

	return loc
}

// TaipeiTime returns the current time in taipei.
func TaipeiTime() (time.Time, *time.Location, error) {
	loc := TaipeiLocation()
	now := time.Now().In(loc)
	return now, loc, nil
}
