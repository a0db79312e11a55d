package timeframe

import (
	"time"
)

// ParseRange builds a TimeFrame from raw from/to query values in
// YYYY-MM-DD form. Missing or unparsable values fall back to the default
// trailing window ending at now. Start dates snap to midnight UTC, end
// dates to the last instant of the day so single-day ranges still cover
// the whole day.
func ParseRange(fromDate, toDate string, now time.Time) *TimeFrame {
	now = now.UTC()
	from := now.AddDate(0, 0, -DefaultRangeDays)
	to := now

	if fromDate != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", fromDate, time.UTC); err == nil {
			from = parsed
		}
	}

	if toDate != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", toDate, time.UTC); err == nil {
			endOfDay := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 999999999, time.UTC)
			if endOfDay.After(now) {
				endOfDay = now
			}
			to = endOfDay
		}
	}

	if from.After(to) {
		from = to.AddDate(0, 0, -DefaultRangeDays)
	}

	return &TimeFrame{From: from, To: to}
}
