// Package timeframe models the date ranges the dashboard aggregates over
// and the daily bucketing used by time-series queries.
package timeframe

import (
	"fmt"
	"time"
)

// DateStat is a single point in a daily time series.
type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TimeFrame represents a period between two points in time, bucketed by day.
type TimeFrame struct {
	From time.Time
	To   time.Time
}

// DefaultRangeDays is the dashboard's default lookback window.
const DefaultRangeDays = 30

func New(from, to time.Time) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from must not be after to")
	}
	return &TimeFrame{From: from.UTC(), To: to.UTC()}, nil
}

// LastNDays returns a frame covering the trailing n days ending at now.
func LastNDays(n int, now time.Time) *TimeFrame {
	now = now.UTC()
	return &TimeFrame{From: now.AddDate(0, 0, -n), To: now}
}

func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// GroupByDayExpression returns the SQLite expression that buckets the given
// timestamp column into YYYY-MM-DD day keys.
func (tf *TimeFrame) GroupByDayExpression(column string) string {
	return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
}

// DayKeys returns the YYYY-MM-DD key for every calendar day the frame
// touches, in order.
func (tf *TimeFrame) DayKeys() []string {
	var keys []string
	from := tf.From.UTC()
	current := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to := tf.To.UTC()
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	for !current.After(end) {
		keys = append(keys, current.Format("2006-01-02"))
		current = current.AddDate(0, 0, 1)
	}
	return keys
}

// BuildTimeSeriesPoints expands grouped per-day query results into a
// zero-filled series with one point per calendar day in the frame. Days
// absent from the input get a count of 0.
func (tf *TimeFrame) BuildTimeSeriesPoints(groupedResults []DateStat) []DateStat {
	resultsMap := make(map[string]int, len(groupedResults))
	for _, result := range groupedResults {
		resultsMap[normalizeDayKey(result.Date)] = result.Count
	}

	dayKeys := tf.DayKeys()
	series := make([]DateStat, len(dayKeys))
	for i, key := range dayKeys {
		series[i] = DateStat{Date: key, Count: resultsMap[key]}
	}
	return series
}

// normalizeDayKey trims datetime strings down to their YYYY-MM-DD prefix.
func normalizeDayKey(dateStr string) string {
	if len(dateStr) >= 10 {
		return dateStr[:10]
	}
	return dateStr
}
