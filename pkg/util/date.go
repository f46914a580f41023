package util

import (
	"strconv"
	"time"
)

// DateLayout is the calendar-date layout used by the series files and the API.
const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseDate accepts YYYY-MM-DD (optionally with a clock part) first, then anything ParseTime accepts, and truncates to the UTC day.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range []string{DateLayout, "2006-01-02 15:04:05", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), true
		}
	}
	if t, ok := ParseTime(s); ok {
		return TruncateDay(t), true
	}
	return time.Time{}, false
}

// TruncateDay drops the clock part in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthsBefore returns t shifted back by n calendar months.
func MonthsBefore(t time.Time, n int) time.Time {
	return t.AddDate(0, -n, 0)
}

// WeeksAfter returns t shifted forward by n weeks.
func WeeksAfter(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// FormatDate renders a calendar date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
