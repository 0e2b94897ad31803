package util

import (
	"strconv"
	"time"
)

// unix timestamps above this are treated as milliseconds
const milliThreshold = 1e11

// ParseTime accepts RFC3339(Nano) and unix seconds or milliseconds.
// Returns (t, true) if any worked. Results are UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnix(ts), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// FromUnix converts an integer unix timestamp, guessing seconds vs milliseconds.
func FromUnix(ts int64) time.Time {
	if ts > milliThreshold {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
