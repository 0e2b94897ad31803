package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(ts.Unix(), 10))
	if !ok || !got.Equal(ts) {
		t.Fatalf("unexpected seconds parse %v", got)
	}
	got, ok = ParseTime(strconv.FormatInt(ts.UnixMilli()+250, 10))
	if !ok || !got.Equal(ts.Add(250*time.Millisecond)) {
		t.Fatalf("unexpected millis parse %v", got)
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	if _, ok := ParseTime("yesterday"); ok {
		t.Fatalf("expected failure")
	}
	if _, ok := ParseTime(""); ok {
		t.Fatalf("expected failure")
	}
}

func TestBackoffBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt < 40; attempt++ {
		d := Backoff(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := Backoff(min, max, 1); d < min/2 || d > min {
		t.Fatalf("first delay %v", d)
	}
}
