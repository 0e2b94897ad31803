// Package features extracts aligned close series from bar histories.
package features

import (
	"time"

	"PairPulse/internal/domain/models"
)

// Closes splits bars into open times and closes.
func Closes(bars []models.Bar) ([]time.Time, []float64) {
	ts := make([]time.Time, len(bars))
	cs := make([]float64, len(bars))
	for i, b := range bars {
		ts[i] = b.OpenTime
		cs[i] = b.Close
	}
	return ts, cs
}

// AlignCloses joins two chronologically ordered bar slices on open time.
// Bars present on only one side are dropped; no values are interpolated.
func AlignCloses(barsA, barsB []models.Bar) (ts []time.Time, a, b []float64) {
	n := len(barsA)
	if len(barsB) < n {
		n = len(barsB)
	}
	ts = make([]time.Time, 0, n)
	a = make([]float64, 0, n)
	b = make([]float64, 0, n)

	i, j := 0, 0
	for i < len(barsA) && j < len(barsB) {
		ta, tb := barsA[i].OpenTime, barsB[j].OpenTime
		switch {
		case ta.Equal(tb):
			ts = append(ts, ta)
			a = append(a, barsA[i].Close)
			b = append(b, barsB[j].Close)
			i++
			j++
		case ta.Before(tb):
			i++
		default:
			j++
		}
	}
	return ts, a, b
}

// Tail keeps the last n elements of each aligned slice (all when n <= 0).
func Tail(ts []time.Time, a, b []float64, n int) ([]time.Time, []float64, []float64) {
	if n <= 0 || len(ts) <= n {
		return ts, a, b
	}
	k := len(ts) - n
	return ts[k:], a[k:], b[k:]
}
