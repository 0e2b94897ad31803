// Package mathx holds the small descriptive statistics shared by the analytics services.
package mathx

import (
	"math"
	"sort"

	"PairPulse/internal/domain/errs"
)

// ZeroTol is the relative tolerance under which a standard deviation counts as zero.
const ZeroTol = 1e-12

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Variance returns the variance of xs with ddof degrees of freedom removed (0 = population, 1 = sample).
func Variance(xs []float64, ddof int) float64 {
	n := len(xs)
	if n-ddof <= 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(n-ddof)
}

func Std(xs []float64, ddof int) float64 {
	return math.Sqrt(Variance(xs, ddof))
}

// IsZeroStd reports whether std is indistinguishable from zero relative to the level mean.
func IsZeroStd(std, mean float64) bool {
	return std <= ZeroTol*math.Max(1, math.Abs(mean))
}

// Median returns the median of xs without modifying it.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	c := append([]float64(nil), xs...)
	sort.Float64s(c)
	if n%2 == 1 {
		return c[n/2]
	}
	return (c[n/2-1] + c[n/2]) / 2
}

// Pearson returns the correlation of x and y and false when either side has zero variance.
func Pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0, false
	}
	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if IsZeroStd(math.Sqrt(sxx/float64(n)), mx) || IsZeroStd(math.Sqrt(syy/float64(n)), my) {
		return 0, false
	}
	r := sxy / math.Sqrt(sxx*syy)
	// clamp rounding drift
	return math.Max(-1, math.Min(1, r)), true
}

// Describe summarizes xs for error payloads.
func Describe(xs []float64) *errs.Stats {
	s := &errs.Stats{N: len(xs)}
	if len(xs) == 0 {
		return s
	}
	s.Mean = Mean(xs)
	s.Std = Std(xs, 0)
	s.Min, s.Max = xs[0], xs[0]
	for _, x := range xs[1:] {
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	return s
}

// AllFinite reports whether xs contains no NaN or Inf.
func AllFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
