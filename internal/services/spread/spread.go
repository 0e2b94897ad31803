// Package spread derives the hedged spread of a pair and its rolling z-score.
package spread

import (
	"fmt"
	"math"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// ZeroStdPolicy decides what a window with zero standard deviation yields.
type ZeroStdPolicy string

const (
	ZeroStdZero ZeroStdPolicy = "zero"
	ZeroStdNull ZeroStdPolicy = "null"
)

type Config struct {
	Window           int
	ZeroStdPolicy    ZeroStdPolicy
	IncludeIntercept bool
}

type Tracker struct {
	cfg Config
}

func NewTracker(cfg Config) *Tracker {
	if cfg.Window < 2 {
		cfg.Window = 20
	}
	if cfg.ZeroStdPolicy != ZeroStdNull {
		cfg.ZeroStdPolicy = ZeroStdZero
	}
	return &Tracker{cfg: cfg}
}

// Window is the default rolling window.
func (t *Tracker) Window() int { return t.cfg.Window }

// Build computes the spread series and z-scores for aligned closes. window <= 0 uses the default.
func (t *Tracker) Build(ts []time.Time, a, b []float64, beta, alpha float64, window int) (models.SpreadSeries, models.ZScoreSeries, error) {
	if len(ts) != len(a) {
		return models.SpreadSeries{}, models.ZScoreSeries{}, errs.InvalidRequest("spread",
			fmt.Sprintf("timestamps (%d) and prices (%d) differ in length", len(ts), len(a)))
	}
	if !t.cfg.IncludeIntercept {
		alpha = 0
	}
	values, err := Compute(a, b, beta, alpha)
	if err != nil {
		return models.SpreadSeries{}, models.ZScoreSeries{}, err
	}
	if window <= 0 {
		window = t.cfg.Window
	}
	z, err := RollingZScore(values, window, t.cfg.ZeroStdPolicy)
	if err != nil {
		return models.SpreadSeries{}, models.ZScoreSeries{}, err
	}
	return models.SpreadSeries{
		Values:     values,
		Mean:       mathx.Mean(values),
		Std:        mathx.Std(values, 0),
		Timestamps: append([]time.Time(nil), ts...),
	}, z, nil
}

// Compute returns a[i] - beta*b[i] - alpha.
func Compute(a, b []float64, beta, alpha float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, errs.InvalidRequest("spread", fmt.Sprintf("series lengths differ: %d vs %d", len(a), len(b)))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - beta*b[i] - alpha
	}
	return out, nil
}

// RollingZScore standardizes each value against the trailing window ending at it,
// using the window mean and sample standard deviation. Indices before the first
// full window are null.
func RollingZScore(values []float64, window int, policy ZeroStdPolicy) (models.ZScoreSeries, error) {
	if window < 2 {
		return models.ZScoreSeries{}, errs.InvalidRequest("zscore", fmt.Sprintf("window %d must be at least 2", window))
	}
	out := models.ZScoreSeries{Values: make([]models.NullFloat, len(values)), Window: window}
	if len(values) < window {
		return out, nil
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	means := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	for i := window - 1; i < len(values); i++ {
		m := means[i-window+1]
		var ss float64
		for _, v := range values[i-window+1 : i+1] {
			d := v - m
			ss += d * d
		}
		std := math.Sqrt(ss / float64(window-1))
		if mathx.IsZeroStd(std, m) {
			if policy == ZeroStdZero {
				out.Values[i] = models.Some(0)
			}
			continue
		}
		out.Values[i] = models.Some((values[i] - m) / std)
	}

	for i := len(out.Values) - 1; i >= 0; i-- {
		if out.Values[i].Valid {
			out.Current = out.Values[i]
			break
		}
	}
	return out, nil
}
