// Package stationarity implements the augmented Dickey-Fuller unit root test.
package stationarity

import (
	"fmt"
	"math"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"
)

type Autolag string

const (
	AutolagNone Autolag = "none"
	AutolagAIC  Autolag = "aic"
)

type Config struct {
	Lags       int
	Autolag    Autolag
	Confidence string // "1%", "5%" or "10%"
}

type Tester struct {
	cfg Config
}

func NewTester(cfg Config) *Tester {
	if cfg.Lags < 0 {
		cfg.Lags = 0
	}
	if cfg.Autolag != AutolagAIC {
		cfg.Autolag = AutolagNone
	}
	if _, ok := critCoef[cfg.Confidence]; !ok {
		cfg.Confidence = "5%"
	}
	return &Tester{cfg: cfg}
}

// Test runs Δy_t = c + γ·y_{t-1} + Σ δ_i·Δy_{t-i} + ε and reports γ̂/se(γ̂).
func (t *Tester) Test(series []float64) (models.ADFResult, error) {
	if !mathx.AllFinite(series) {
		return models.ADFResult{}, errs.InvalidRequest("adf", "series contains NaN or Inf")
	}
	lags := t.cfg.Lags
	if t.cfg.Autolag == AutolagAIC {
		best, err := selectLagAIC(series)
		if err != nil {
			return models.ADFResult{}, err
		}
		lags = best
	}
	return runADF(series, lags, t.cfg.Confidence)
}

func runADF(series []float64, lags int, confidence string) (models.ADFResult, error) {
	n := len(series)
	if n < lags+3 {
		return models.ADFResult{}, errs.InsufficientData("adf", fmt.Sprintf("lags=%d", lags), n, lags+3)
	}
	x, y := design(series, lags, lags)
	if len(y) <= len(x[0]) {
		return models.ADFResult{}, insufficientDOF(n, lags)
	}
	fit, ok := fitOLS(x, y)
	if !ok {
		return models.ADFResult{}, singular(series, lags)
	}
	if fit.se[1] == 0 || math.IsNaN(fit.se[1]) {
		return models.ADFResult{}, singular(series, lags)
	}
	stat := fit.coef[1] / fit.se[1]
	crit := CriticalValues(fit.nobs)
	return models.ADFResult{
		Statistic:      stat,
		PValue:         PValue(stat),
		IsStationary:   stat < crit[confidence],
		Lags:           lags,
		NObs:           fit.nobs,
		CriticalValues: crit,
	}, nil
}

// design builds the regression for the given lag order, dropping the first `skip` differences
// so that models with different lag orders can share one sample.
// Columns: constant, y_{t-1}, Δy_{t-1} .. Δy_{t-lags}.
func design(series []float64, lags, skip int) ([][]float64, []float64) {
	dy := make([]float64, len(series)-1)
	for i := range dy {
		dy[i] = series[i+1] - series[i]
	}
	rows := len(dy) - skip
	if rows < 0 {
		rows = 0
	}
	x := make([][]float64, 0, rows)
	y := make([]float64, 0, rows)
	for j := skip; j < len(dy); j++ {
		row := make([]float64, 2+lags)
		row[0] = 1
		row[1] = series[j]
		for i := 1; i <= lags; i++ {
			row[1+i] = dy[j-i]
		}
		x = append(x, row)
		y = append(y, dy[j])
	}
	if len(x) == 0 {
		x = [][]float64{make([]float64, 2+lags)}
		y = nil
	}
	return x, y
}

// MaxLag is the Schwert bound 12·(n/100)^¼ clipped so the largest model keeps degrees of freedom.
func MaxLag(n int) int {
	m := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 3; m > limit {
		m = limit
	}
	if m < 0 {
		m = 0
	}
	return m
}

// selectLagAIC fits every lag order on the common sample and keeps the smallest AIC.
func selectLagAIC(series []float64) (int, error) {
	n := len(series)
	maxLag := MaxLag(n)
	if n < maxLag+3 {
		return 0, errs.InsufficientData("adf", "autolag=aic", n, maxLag+3)
	}
	best, bestAIC := -1, math.Inf(1)
	for p := 0; p <= maxLag; p++ {
		x, y := design(series, p, maxLag)
		if len(y) <= len(x[0]) {
			continue
		}
		fit, ok := fitOLS(x, y)
		if !ok || fit.rss <= 0 {
			continue
		}
		nobs := float64(fit.nobs)
		aic := nobs*math.Log(fit.rss/nobs) + 2*float64(fit.k)
		if aic < bestAIC {
			best, bestAIC = p, aic
		}
	}
	if best < 0 {
		return 0, singular(series, maxLag)
	}
	return best, nil
}

func insufficientDOF(n, lags int) error {
	return &errs.Error{
		Kind:   errs.KindInsufficientData,
		Op:     "adf",
		Method: fmt.Sprintf("lags=%d", lags),
		N:      n,
		Need:   2*lags + 4,
		Detail: "regression has no degrees of freedom",
	}
}

func singular(series []float64, lags int) error {
	return &errs.Error{
		Kind:   errs.KindSingularInput,
		Op:     "adf",
		Method: fmt.Sprintf("lags=%d", lags),
		N:      len(series),
		Detail: "design matrix is singular",
		StatsA: mathx.Describe(series),
	}
}
