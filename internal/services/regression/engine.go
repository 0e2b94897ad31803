// Package regression estimates the hedge ratio between two aligned price series.
package regression

import (
	"fmt"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"
)

// Estimate is the fitted relation a = Alpha + Beta*b.
type Estimate struct {
	Method     models.RegressionType
	Beta       float64
	Alpha      float64
	N          int
	Converged  bool
	Iterations int
	// BetaPath is the per-sample beta for recursive estimators (Kalman); nil otherwise.
	BetaPath  []float64
	AlphaPath []float64
}

type Config struct {
	MinPoints         int
	TheilSenMaxPoints int
	KalmanDelta       float64
	KalmanObsVar      float64
	HuberEpsilon      float64
	HuberMaxIter      int
	HuberTolerance    float64
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		MinPoints:         20,
		TheilSenMaxPoints: 500,
		KalmanDelta:       1e-5,
		KalmanObsVar:      1e-3,
		HuberEpsilon:      1.345,
		HuberMaxIter:      50,
		HuberTolerance:    1e-8,
	}
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	d := DefaultConfig()
	switch {
	case cfg.MinPoints == 0:
		cfg.MinPoints = d.MinPoints
	case cfg.MinPoints < 2:
		cfg.MinPoints = 2
	}
	if cfg.TheilSenMaxPoints < 2 {
		cfg.TheilSenMaxPoints = d.TheilSenMaxPoints
	}
	if cfg.KalmanDelta <= 0 || cfg.KalmanDelta >= 1 {
		cfg.KalmanDelta = d.KalmanDelta
	}
	if cfg.KalmanObsVar <= 0 {
		cfg.KalmanObsVar = d.KalmanObsVar
	}
	if cfg.HuberEpsilon <= 1 {
		cfg.HuberEpsilon = d.HuberEpsilon
	}
	if cfg.HuberMaxIter <= 0 {
		cfg.HuberMaxIter = d.HuberMaxIter
	}
	if cfg.HuberTolerance <= 0 {
		cfg.HuberTolerance = d.HuberTolerance
	}
	return &Engine{cfg: cfg}
}

// MinPoints is the smallest accepted sample size.
func (e *Engine) MinPoints() int { return e.cfg.MinPoints }

// NewKalman returns a filter with the engine's noise parameters, state at zero.
func (e *Engine) NewKalman() *KalmanFilter {
	return NewKalmanFilter(e.cfg.KalmanDelta, e.cfg.KalmanObsVar)
}

// Estimate fits a on b with method. Kalman runs a fresh filter over the whole input.
func (e *Engine) Estimate(method models.RegressionType, a, b []float64) (Estimate, error) {
	if err := e.check(method, a, b); err != nil {
		return Estimate{}, err
	}
	switch method {
	case models.RegressionOLS:
		return e.ols(a, b)
	case models.RegressionKalman:
		return e.kalman(e.NewKalman(), a, b)
	case models.RegressionHuber:
		return e.huber(a, b)
	case models.RegressionTheilSen:
		return e.theilSen(a, b)
	}
	return Estimate{}, errs.InvalidRequest("regression", fmt.Sprintf("unknown regression type %q", method))
}

// EstimateKalman advances kf over (a, b) and returns the beta path for these samples.
// The caller owns kf and is responsible for feeding each sample exactly once.
func (e *Engine) EstimateKalman(kf *KalmanFilter, a, b []float64) (Estimate, error) {
	if len(a) != len(b) {
		return Estimate{}, mismatch(models.RegressionKalman, a, b)
	}
	if kf.Steps()+len(a) < e.cfg.MinPoints {
		return Estimate{}, errs.InsufficientData("regression", string(models.RegressionKalman), kf.Steps()+len(a), e.cfg.MinPoints)
	}
	if !mathx.AllFinite(a) || !mathx.AllFinite(b) {
		return Estimate{}, errs.InvalidRequest("regression", "inputs contain NaN or Inf")
	}
	return e.kalman(kf, a, b)
}

func (e *Engine) check(method models.RegressionType, a, b []float64) error {
	if !models.IsValidRegression(method) {
		return errs.InvalidRequest("regression", fmt.Sprintf("unknown regression type %q", method))
	}
	if len(a) != len(b) {
		return mismatch(method, a, b)
	}
	if len(a) < e.cfg.MinPoints {
		return errs.InsufficientData("regression", string(method), len(a), e.cfg.MinPoints)
	}
	if !mathx.AllFinite(a) || !mathx.AllFinite(b) {
		return errs.InvalidRequest("regression", "inputs contain NaN or Inf")
	}
	return nil
}

func mismatch(method models.RegressionType, a, b []float64) error {
	return &errs.Error{
		Kind:   errs.KindInvalidRequest,
		Op:     "regression",
		Method: string(method),
		N:      len(a),
		Detail: fmt.Sprintf("series lengths differ: %d vs %d", len(a), len(b)),
	}
}

func singular(method models.RegressionType, a, b []float64, detail string) error {
	return &errs.Error{
		Kind:   errs.KindSingularInput,
		Op:     "regression",
		Method: string(method),
		N:      len(a),
		Detail: detail,
		StatsA: mathx.Describe(a),
		StatsB: mathx.Describe(b),
	}
}
