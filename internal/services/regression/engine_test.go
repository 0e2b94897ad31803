package regression

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linear returns a = alpha + beta*b + N(0, noise) with b uniform on [50, 150].
func linear(seed int64, n int, alpha, beta, noise float64) (a, b []float64) {
	rng := rand.New(rand.NewSource(seed))
	a = make([]float64, n)
	b = make([]float64, n)
	for i := range b {
		b[i] = 50 + 100*rng.Float64()
		a[i] = alpha + beta*b[i] + noise*rng.NormFloat64()
	}
	return a, b
}

// withOutliers shifts a by +200 for every point whose b lies above 140.
func withOutliers(a, b []float64) []float64 {
	out := append([]float64(nil), a...)
	for i := range b {
		if b[i] > 140 {
			out[i] += 200
		}
	}
	return out
}

func TestOLSRecoversKnownRelation(t *testing.T) {
	a, b := linear(1, 200, 3, 1.5, 0.1)
	est, err := NewEngine(DefaultConfig()).Estimate(models.RegressionOLS, a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, est.Beta, 0.01)
	assert.InDelta(t, 3.0, est.Alpha, 0.2)
	assert.Equal(t, 200, est.N)
}

func TestRobustEstimatorsResistOutliers(t *testing.T) {
	a, b := linear(2, 300, 3, 1.5, 0.1)
	a = withOutliers(a, b)
	eng := NewEngine(DefaultConfig())

	ols, err := eng.Estimate(models.RegressionOLS, a, b)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(ols.Beta-1.5), 0.3, "outliers should drag OLS")

	for _, m := range []models.RegressionType{models.RegressionHuber, models.RegressionTheilSen} {
		est, err := eng.Estimate(m, a, b)
		require.NoError(t, err, m)
		assert.InDelta(t, 1.5, est.Beta, 0.05, m)
		assert.Less(t, math.Abs(est.Beta-1.5), math.Abs(ols.Beta-1.5), m)
	}
}

func TestHuberConvergesOnCleanData(t *testing.T) {
	a, b := linear(3, 200, -2, 0.8, 0.5)
	est, err := NewEngine(DefaultConfig()).Estimate(models.RegressionHuber, a, b)
	require.NoError(t, err)
	assert.True(t, est.Converged)
	assert.InDelta(t, 0.8, est.Beta, 0.02)
}

func TestHuberReportsNonConvergence(t *testing.T) {
	a, b := linear(4, 200, 3, 1.5, 0.1)
	a = withOutliers(a, b)
	cfg := DefaultConfig()
	cfg.HuberMaxIter = 1
	est, err := NewEngine(cfg).Estimate(models.RegressionHuber, a, b)
	require.NoError(t, err)
	assert.False(t, est.Converged)
	assert.Equal(t, 1, est.Iterations)
	assert.False(t, math.IsNaN(est.Beta))
}

func TestTheilSenCapsInput(t *testing.T) {
	// early segment follows a different slope and must be ignored
	a1, b1 := linear(5, 100, 0, 5, 0.01)
	a2, b2 := linear(6, 50, 0, 2, 0.01)
	cfg := DefaultConfig()
	cfg.TheilSenMaxPoints = 50
	est, err := NewEngine(cfg).Estimate(models.RegressionTheilSen, append(a1, a2...), append(b1, b2...))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, est.Beta, 0.01)
	assert.Equal(t, 50, est.N)
}

func TestKalmanTracksBeta(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 300
	a := make([]float64, n)
	b := make([]float64, n)
	price := 100.0
	for i := range b {
		price += rng.NormFloat64()
		b[i] = price
		a[i] = 2 * price
	}
	eng := NewEngine(DefaultConfig())
	est, err := eng.Estimate(models.RegressionKalman, a, b)
	require.NoError(t, err)
	require.Len(t, est.BetaPath, n)
	assert.InDelta(t, 2.0, est.Beta, 0.01)
	assert.Equal(t, est.Beta, est.BetaPath[n-1])

	// feeding the same samples incrementally yields the same state
	kf := eng.NewKalman()
	_, err = eng.EstimateKalman(kf, a[:150], b[:150])
	require.NoError(t, err)
	inc, err := eng.EstimateKalman(kf, a[150:], b[150:])
	require.NoError(t, err)
	assert.Len(t, inc.BetaPath, 150)
	assert.Equal(t, n, inc.N)
	assert.InDelta(t, est.Beta, inc.Beta, 1e-12)
	assert.InDelta(t, est.Alpha, inc.Alpha, 1e-12)
}

func TestSingularInput(t *testing.T) {
	a, _ := linear(8, 30, 0, 1, 1)
	b := make([]float64, 30)
	for i := range b {
		b[i] = 42
	}
	eng := NewEngine(DefaultConfig())
	for _, m := range []models.RegressionType{models.RegressionOLS, models.RegressionHuber, models.RegressionTheilSen} {
		_, err := eng.Estimate(m, a, b)
		require.Error(t, err, m)
		assert.True(t, errors.Is(err, errs.ErrSingularInput), m)

		var e *errs.Error
		require.True(t, errors.As(err, &e))
		require.NotNil(t, e.StatsB)
		assert.Zero(t, e.StatsB.Std)
		assert.Equal(t, 42.0, e.StatsB.Mean)
		assert.Equal(t, string(m), e.Method)
	}
}

func TestInputValidation(t *testing.T) {
	eng := NewEngine(Config{MinPoints: 20})
	a, b := linear(9, 19, 0, 1, 1)

	_, err := eng.Estimate(models.RegressionOLS, a, b)
	assert.True(t, errors.Is(err, errs.ErrInsufficientData))

	a, b = linear(9, 25, 0, 1, 1)
	_, err = eng.Estimate(models.RegressionOLS, a, b[:24])
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))

	_, err = eng.Estimate("lasso", a, b)
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))

	a[3] = math.NaN()
	_, err = eng.Estimate(models.RegressionOLS, a, b)
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))
}

func TestMinPointsNeverBelowTwo(t *testing.T) {
	assert.Equal(t, 2, NewEngine(Config{MinPoints: 1}).MinPoints())
	assert.Equal(t, 20, NewEngine(Config{}).MinPoints())
}
