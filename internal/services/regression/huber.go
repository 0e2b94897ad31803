package regression

import (
	"math"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"
)

// madScale converts the median absolute deviation to a normal-consistent sigma.
const madScale = 0.6745

// huber runs iteratively reweighted least squares from the OLS start.
// Non-convergence within MaxIter returns the last iterate with Converged=false.
func (e *Engine) huber(a, b []float64) (Estimate, error) {
	alpha, beta, ok := weightedLS(a, b, nil)
	if !ok {
		return Estimate{}, singular(models.RegressionHuber, a, b, "b has zero variance")
	}

	n := len(a)
	resid := make([]float64, n)
	absr := make([]float64, n)
	w := make([]float64, n)
	est := Estimate{Method: models.RegressionHuber, N: n}

	for it := 1; it <= e.cfg.HuberMaxIter; it++ {
		est.Iterations = it
		for i := range a {
			resid[i] = a[i] - alpha - beta*b[i]
			absr[i] = math.Abs(resid[i])
		}
		scale := mathx.Median(absr) / madScale
		if scale <= mathx.ZeroTol*math.Max(1, math.Abs(mathx.Mean(a))) {
			// at least half the points fit exactly
			est.Converged = true
			break
		}
		k := e.cfg.HuberEpsilon * scale
		for i := range w {
			if absr[i] <= k {
				w[i] = 1
			} else {
				w[i] = k / absr[i]
			}
		}
		na, nb, ok := weightedLS(a, b, w)
		if !ok {
			return Estimate{}, singular(models.RegressionHuber, a, b, "weighted b has zero variance")
		}
		delta := math.Abs(nb-beta) + math.Abs(na-alpha)
		alpha, beta = na, nb
		if delta <= e.cfg.HuberTolerance*(1+math.Abs(beta)+math.Abs(alpha)) {
			est.Converged = true
			break
		}
	}
	est.Alpha, est.Beta = alpha, beta
	return est, nil
}
