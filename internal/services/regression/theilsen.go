package regression

import (
	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"
)

// theilSen takes the median of pairwise slopes over the trailing TheilSenMaxPoints samples.
func (e *Engine) theilSen(a, b []float64) (Estimate, error) {
	if n := len(a); n > e.cfg.TheilSenMaxPoints {
		a = a[n-e.cfg.TheilSenMaxPoints:]
		b = b[n-e.cfg.TheilSenMaxPoints:]
	}
	n := len(a)
	slopes := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			db := b[j] - b[i]
			if db == 0 {
				continue
			}
			slopes = append(slopes, (a[j]-a[i])/db)
		}
	}
	if len(slopes) == 0 {
		return Estimate{}, singular(models.RegressionTheilSen, a, b, "all b values are equal")
	}
	beta := mathx.Median(slopes)

	resid := make([]float64, n)
	for i := range a {
		resid[i] = a[i] - beta*b[i]
	}
	return Estimate{
		Method:    models.RegressionTheilSen,
		Alpha:     mathx.Median(resid),
		Beta:      beta,
		N:         n,
		Converged: true,
	}, nil
}
