package regression

import (
	"math"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/mathx"
)

func (e *Engine) ols(a, b []float64) (Estimate, error) {
	alpha, beta, ok := weightedLS(a, b, nil)
	if !ok {
		return Estimate{}, singular(models.RegressionOLS, a, b, "b has zero variance")
	}
	return Estimate{
		Method:    models.RegressionOLS,
		Alpha:     alpha,
		Beta:      beta,
		N:         len(a),
		Converged: true,
	}, nil
}

// weightedLS fits a = alpha + beta*b with optional weights w (nil means unit weights).
// ok is false when the weighted spread of b is zero.
func weightedLS(a, b, w []float64) (alpha, beta float64, ok bool) {
	var sw, sa, sb float64
	for i := range a {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		sw += wi
		sa += wi * a[i]
		sb += wi * b[i]
	}
	if sw <= 0 {
		return 0, 0, false
	}
	ma, mb := sa/sw, sb/sw

	var sab, sbb float64
	for i := range a {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		db := b[i] - mb
		sab += wi * db * (a[i] - ma)
		sbb += wi * db * db
	}
	if mathx.IsZeroStd(math.Sqrt(sbb/sw), mb) {
		return 0, 0, false
	}
	beta = sab / sbb
	return ma - beta*mb, beta, true
}
