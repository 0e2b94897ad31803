package stationarity

import "math"

// olsFit is the result of an ordinary least squares fit y = X·coef.
type olsFit struct {
	coef []float64
	se   []float64
	rss  float64
	nobs int
	k    int
}

// fitOLS solves the normal equations by Gauss-Jordan elimination with partial pivoting.
// ok is false when XᵀX is numerically singular.
func fitOLS(x [][]float64, y []float64) (olsFit, bool) {
	nobs := len(y)
	k := len(x[0])

	// augmented [XᵀX | I]
	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, 2*k)
		m[i][k+i] = 1
	}
	xty := make([]float64, k)
	for r := 0; r < nobs; r++ {
		row := x[r]
		for i := 0; i < k; i++ {
			xty[i] += row[i] * y[r]
			for j := i; j < k; j++ {
				m[i][j] += row[i] * row[j]
			}
		}
	}
	var scale float64
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			m[i][j] = m[j][i]
		}
		scale = math.Max(scale, math.Abs(m[i][i]))
	}
	if scale == 0 {
		return olsFit{}, false
	}

	for col := 0; col < k; col++ {
		piv := col
		for r := col + 1; r < k; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[piv][col]) {
				piv = r
			}
		}
		if math.Abs(m[piv][col]) <= 1e-12*scale {
			return olsFit{}, false
		}
		m[col], m[piv] = m[piv], m[col]
		p := m[col][col]
		for j := range m[col] {
			m[col][j] /= p
		}
		for r := 0; r < k; r++ {
			if r == col || m[r][col] == 0 {
				continue
			}
			f := m[r][col]
			for j := range m[r] {
				m[r][j] -= f * m[col][j]
			}
		}
	}

	coef := make([]float64, k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			coef[i] += m[i][k+j] * xty[j]
		}
	}
	var rss float64
	for r := 0; r < nobs; r++ {
		fit := 0.0
		for i := 0; i < k; i++ {
			fit += x[r][i] * coef[i]
		}
		d := y[r] - fit
		rss += d * d
	}
	sigma2 := rss / float64(nobs-k)
	se := make([]float64, k)
	for i := 0; i < k; i++ {
		se[i] = math.Sqrt(sigma2 * m[i][k+i])
	}
	return olsFit{coef: coef, se: se, rss: rss, nobs: nobs, k: k}, true
}
