package stationarity

import "math"

// MacKinnon (2010) response-surface coefficients for the constant-only, single-series
// Dickey-Fuller critical values: cv = b0 + b1/n + b2/n² + b3/n³.
var critCoef = map[string][4]float64{
	"1%":  {-3.43035, -6.5393, -16.786, -79.433},
	"5%":  {-2.86154, -2.8903, -4.234, -40.04},
	"10%": {-2.56677, -1.5384, -2.809, 0},
}

// MacKinnon (1994) p-value surface, constant-only regression with one series.
const (
	pMaxStat  = 2.74
	pMinStat  = -18.83
	pStarStat = -1.61
)

var (
	pSmall = []float64{2.1659, 1.4412, 0.038269}
	pLarge = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// CriticalValues returns the 1%, 5% and 10% critical values for a sample of nobs observations.
func CriticalValues(nobs int) map[string]float64 {
	inv := 1 / float64(nobs)
	out := make(map[string]float64, len(critCoef))
	for level, b := range critCoef {
		out[level] = b[0] + b[1]*inv + b[2]*inv*inv + b[3]*inv*inv*inv
	}
	return out
}

// PValue approximates the asymptotic p-value of an ADF statistic.
func PValue(stat float64) float64 {
	switch {
	case stat > pMaxStat:
		return 1
	case stat < pMinStat:
		return 0
	}
	coef := pLarge
	if stat <= pStarStat {
		coef = pSmall
	}
	var z, pow float64 = 0, 1
	for _, c := range coef {
		z += c * pow
		pow *= stat
	}
	return normCDF(z)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
