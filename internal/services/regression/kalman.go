package regression

import (
	"sync"

	"PairPulse/internal/domain/models"
)

// KalmanFilter tracks the state [alpha, beta] of a = alpha + beta*b as a random walk.
// Process covariance is delta/(1-delta)*I; observation variance is ve.
type KalmanFilter struct {
	mu    sync.Mutex
	vw    float64
	ve    float64
	theta [2]float64
	p     [2][2]float64
	steps int
}

func NewKalmanFilter(delta, ve float64) *KalmanFilter {
	return &KalmanFilter{vw: delta / (1 - delta), ve: ve}
}

// Update incorporates one observation and returns the posterior alpha and beta.
func (k *KalmanFilter) Update(a, b float64) (alpha, beta float64) {
	k.mu.Lock()
	defer k.mu.Unlock()

	// predict: R = P + Vw
	r := k.p
	r[0][0] += k.vw
	r[1][1] += k.vw

	x := [2]float64{1, b}
	// R x
	rx := [2]float64{
		r[0][0]*x[0] + r[0][1]*x[1],
		r[1][0]*x[0] + r[1][1]*x[1],
	}
	q := x[0]*rx[0] + x[1]*rx[1] + k.ve
	gain := [2]float64{rx[0] / q, rx[1] / q}

	innov := a - (k.theta[0] + k.theta[1]*b)
	k.theta[0] += gain[0] * innov
	k.theta[1] += gain[1] * innov

	// P = R - K (x^T R); x^T R equals (R x)^T because R is symmetric
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			k.p[i][j] = r[i][j] - gain[i]*rx[j]
		}
	}
	k.steps++
	return k.theta[0], k.theta[1]
}

// State returns the current alpha and beta.
func (k *KalmanFilter) State() (alpha, beta float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.theta[0], k.theta[1]
}

// Steps is the number of observations absorbed since construction.
func (k *KalmanFilter) Steps() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.steps
}

func (e *Engine) kalman(kf *KalmanFilter, a, b []float64) (Estimate, error) {
	betas := make([]float64, len(a))
	alphas := make([]float64, len(a))
	for i := range a {
		alphas[i], betas[i] = kf.Update(a[i], b[i])
	}
	alpha, beta := kf.State()
	return Estimate{
		Method:    models.RegressionKalman,
		Alpha:     alpha,
		Beta:      beta,
		N:         kf.Steps(),
		Converged: true,
		BetaPath:  betas,
		AlphaPath: alphas,
	}, nil
}
