package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/service/aggregator"
	"PairPulse/internal/services/correlation"
	"PairPulse/internal/services/export"
	"PairPulse/internal/services/features"
	"PairPulse/internal/services/mathx"
	"PairPulse/internal/services/regression"
	"PairPulse/internal/services/spread"
	"PairPulse/internal/services/stationarity"
	applogger "PairPulse/pkg/logger"
)

type AnalyticsConfig struct {
	Timeframe  models.Timeframe
	Regression models.RegressionType
	// Lookback is the number of sealed bars read per symbol.
	Lookback int
	// MinPoints is the number of aligned closes required.
	MinPoints int
}

// PairQuery selects a directed pair; zero fields fall back to the configured defaults.
type PairQuery struct {
	SymbolA    string
	SymbolB    string
	Timeframe  models.Timeframe
	Regression models.RegressionType
	Window     int
}

func (q PairQuery) pair() string { return q.SymbolA + "/" + q.SymbolB }

type ADFOutcome struct {
	SymbolA    string                `json:"symbolA"`
	SymbolB    string                `json:"symbolB"`
	Timeframe  models.Timeframe      `json:"timeframe"`
	HedgeRatio float64               `json:"hedge_ratio"`
	Regression models.RegressionType `json:"regression_type"`
	ADF        models.ADFResult      `json:"adf_test"`
}

// kalmanSession keeps one recursive filter per directed pair and timeframe.
// last is the open time of the newest bar already absorbed.
type kalmanSession struct {
	mu   sync.Mutex
	kf   *regression.KalmanFilter
	last time.Time
}

// PairAnalyticsUseCase computes hedge ratio, spread, z-score, ADF and
// correlation for a pair over the aggregator's sealed bars.
type PairAnalyticsUseCase struct {
	agg     *aggregator.Aggregator
	engine  *regression.Engine
	tracker *spread.Tracker
	tester  *stationarity.Tester
	corr    *correlation.Engine
	metrics drepo.Metrics
	cfg     AnalyticsConfig
	log     *applogger.Logger

	mu     sync.Mutex
	kalman map[string]*kalmanSession
	// lastType is the regression type each pair was last estimated with.
	lastType map[string]models.RegressionType
}

func NewPairAnalyticsUseCase(
	agg *aggregator.Aggregator,
	engine *regression.Engine,
	tracker *spread.Tracker,
	tester *stationarity.Tester,
	corr *correlation.Engine,
	metrics drepo.Metrics,
	cfg AnalyticsConfig,
	log *applogger.Logger,
) *PairAnalyticsUseCase {
	if !models.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = models.DefaultTimeframe()
	}
	if !models.IsValidRegression(cfg.Regression) {
		cfg.Regression = models.RegressionOLS
	}
	if cfg.MinPoints < engine.MinPoints() {
		cfg.MinPoints = engine.MinPoints()
	}
	if cfg.Lookback < cfg.MinPoints {
		cfg.Lookback = cfg.MinPoints
	}
	return &PairAnalyticsUseCase{
		agg:      agg,
		engine:   engine,
		tracker:  tracker,
		tester:   tester,
		corr:     corr,
		metrics:  metrics,
		cfg:      cfg,
		log:      log.With("pair-analytics"),
		kalman:   make(map[string]*kalmanSession),
		lastType: make(map[string]models.RegressionType),
	}
}

// Compute runs the full pipeline for q. A failing ADF leaves adf_test null.
func (uc *PairAnalyticsUseCase) Compute(ctx context.Context, q PairQuery) (*models.PairAnalytics, error) {
	start := time.Now()
	defer func() { uc.metrics.RecordLatency("pair_compute", time.Since(start).Seconds()) }()

	q, err := uc.normalize(q)
	if err != nil {
		return nil, err
	}
	ts, a, b, err := uc.series(q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	est, err := uc.estimate(q, ts, a, b)
	if err != nil {
		return nil, withPair(err, q.pair())
	}
	sp, z, err := uc.tracker.Build(ts, a, b, est.Beta, est.Alpha, q.Window)
	if err != nil {
		return nil, withPair(err, q.pair())
	}

	out := &models.PairAnalytics{
		SymbolA:        q.SymbolA,
		SymbolB:        q.SymbolB,
		Timeframe:      q.Timeframe,
		HedgeRatio:     est.Beta,
		Intercept:      est.Alpha,
		RegressionType: q.Regression,
		Spread:         sp,
		ZScore:         z,
		ComputedAt:     time.Now().UTC(),
	}
	if c, ok := mathx.Pearson(a, b); ok {
		out.Correlation = c
	}
	if res, err := uc.tester.Test(sp.Values); err == nil {
		out.ADF = &res
	} else {
		uc.log.Debug("adf skipped", applogger.String("pair", q.pair()), applogger.Error(err))
	}
	out.PriceA, _ = uc.agg.Price(q.SymbolA)
	out.PriceB, _ = uc.agg.Price(q.SymbolB)
	return out, nil
}

// ADF tests the spread of q for stationarity. Unlike Compute, test failures are returned.
func (uc *PairAnalyticsUseCase) ADF(ctx context.Context, q PairQuery) (*ADFOutcome, error) {
	q, err := uc.normalize(q)
	if err != nil {
		return nil, err
	}
	ts, a, b, err := uc.series(q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	est, err := uc.estimate(q, ts, a, b)
	if err != nil {
		return nil, withPair(err, q.pair())
	}
	sp, _, err := uc.tracker.Build(ts, a, b, est.Beta, est.Alpha, q.Window)
	if err != nil {
		return nil, withPair(err, q.pair())
	}
	res, err := uc.tester.Test(sp.Values)
	if err != nil {
		return nil, withPair(err, q.pair())
	}
	return &ADFOutcome{
		SymbolA:    q.SymbolA,
		SymbolB:    q.SymbolB,
		Timeframe:  q.Timeframe,
		HedgeRatio: est.Beta,
		Regression: q.Regression,
		ADF:        res,
	}, nil
}

// CorrelationMatrix returns the maintained matrix, building it on first use.
func (uc *PairAnalyticsUseCase) CorrelationMatrix(_ context.Context) *models.CorrelationMatrix {
	if m := uc.corr.Current(); m != nil {
		return m
	}
	return uc.corr.Recompute(uc.agg)
}

// Export renders the spread and z-score of q as CSV.
func (uc *PairAnalyticsUseCase) Export(ctx context.Context, q PairQuery) ([]byte, string, error) {
	res, err := uc.Compute(ctx, q)
	if err != nil {
		return nil, "", err
	}
	rows, err := export.Rows(res.Spread, res.ZScore)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		return nil, "", fmt.Errorf("write csv: %w", err)
	}
	name := fmt.Sprintf("spread_%s_%s_%s.csv", res.SymbolA, res.SymbolB, res.Timeframe)
	return buf.Bytes(), name, nil
}

func (uc *PairAnalyticsUseCase) normalize(q PairQuery) (PairQuery, error) {
	q.SymbolA = strings.ToUpper(strings.TrimSpace(q.SymbolA))
	q.SymbolB = strings.ToUpper(strings.TrimSpace(q.SymbolB))
	if q.Timeframe == "" {
		q.Timeframe = uc.cfg.Timeframe
	}
	if q.Regression == "" {
		q.Regression = uc.cfg.Regression
	}
	switch {
	case q.SymbolA == "" || q.SymbolB == "":
		return q, errs.InvalidRequest("analytics", "symbolA and symbolB are required")
	case q.SymbolA == q.SymbolB:
		return q, errs.InvalidRequest("analytics", "symbolA and symbolB must differ")
	case !models.IsValidRegression(q.Regression):
		return q, errs.InvalidRequest("analytics", fmt.Sprintf("unknown regression type %q", q.Regression))
	case q.Window < 0:
		return q, errs.InvalidRequest("analytics", "window must not be negative")
	}
	for _, s := range []string{q.SymbolA, q.SymbolB} {
		if !uc.agg.HasSymbol(s) {
			return q, errs.NotFound("analytics", "unknown symbol "+s)
		}
	}
	if !uc.agg.HasTimeframe(q.Timeframe) {
		return q, errs.InvalidRequest("analytics", "timeframe "+string(q.Timeframe)+" is not aggregated")
	}
	return q, nil
}

// series reads sealed closes for both legs, aligned on bar open time.
func (uc *PairAnalyticsUseCase) series(q PairQuery) ([]time.Time, []float64, []float64, error) {
	barsA, err := uc.agg.Bars(q.SymbolA, q.Timeframe, uc.cfg.Lookback, false)
	if err != nil {
		return nil, nil, nil, err
	}
	barsB, err := uc.agg.Bars(q.SymbolB, q.Timeframe, uc.cfg.Lookback, false)
	if err != nil {
		return nil, nil, nil, err
	}
	ts, a, b := features.AlignCloses(barsA, barsB)
	ts, a, b = features.Tail(ts, a, b, uc.cfg.Lookback)
	if len(ts) < uc.cfg.MinPoints {
		e := errs.InsufficientData("analytics", string(q.Regression), len(ts), uc.cfg.MinPoints)
		e.Pair = q.pair()
		return nil, nil, nil, e
	}
	return ts, a, b, nil
}

func (uc *PairAnalyticsUseCase) estimate(q PairQuery, ts []time.Time, a, b []float64) (regression.Estimate, error) {
	uc.switchRegression(q)
	if q.Regression != models.RegressionKalman {
		return uc.engine.Estimate(q.Regression, a, b)
	}
	s := uc.session(q)
	s.mu.Lock()
	defer s.mu.Unlock()
	// feed each bar exactly once
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(s.last) })
	est, err := uc.engine.EstimateKalman(s.kf, a[i:], b[i:])
	if err != nil {
		return est, err
	}
	if i < len(ts) {
		s.last = ts[len(ts)-1]
	}
	return est, nil
}

func sessionKey(q PairQuery) string { return q.pair() + "@" + string(q.Timeframe) }

// switchRegression drops the pair's Kalman state when its regression type
// changes, so the next Kalman estimate starts from a fresh filter.
func (uc *PairAnalyticsUseCase) switchRegression(q PairQuery) {
	key := sessionKey(q)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	prev, seen := uc.lastType[key]
	uc.lastType[key] = q.Regression
	if seen && prev != q.Regression {
		delete(uc.kalman, key)
	}
}

func (uc *PairAnalyticsUseCase) session(q PairQuery) *kalmanSession {
	key := sessionKey(q)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	s, ok := uc.kalman[key]
	if !ok {
		s = &kalmanSession{kf: uc.engine.NewKalman()}
		uc.kalman[key] = s
	}
	return s
}

func withPair(err error, pair string) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Pair == "" {
		e.Pair = pair
	}
	return err
}
