package usecase

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/service/aggregator"
	"PairPulse/internal/services/correlation"
	"PairPulse/internal/services/regression"
	"PairPulse/internal/services/spread"
	"PairPulse/internal/services/stationarity"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newAggregator(t *testing.T, symbols ...string) *aggregator.Aggregator {
	t.Helper()
	agg, err := aggregator.New(aggregator.Config{
		Symbols:     symbols,
		Timeframes:  []models.Timeframe{models.TF1m},
		HistorySize: 500,
	}, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)
	return agg
}

// seedCloses seals one 1m bar per close starting at from.
func seedCloses(t *testing.T, agg *aggregator.Aggregator, symbol string, from time.Time, closes []float64) {
	t.Helper()
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			OpenTime: from.Add(time.Duration(i) * time.Minute),
			Open:     c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	n, err := agg.Seed(symbol, models.TF1m, bars)
	require.NoError(t, err)
	require.Equal(t, len(closes), n)
}

// cointegrated returns b as a random walk and a = 2 + 1.5*b + N(0, 0.5).
func cointegrated(seed int64, n int) (a, b []float64) {
	rng := rand.New(rand.NewSource(seed))
	a = make([]float64, n)
	b = make([]float64, n)
	level := 100.0
	for i := 0; i < n; i++ {
		level += rng.NormFloat64()
		b[i] = level
		a[i] = 2 + 1.5*level + 0.5*rng.NormFloat64()
	}
	return a, b
}

func newAnalytics(agg *aggregator.Aggregator) (*PairAnalyticsUseCase, *correlation.Engine) {
	corr := correlation.NewEngine(correlation.Config{Timeframe: models.TF1m, Window: 100, MinPoints: 20})
	uc := NewPairAnalyticsUseCase(
		agg,
		regression.NewEngine(regression.DefaultConfig()),
		spread.NewTracker(spread.Config{Window: 20}),
		stationarity.NewTester(stationarity.Config{Lags: 1, Confidence: "5%"}),
		corr,
		metrics.Nop{},
		AnalyticsConfig{Timeframe: models.TF1m, Regression: models.RegressionOLS, Lookback: 100, MinPoints: 20},
		logger.Nop(),
	)
	return uc, corr
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []interface{}
	kind []string
}

func (h *recordingHub) Broadcast(kind string, v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kind = append(h.kind, kind)
	h.msgs = append(h.msgs, v)
}

func (h *recordingHub) kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.kind...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AlertEvent
	err    error
}

func (p *recordingPublisher) PublishAlert(_ context.Context, ev models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
