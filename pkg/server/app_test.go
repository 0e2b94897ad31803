package server

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"PairPulse/internal/broadcast"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/repository"
	"PairPulse/internal/service/aggregator"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/correlation"
	"PairPulse/internal/services/regression"
	"PairPulse/internal/services/spread"
	"PairPulse/internal/services/stationarity"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	startErr  error
	started   atomic.Bool
	shutdowns atomic.Int32
}

func (f *fakeSource) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started.Store(true)
	return nil
}

func (f *fakeSource) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	return nil
}

func (f *fakeSource) IsConnected() bool { return f.started.Load() }

func newApp(t *testing.T, src usecase.TickSource, port int) (*App, *repository.MemoryAlertStore) {
	t.Helper()
	log := logger.Nop()
	cfg := config.Default()
	cfg.Server.ShutdownTimeout = 2 * time.Second

	agg, err := aggregator.New(aggregator.Config{
		Symbols:    []string{"AAA", "BBB"},
		Timeframes: []models.Timeframe{models.TF1m},
	}, metrics.Nop{}, log)
	require.NoError(t, err)

	corr := correlation.NewEngine(correlation.Config{Timeframe: models.TF1m, Window: 50, MinPoints: 20})
	pairs := usecase.NewPairAnalyticsUseCase(agg,
		regression.NewEngine(regression.DefaultConfig()),
		spread.NewTracker(spread.Config{Window: 20}),
		stationarity.NewTester(stationarity.Config{Lags: 1}),
		corr, metrics.Nop{},
		usecase.AnalyticsConfig{Timeframe: models.TF1m, Lookback: 100, MinPoints: 20},
		log,
	)
	ev := alerts.NewEvaluator()
	store := repository.NewMemoryAlertStore()
	rules := usecase.NewAlertRulesUseCase(store, ev, agg, log)
	hub := broadcast.NewHub(broadcast.Config{}, usecase.NewInitialState(agg, models.TF1m, 3).Build, metrics.Nop{}, log)
	cycle := usecase.NewRecomputeCycle(agg, pairs, corr, ev, hub, repository.NopAlertPublisher{}, metrics.Nop{},
		usecase.RecomputeConfig{Interval: 20 * time.Millisecond, Timeframe: models.TF1m}, log)

	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(nil,
		xhttp.WithHost("127.0.0.1"),
		xhttp.WithPort(port),
		xhttp.WithLogger(log),
		xhttp.WithRegistry(reg, reg),
	)
	return New(cfg, log, Components{
		Source:  src,
		Cycle:   cycle,
		Rules:   rules,
		Limiter: ratelimit.New(5, 1),
		Hub:     hub,
		HTTP:    srv,
	}), store
}

func TestRunContextStartsAndStops(t *testing.T) {
	src := &fakeSource{}
	app, store := newApp(t, src, 0)
	require.NoError(t, store.Save(context.Background(), models.AlertRule{
		ID: "r1", Name: "wide", Metric: "zscore", Operator: ">", Threshold: 2,
		SymbolPair: "AAA/BBB", Enabled: true,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	require.Eventually(t, src.started.Load, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, app.c.Rules.List(ctx), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, int32(1), src.shutdowns.Load())
	assert.Zero(t, app.c.Hub.Count())
}

func TestRunContextSourceFailure(t *testing.T) {
	boom := errors.New("feed down")
	app, _ := newApp(t, &fakeSource{startErr: boom}, 0)
	err := app.RunContext(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunContextListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	src := &fakeSource{}
	app, _ := newApp(t, src, ln.Addr().(*net.TCPAddr).Port)

	done := make(chan error, 1)
	go func() { done <- app.RunContext(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorContains(t, err, "http server")
	case <-time.After(5 * time.Second):
		t.Fatal("listen error not surfaced")
	}
	assert.Equal(t, int32(1), src.shutdowns.Load())
}
