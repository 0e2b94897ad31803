package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/service/aggregator"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/correlation"
	applogger "PairPulse/pkg/logger"
)

// Broadcaster fans a typed message out to live subscribers.
type Broadcaster interface {
	Broadcast(kind string, v interface{})
}

type RecomputeConfig struct {
	Interval time.Duration
	// Timeframe and OHLCBars select the bars pushed with each update.
	Timeframe    models.Timeframe
	OHLCBars     int
	TrackedPairs []PairQuery
	// PublishTimeout bounds each alert publish to the external sink.
	PublishTimeout time.Duration
}

// InitialState builds the full-state message sent to new subscribers.
type InitialState struct {
	agg *aggregator.Aggregator
	tf  models.Timeframe
	n   int
}

func NewInitialState(agg *aggregator.Aggregator, tf models.Timeframe, ohlcBars int) *InitialState {
	if !models.IsValidTimeframe(tf) {
		tf = models.DefaultTimeframe()
	}
	return &InitialState{agg: agg, tf: tf, n: ohlcBars}
}

func (s *InitialState) Build() models.InitialMessage {
	snap := s.agg.Snapshot(s.tf, s.n)
	return models.InitialMessage{
		Type:    models.MessageInitial,
		Prices:  snap.Prices,
		OHLC:    snap.OHLC,
		Volumes: snap.Volumes,
	}
}

// RecomputeCycle is the only scheduled work: every interval it rebuilds the
// correlation matrix, refreshes tracked pair analytics, evaluates alert rules
// and pushes update and alert messages.
type RecomputeCycle struct {
	agg       *aggregator.Aggregator
	analytics *PairAnalyticsUseCase
	corr      *correlation.Engine
	evaluator *alerts.Evaluator
	hub       Broadcaster
	publisher drepo.AlertPublisher
	metrics   drepo.Metrics
	cfg       RecomputeConfig
	log       *applogger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRecomputeCycle(
	agg *aggregator.Aggregator,
	analytics *PairAnalyticsUseCase,
	corr *correlation.Engine,
	evaluator *alerts.Evaluator,
	hub Broadcaster,
	publisher drepo.AlertPublisher,
	metrics drepo.Metrics,
	cfg RecomputeConfig,
	log *applogger.Logger,
) *RecomputeCycle {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if !models.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = models.DefaultTimeframe()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &RecomputeCycle{
		agg:       agg,
		analytics: analytics,
		corr:      corr,
		evaluator: evaluator,
		hub:       hub,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		log:       log.With("recompute"),
	}
}

func (c *RecomputeCycle) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunOnce(ctx)
			}
		}
	}()
	c.log.Info("recompute cycle started", applogger.Duration("interval", c.cfg.Interval))
}

func (c *RecomputeCycle) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single cycle and returns the alerts it raised.
// A panic inside the cycle is logged and the cycle is skipped.
func (c *RecomputeCycle) RunOnce(ctx context.Context) (events []models.AlertEvent) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError("recompute_panic")
			c.log.Error("recompute panic", applogger.Any("panic", r))
			events = nil
		}
		c.metrics.RecordLatency("recompute_cycle", time.Since(start).Seconds())
	}()

	matrix := c.corr.Recompute(c.agg)
	snap := c.agg.Snapshot(c.cfg.Timeframe, c.cfg.OHLCBars)

	values := alerts.Snapshot{
		ZScore:      make(map[string]models.NullFloat),
		Spread:      make(map[string]models.NullFloat),
		Prices:      snap.Prices,
		Correlation: matrix,
	}
	tracked := make(map[string]*models.PairAnalytics)
	for _, q := range c.pairs() {
		res, err := c.analytics.Compute(ctx, q)
		if err != nil {
			c.logComputeError(q, err)
			continue
		}
		key := res.SymbolA + "/" + res.SymbolB
		values.ZScore[key] = res.ZScore.Current
		if n := len(res.Spread.Values); n > 0 {
			values.Spread[key] = models.Some(res.Spread.Values[n-1])
		}
		tracked[key] = res
	}

	update := models.UpdateMessage{
		Type:      models.MessageUpdate,
		Timestamp: snap.Timestamp,
		Prices:    snap.Prices,
		OHLC:      snap.OHLC,
		Volumes:   snap.Volumes,
	}
	if len(tracked) > 0 {
		update.Analytics = c.trackedOnly(tracked)
	}
	c.hub.Broadcast(models.MessageUpdate, update)

	events = c.evaluator.Evaluate(values)
	for _, ev := range events {
		c.metrics.RecordAlert(ev.Metric)
		c.hub.Broadcast(models.MessageAlert, models.AlertMessage{Type: models.MessageAlert, AlertEvent: ev})
		c.publish(ctx, ev)
	}
	return events
}

// pairs is the tracked pairs plus every pair a z-score or spread rule reads.
func (c *RecomputeCycle) pairs() []PairQuery {
	seen := make(map[string]bool)
	var out []PairQuery
	for _, q := range c.cfg.TrackedPairs {
		key := q.SymbolA + "/" + q.SymbolB
		if !seen[key] {
			seen[key] = true
			out = append(out, q)
		}
	}
	for _, r := range c.evaluator.Rules() {
		if !r.Source.Enabled || (r.Metric != alerts.MetricZScore && r.Metric != alerts.MetricSpread) {
			continue
		}
		key := r.First + "/" + r.Second
		if !seen[key] {
			seen[key] = true
			out = append(out, PairQuery{SymbolA: r.First, SymbolB: r.Second})
		}
	}
	return out
}

func (c *RecomputeCycle) trackedOnly(all map[string]*models.PairAnalytics) map[string]*models.PairAnalytics {
	out := make(map[string]*models.PairAnalytics, len(c.cfg.TrackedPairs))
	for _, q := range c.cfg.TrackedPairs {
		key := q.SymbolA + "/" + q.SymbolB
		if res, ok := all[key]; ok {
			out[key] = res
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *RecomputeCycle) publish(ctx context.Context, ev models.AlertEvent) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()
	if err := c.publisher.PublishAlert(ctx, ev); err != nil {
		c.metrics.RecordError("alert_publish")
		c.log.Error("alert publish failed", applogger.String("rule_id", ev.RuleID), applogger.Error(err))
		return
	}
	c.metrics.RecordMessageSent("alerts", ev.Metric)
}

func (c *RecomputeCycle) logComputeError(q PairQuery, err error) {
	pair := q.SymbolA + "/" + q.SymbolB
	// not enough sealed bars yet is the normal state right after start
	if errors.Is(err, errs.ErrInsufficientData) || errors.Is(err, context.Canceled) {
		c.log.Debug("pair not computed", applogger.String("pair", pair), applogger.Error(err))
		return
	}
	c.metrics.RecordError(fmt.Sprintf("recompute_%s", errs.KindOf(err)))
	c.log.Warn("pair compute failed", applogger.String("pair", pair), applogger.Error(err))
}
