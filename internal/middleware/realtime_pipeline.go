package middleware

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
)

// Sink is the minimal downstream the pipeline needs.
type Sink interface {
	Ingest(t models.Tick) error
}

// RealtimePipeline sits between a tick source and the aggregator.
// It normalizes, validates and optionally throttles ticks per symbol.
type RealtimePipeline struct {
	sink     Sink
	metrics  domrepo.Metrics
	maxRPS   int
	now      func() time.Time
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted wall time
	// simple format transform hook (optional)
	transform func(models.Tick) models.Tick
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max ticks per second per symbol. 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform sets a transformation hook applied before validation.
func WithTransform(fn func(models.Tick) models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// WithClock overrides the wall clock used for throttling.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:     sink,
		metrics:  metrics,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles, and forwards t. Throttled ticks are dropped with a nil error.
func (p *RealtimePipeline) Process(t models.Tick) error {
	start := time.Now()
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if p.transform != nil {
		t = p.transform(t)
	}
	if err := validateTick(t); err != nil {
		p.metrics.RecordInvalidTick("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, p.now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.sink.Ingest(t); err != nil {
		return fmt.Errorf("pipeline ingest: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return errs.InvalidTick("", "symbol empty")
	}
	if t.Timestamp.IsZero() {
		return errs.InvalidTick(t.Symbol, "timestamp invalid")
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return errs.InvalidTick(t.Symbol, fmt.Sprintf("price %v invalid", t.Price))
	}
	if math.IsNaN(t.Size) || math.IsInf(t.Size, 0) || t.Size < 0 {
		return errs.InvalidTick(t.Symbol, fmt.Sprintf("size %v invalid", t.Size))
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
