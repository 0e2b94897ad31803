// Package correlation maintains the cross-symbol Pearson correlation matrix.
package correlation

import (
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/features"
	"PairPulse/internal/services/mathx"
)

// BarSource is the read side of the aggregator the engine needs.
type BarSource interface {
	Symbols() []string
	Bars(symbol string, tf models.Timeframe, n int, includeOpen bool) ([]models.Bar, error)
}

type Config struct {
	Timeframe models.Timeframe
	Window    int
	MinPoints int
}

type Engine struct {
	cfg     Config
	current atomic.Pointer[models.CorrelationMatrix]
}

func NewEngine(cfg Config) *Engine {
	if cfg.Window < 2 {
		cfg.Window = 100
	}
	if cfg.MinPoints < 2 {
		cfg.MinPoints = 20
	}
	if cfg.MinPoints > cfg.Window {
		cfg.MinPoints = cfg.Window
	}
	if !models.IsValidTimeframe(cfg.Timeframe) {
		cfg.Timeframe = models.DefaultTimeframe()
	}
	return &Engine{cfg: cfg}
}

// Recompute rebuilds the whole matrix from sealed bars and swaps it in atomically.
func (e *Engine) Recompute(src BarSource) *models.CorrelationMatrix {
	symbols := src.Symbols()
	m := &models.CorrelationMatrix{
		Symbols:   symbols,
		Values:    make(map[string]map[string]float64, len(symbols)),
		Valid:     make(map[string]bool, len(symbols)),
		Window:    e.cfg.Window,
		UpdatedAt: time.Now().UTC(),
	}

	history := make(map[string][]models.Bar, len(symbols))
	for _, s := range symbols {
		m.Values[s] = make(map[string]float64, len(symbols))
		m.Values[s][s] = 1
		bars, err := src.Bars(s, e.cfg.Timeframe, e.cfg.Window, false)
		if err != nil || len(bars) < e.cfg.MinPoints {
			continue
		}
		_, closes := features.Closes(bars)
		if mathx.IsZeroStd(mathx.Std(closes, 0), mathx.Mean(closes)) {
			continue
		}
		history[s] = bars
		m.Valid[s] = true
	}

	for i, x := range symbols {
		for _, y := range symbols[i+1:] {
			r := 0.0
			if m.Valid[x] && m.Valid[y] {
				_, a, b := features.AlignCloses(history[x], history[y])
				if len(a) >= e.cfg.MinPoints {
					if v, ok := mathx.Pearson(a, b); ok {
						r = v
					}
				}
			}
			m.Values[x][y] = r
			m.Values[y][x] = r
		}
	}

	e.current.Store(m)
	return m
}

// Current returns the last computed matrix, or nil before the first recompute.
func (e *Engine) Current() *models.CorrelationMatrix {
	return e.current.Load()
}
