package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/service/aggregator"
	applogger "PairPulse/pkg/logger"
)

// Warmer seeds the aggregator history from a read-only bar source so analytics
// are available before enough live bars have sealed.
type Warmer struct {
	src     drepo.BarSource
	agg     *aggregator.Aggregator
	bars    int
	timeout time.Duration
	log     *applogger.Logger
}

func NewWarmer(src drepo.BarSource, agg *aggregator.Aggregator, bars int, timeout time.Duration, log *applogger.Logger) *Warmer {
	if bars <= 0 {
		bars = 100
	}
	return &Warmer{src: src, agg: agg, bars: bars, timeout: timeout, log: log.With("warmup")}
}

// Run loads every (symbol, timeframe) and returns the number of bars seeded.
// Individual failures do not stop the run; they are joined into the error.
func (w *Warmer) Run(ctx context.Context) (int, error) {
	if w.src == nil {
		return 0, nil
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	total := 0
	var errList []error
	for _, sym := range w.agg.Symbols() {
		for _, tf := range w.agg.Timeframes() {
			if ctx.Err() != nil {
				errList = append(errList, ctx.Err())
				return total, errors.Join(errList...)
			}
			n, err := w.seed(ctx, sym, tf)
			if err != nil {
				errList = append(errList, err)
				w.log.Warn("warmup failed",
					applogger.String("symbol", sym),
					applogger.String("timeframe", string(tf)),
					applogger.Error(err),
				)
				continue
			}
			total += n
		}
	}
	w.log.Info("warmup done",
		applogger.Int("bars", total),
		applogger.Duration("took", time.Since(start)),
	)
	return total, errors.Join(errList...)
}

func (w *Warmer) seed(ctx context.Context, symbol string, tf models.Timeframe) (int, error) {
	bars, err := w.src.LoadBars(ctx, symbol, tf, w.bars)
	if err != nil {
		return 0, fmt.Errorf("load %s %s: %w", symbol, tf, err)
	}
	return w.agg.Seed(symbol, tf, bars)
}
