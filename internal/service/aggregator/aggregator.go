// Package aggregator turns validated ticks into per-symbol OHLCV bars.
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	applogger "PairPulse/pkg/logger"
)

// Config controls the symbol universe and bar retention.
type Config struct {
	Symbols      []string
	Timeframes   []models.Timeframe
	HistorySize  int
	VolumeWindow time.Duration
}

type symbolState struct {
	mu      sync.RWMutex
	price   float64
	lastTS  time.Time
	open    map[models.Timeframe]*models.Bar
	history map[models.Timeframe]*barRing
	volume  volumeWindow
}

// Aggregator is the explicit registry of symbol state. The symbol set is fixed at construction.
type Aggregator struct {
	tfs        []models.Timeframe
	finest     models.Timeframe
	symbols    map[string]*symbolState
	order      []string
	lastUpdate atomic.Int64
	metrics    drepo.Metrics
	log        *applogger.Logger
}

// New builds an aggregator for cfg.Symbols.
func New(cfg Config, metrics drepo.Metrics, log *applogger.Logger) (*Aggregator, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("aggregator: no symbols configured")
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = models.AllTimeframes
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = 24 * time.Hour
	}

	tfs := make([]models.Timeframe, 0, len(cfg.Timeframes))
	seen := map[models.Timeframe]bool{}
	for _, tf := range cfg.Timeframes {
		if !models.IsValidTimeframe(tf) {
			return nil, fmt.Errorf("aggregator: unsupported timeframe %q", tf)
		}
		if !seen[tf] {
			seen[tf] = true
			tfs = append(tfs, tf)
		}
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Duration() < tfs[j].Duration() })

	a := &Aggregator{
		tfs:     tfs,
		finest:  tfs[0],
		symbols: make(map[string]*symbolState, len(cfg.Symbols)),
		metrics: metrics,
		log:     log.With("aggregator"),
	}
	for _, s := range cfg.Symbols {
		if _, dup := a.symbols[s]; dup {
			continue
		}
		st := &symbolState{
			open:    make(map[models.Timeframe]*models.Bar, len(tfs)),
			history: make(map[models.Timeframe]*barRing, len(tfs)),
			volume:  volumeWindow{width: cfg.VolumeWindow},
		}
		for _, tf := range tfs {
			st.history[tf] = newBarRing(cfg.HistorySize)
		}
		a.symbols[s] = st
		a.order = append(a.order, s)
	}
	return a, nil
}

// Ingest applies one tick. Invalid ticks are rejected without mutating state.
func (a *Aggregator) Ingest(t models.Tick) error {
	st, ok := a.symbols[t.Symbol]
	if !ok {
		return a.reject(t, "unknown_symbol", "symbol is not configured")
	}
	switch {
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || math.IsNaN(t.Size) || math.IsInf(t.Size, 0):
		return a.reject(t, "non_finite", "price and size must be finite")
	case t.Price <= 0:
		return a.reject(t, "non_positive_price", fmt.Sprintf("price %v must be positive", t.Price))
	case t.Size < 0:
		return a.reject(t, "negative_size", fmt.Sprintf("size %v must not be negative", t.Size))
	case t.Timestamp.IsZero():
		return a.reject(t, "zero_timestamp", "timestamp is required")
	}

	st.mu.Lock()
	if t.Timestamp.Before(st.lastTS) {
		last := st.lastTS
		st.mu.Unlock()
		return a.reject(t, "out_of_order", fmt.Sprintf("timestamp %s precedes last %s",
			t.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano)))
	}

	for _, tf := range a.tfs {
		bucket := t.Timestamp.Truncate(tf.Duration())
		bar := st.open[tf]
		if bar != nil && bucket.After(bar.OpenTime) {
			a.seal(st, tf, *bar)
			bar = nil
		}
		if bar == nil {
			st.open[tf] = &models.Bar{
				Symbol:    t.Symbol,
				Timeframe: tf,
				OpenTime:  bucket,
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Close:     t.Price,
				Volume:    t.Size,
				Notional:  t.Price * t.Size,
				VWAP:      t.Price,
			}
			continue
		}
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Close = t.Price
		bar.Volume += t.Size
		bar.Notional += t.Price * t.Size
		if bar.Volume > 0 {
			bar.VWAP = bar.Notional / bar.Volume
		} else {
			bar.VWAP = bar.Close
		}
	}
	st.price = t.Price
	st.lastTS = t.Timestamp
	st.volume.evict(t.Timestamp)
	st.mu.Unlock()

	a.lastUpdate.Store(time.Now().UnixNano())
	a.metrics.RecordTick(t.Symbol)
	a.metrics.RecordLastPrice(t.Symbol, t.Price)
	return nil
}

func (a *Aggregator) seal(st *symbolState, tf models.Timeframe, bar models.Bar) {
	st.history[tf].push(bar)
	if tf == a.finest {
		st.volume.add(bar.OpenTime, bar.Volume)
	}
}

func (a *Aggregator) reject(t models.Tick, reason, detail string) error {
	a.metrics.RecordInvalidTick(reason)
	a.log.Warn("tick rejected",
		applogger.String("symbol", t.Symbol),
		applogger.String("reason", reason),
		applogger.Float64("price", t.Price),
		applogger.Float64("size", t.Size),
	)
	return errs.InvalidTick(t.Symbol, detail)
}

// Seed loads historical bars for warm start. Bars at or after the open bar are
// ignored. Ticks before the end of the newest seeded bar are rejected afterwards.
func (a *Aggregator) Seed(symbol string, tf models.Timeframe, bars []models.Bar) (int, error) {
	st, ok := a.symbols[symbol]
	if !ok {
		return 0, errs.NotFound("seed", "unknown symbol "+symbol)
	}
	ring, ok := st.history[tf]
	if !ok {
		return 0, errs.InvalidRequest("seed", "timeframe "+string(tf)+" is not aggregated")
	}

	sorted := append([]models.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime.Before(sorted[j].OpenTime) })

	st.mu.Lock()
	defer st.mu.Unlock()
	var floor time.Time
	if newest, ok := ring.newest(); ok {
		floor = newest.OpenTime
	}
	n := 0
	for _, b := range sorted {
		if b.Close <= 0 || !b.OpenTime.After(floor) {
			continue
		}
		if open := st.open[tf]; open != nil && !b.OpenTime.Before(open.OpenTime) {
			break
		}
		b.Symbol = symbol
		b.Timeframe = tf
		if b.VWAP == 0 {
			b.VWAP = b.Close
		}
		a.seal(st, tf, b)
		floor = b.OpenTime
		n++
	}
	if n > 0 {
		last, _ := ring.newest()
		if st.price == 0 {
			st.price = last.Close
		}
		// live ticks may not reopen a bucket the history already covers
		if end := last.OpenTime.Add(tf.Duration()); end.After(st.lastTS) {
			st.lastTS = end
		}
	}
	return n, nil
}

// Bars returns up to n recent bars in chronological order, optionally with the open bar last.
func (a *Aggregator) Bars(symbol string, tf models.Timeframe, n int, includeOpen bool) ([]models.Bar, error) {
	st, ok := a.symbols[symbol]
	if !ok {
		return nil, errs.NotFound("bars", "unknown symbol "+symbol)
	}
	ring, ok := st.history[tf]
	if !ok {
		return nil, errs.InvalidRequest("bars", "timeframe "+string(tf)+" is not aggregated")
	}

	st.mu.RLock()
	defer st.mu.RUnlock()
	open := st.open[tf]
	if includeOpen && open != nil {
		if n <= 0 {
			return append(ring.last(0), *open), nil
		}
		if n == 1 {
			return []models.Bar{*open}, nil
		}
		return append(ring.last(n-1), *open), nil
	}
	return ring.last(n), nil
}

// Price returns the last traded price of symbol.
func (a *Aggregator) Price(symbol string) (float64, bool) {
	st, ok := a.symbols[symbol]
	if !ok {
		return 0, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.price, st.price > 0
}

// RollingVolume returns Σ size over the trailing volume window, including the open finest bar.
func (a *Aggregator) RollingVolume(symbol string) float64 {
	st, ok := a.symbols[symbol]
	if !ok {
		return 0
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return a.rollingVolumeLocked(st)
}

func (a *Aggregator) rollingVolumeLocked(st *symbolState) float64 {
	v := st.volume.sum
	if open := st.open[a.finest]; open != nil {
		v += open.Volume
	}
	return v
}

// Snapshot copies prices, rolling volumes, the last n bars on tf and last update times.
// n <= 0 omits bars.
func (a *Aggregator) Snapshot(tf models.Timeframe, n int) models.MarketSnapshot {
	snap := models.MarketSnapshot{
		Timestamp:  time.Now().UTC(),
		Prices:     make(map[string]float64, len(a.order)),
		Volumes:    make(map[string]float64, len(a.order)),
		LastUpdate: make(map[string]time.Time, len(a.order)),
	}
	if n > 0 {
		snap.OHLC = make(map[string][]models.Bar, len(a.order))
	}
	for _, sym := range a.order {
		st := a.symbols[sym]
		st.mu.RLock()
		if st.price > 0 {
			snap.Prices[sym] = st.price
			snap.Volumes[sym] = a.rollingVolumeLocked(st)
		}
		if !st.lastTS.IsZero() {
			snap.LastUpdate[sym] = st.lastTS
		}
		if n > 0 {
			if ring, ok := st.history[tf]; ok {
				bars := ring.last(n)
				if open := st.open[tf]; open != nil {
					if len(bars) == n {
						bars = bars[1:]
					}
					bars = append(bars, *open)
				}
				if len(bars) > 0 {
					snap.OHLC[sym] = bars
				}
			}
		}
		st.mu.RUnlock()
	}
	return snap
}

// Symbols returns the configured universe in configuration order.
func (a *Aggregator) Symbols() []string {
	return append([]string(nil), a.order...)
}

// HasSymbol reports whether symbol is part of the universe.
func (a *Aggregator) HasSymbol(symbol string) bool {
	_, ok := a.symbols[symbol]
	return ok
}

// Timeframes returns the aggregated timeframes, finest first.
func (a *Aggregator) Timeframes() []models.Timeframe {
	return append([]models.Timeframe(nil), a.tfs...)
}

// HasTimeframe reports whether tf is aggregated.
func (a *Aggregator) HasTimeframe(tf models.Timeframe) bool {
	for _, t := range a.tfs {
		if t == tf {
			return true
		}
	}
	return false
}

// BarCounts returns the number of sealed bars per symbol on tf.
func (a *Aggregator) BarCounts(tf models.Timeframe) map[string]int {
	out := make(map[string]int, len(a.order))
	for _, sym := range a.order {
		st := a.symbols[sym]
		st.mu.RLock()
		if ring, ok := st.history[tf]; ok {
			out[sym] = ring.len()
		}
		st.mu.RUnlock()
	}
	return out
}

// LastUpdate is the wall-clock time of the last accepted tick (zero if none).
func (a *Aggregator) LastUpdate() time.Time {
	ns := a.lastUpdate.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
