package usecase

import (
	"context"
	"strings"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/service/aggregator"
)

// ConnectionStatus reports whether the tick source is live.
type ConnectionStatus interface {
	IsConnected() bool
}

// MarketUseCase serves recent bars and feed health from the aggregator.
type MarketUseCase struct {
	agg        *aggregator.Aggregator
	source     ConnectionStatus
	staleAfter time.Duration
	healthTF   models.Timeframe
	now        func() time.Time
}

func NewMarketUseCase(agg *aggregator.Aggregator, source ConnectionStatus, staleAfter time.Duration, healthTF models.Timeframe) *MarketUseCase {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Second
	}
	return &MarketUseCase{agg: agg, source: source, staleAfter: staleAfter, healthTF: healthTF, now: time.Now}
}

type GetBarsParams struct {
	Symbol    string
	Timeframe models.Timeframe
	Limit     int
}

type GetBarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

// GetBars returns up to Limit bars, the open bar last.
func (uc *MarketUseCase) GetBars(_ context.Context, p GetBarsParams) (*GetBarsResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if !uc.agg.HasSymbol(p.Symbol) {
		return nil, errs.NotFound("bars", "unknown symbol "+p.Symbol)
	}
	if !uc.agg.HasTimeframe(p.Timeframe) {
		return nil, errs.InvalidRequest("bars", "timeframe "+string(p.Timeframe)+" is not aggregated")
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}

	bars, err := uc.agg.Bars(p.Symbol, p.Timeframe, p.Limit, true)
	if err != nil {
		return nil, err
	}
	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(bars),
		Bars:      bars,
	}, nil
}

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

type HealthStatus struct {
	Status        string         `json:"status"`
	LastUpdate    *time.Time     `json:"last_update"`
	Stale         bool           `json:"stale"`
	Symbols       []string       `json:"symbols"`
	ActiveSymbols []string       `json:"active_symbols"`
	Bars          map[string]int `json:"bars"`
}

// Health reports feed connectivity and staleness. The service is stale when
// no tick was accepted within staleAfter.
func (uc *MarketUseCase) Health(_ context.Context) HealthStatus {
	h := HealthStatus{
		Status:        StatusDisconnected,
		Stale:         true,
		Symbols:       uc.agg.Symbols(),
		ActiveSymbols: []string{},
		Bars:          uc.agg.BarCounts(uc.healthTF),
	}
	if uc.source != nil && uc.source.IsConnected() {
		h.Status = StatusConnected
	}
	if last := uc.agg.LastUpdate(); !last.IsZero() {
		h.LastUpdate = &last
		h.Stale = uc.now().Sub(last) > uc.staleAfter
	}
	for _, s := range h.Symbols {
		if _, ok := uc.agg.Price(s); ok {
			h.ActiveSymbols = append(h.ActiveSymbols, s)
		}
	}
	return h
}
