package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	xhttp "PairPulse/pkg/http"
)

// maxKlines is the largest limit the klines endpoint accepts.
const maxKlines = 1000

// KlineSource loads recent sealed bars from the REST klines endpoint.
type KlineSource struct {
	client  *xhttp.Client
	baseURL string
	now     func() time.Time
}

var _ drepo.BarSource = (*KlineSource)(nil)

func NewKlineSource(client *xhttp.Client, baseURL string) *KlineSource {
	return &KlineSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// LoadBars returns up to limit sealed bars, oldest first. The still-open
// kline Binance appends at the end is dropped.
func (k *KlineSource) LoadBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	if !models.IsValidTimeframe(tf) {
		return nil, errs.InvalidRequest("binance.klines", "unsupported timeframe "+string(tf))
	}
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxKlines-1 {
		limit = maxKlines - 1
	}
	symbol = strings.ToUpper(symbol)

	var raw [][]json.RawMessage
	err := k.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    k.baseURL + "/klines",
		QueryParams: map[string][]string{
			"symbol":   {symbol},
			"interval": {string(tf)},
			"limit":    {strconv.Itoa(limit + 1)},
		},
	}, &raw)
	if err != nil {
		return nil, &errs.Error{Kind: errs.KindUpstreamUnavailable, Op: "binance.klines", Symbol: symbol, Wrapped: err}
	}

	now := k.now()
	bars := make([]models.Bar, 0, len(raw))
	for i, row := range raw {
		bar, closeTime, err := parseKline(symbol, tf, row)
		if err != nil {
			return nil, fmt.Errorf("kline %d for %s: %w", i, symbol, err)
		}
		if closeTime.After(now) {
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, closeTime, quoteVolume, ...].
func parseKline(symbol string, tf models.Timeframe, row []json.RawMessage) (models.Bar, time.Time, error) {
	if len(row) < 8 {
		return models.Bar{}, time.Time{}, fmt.Errorf("short row: %d fields", len(row))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return models.Bar{}, time.Time{}, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return models.Bar{}, time.Time{}, fmt.Errorf("close time: %w", err)
	}
	nums := make([]float64, 0, 6)
	for _, idx := range []int{1, 2, 3, 4, 5, 7} {
		var s string
		if err := json.Unmarshal(row[idx], &s); err != nil {
			return models.Bar{}, time.Time{}, fmt.Errorf("field %d: %w", idx, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, time.Time{}, fmt.Errorf("field %d: %w", idx, err)
		}
		nums = append(nums, v)
	}
	bar := models.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		OpenTime:  time.UnixMilli(openMs).UTC(),
		Open:      nums[0],
		High:      nums[1],
		Low:       nums[2],
		Close:     nums[3],
		Volume:    nums[4],
		Notional:  nums[5],
	}
	bar.VWAP = bar.Close
	if bar.Volume > 0 {
		bar.VWAP = bar.Notional / bar.Volume
	}
	return bar, time.UnixMilli(closeMs).UTC(), nil
}
