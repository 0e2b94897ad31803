package aggregator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newAgg(t *testing.T, history int) *Aggregator {
	t.Helper()
	a, err := New(Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT"},
		Timeframes:   []models.Timeframe{models.TF1m, models.TF1s},
		HistorySize:  history,
		VolumeWindow: time.Hour,
	}, metrics.Nop{}, logger.Nop())
	require.NoError(t, err)
	return a
}

func tick(sym string, at time.Time, price, size float64) models.Tick {
	return models.Tick{Symbol: sym, Timestamp: at, Price: price, Size: size}
}

func TestIngestBuildsOpenBar(t *testing.T) {
	a := newAgg(t, 10)
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(1*time.Second), 100, 1)))
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(10*time.Second), 110, 3)))
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(20*time.Second), 95, 0)))

	bars, err := a.Bars("BTCUSDT", models.TF1m, 5, true)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	b := bars[0]
	assert.Equal(t, t0, b.OpenTime)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 110.0, b.High)
	assert.Equal(t, 95.0, b.Low)
	assert.Equal(t, 95.0, b.Close)
	assert.Equal(t, 4.0, b.Volume)
	assert.InDelta(t, (100*1+110*3)/4.0, b.VWAP, 1e-12)

	sealed, err := a.Bars("BTCUSDT", models.TF1m, 5, false)
	require.NoError(t, err)
	assert.Empty(t, sealed)
}

func TestVWAPEqualsCloseWithoutVolume(t *testing.T) {
	a := newAgg(t, 10)
	require.NoError(t, a.Ingest(tick("ETHUSDT", t0, 10, 0)))
	require.NoError(t, a.Ingest(tick("ETHUSDT", t0.Add(time.Second/2), 12, 0)))
	bars, err := a.Bars("ETHUSDT", models.TF1m, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 12.0, bars[0].VWAP)
}

func TestBucketCrossingSealsWithoutSynthesizingGaps(t *testing.T) {
	a := newAgg(t, 10)
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(5*time.Second), 100, 1)))
	// three minutes later: exactly one sealed bar, no empty fillers
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(3*time.Minute+7*time.Second), 105, 2)))

	sealed, err := a.Bars("BTCUSDT", models.TF1m, 0, false)
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, t0, sealed[0].OpenTime)

	all, err := a.Bars("BTCUSDT", models.TF1m, 0, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, t0.Add(3*time.Minute), all[1].OpenTime)
	assert.Equal(t, 105.0, all[1].Open)
}

func TestHistoryEvictsOldest(t *testing.T) {
	a := newAgg(t, 3)
	for i := 0; i < 6; i++ {
		require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(time.Duration(i)*time.Minute), float64(100+i), 1)))
	}
	sealed, err := a.Bars("BTCUSDT", models.TF1m, 0, false)
	require.NoError(t, err)
	require.Len(t, sealed, 3)
	assert.Equal(t, 102.0, sealed[0].Close)
	assert.Equal(t, 104.0, sealed[2].Close)

	last2, err := a.Bars("BTCUSDT", models.TF1m, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{103, 104}, []float64{last2[0].Close, last2[1].Close})
}

func TestInvalidTicksAreRejected(t *testing.T) {
	a := newAgg(t, 10)
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(time.Minute), 100, 1)))

	bad := []models.Tick{
		tick("DOGEUSDT", t0, 1, 1),
		tick("BTCUSDT", t0.Add(2*time.Minute), 0, 1),
		tick("BTCUSDT", t0.Add(2*time.Minute), -5, 1),
		tick("BTCUSDT", t0.Add(2*time.Minute), 100, -1),
		tick("BTCUSDT", time.Time{}, 100, 1),
		tick("BTCUSDT", t0, 100, 1), // older than last seen
	}
	for _, b := range bad {
		err := a.Ingest(b)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidTick), err.Error())
	}

	price, ok := a.Price("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 100.0, price)
	bars, _ := a.Bars("BTCUSDT", models.TF1m, 0, true)
	assert.Len(t, bars, 1)
}

func TestEqualTimestampsAccepted(t *testing.T) {
	a := newAgg(t, 10)
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0, 100, 1)))
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0, 101, 1)))
}

func TestRollingVolumeUsesFinestTimeframe(t *testing.T) {
	a := newAgg(t, 5)
	for i := 0; i < 10; i++ {
		require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(time.Duration(i)*time.Second), 100, 1)))
	}
	// history of 5 does not cap the rolling volume
	assert.Equal(t, 10.0, a.RollingVolume("BTCUSDT"))

	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(2*time.Hour), 100, 2)))
	assert.Equal(t, 2.0, a.RollingVolume("BTCUSDT"))
}

func TestSeedAndSnapshot(t *testing.T) {
	a := newAgg(t, 10)
	hist := []models.Bar{
		{OpenTime: t0.Add(-2 * time.Minute), Open: 1, High: 1, Low: 1, Close: 98, Volume: 1},
		{OpenTime: t0.Add(-3 * time.Minute), Open: 1, High: 1, Low: 1, Close: 97, Volume: 1},
		{OpenTime: t0.Add(-1 * time.Minute), Open: 1, High: 1, Low: 1, Close: 99, Volume: 1},
	}
	n, err := a.Seed("BTCUSDT", models.TF1m, hist)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	price, ok := a.Price("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 99.0, price)

	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(time.Second), 100, 1)))
	snap := a.Snapshot(models.TF1m, 3)
	require.Len(t, snap.OHLC["BTCUSDT"], 3)
	assert.Equal(t, 98.0, snap.OHLC["BTCUSDT"][0].Close)
	assert.Equal(t, 100.0, snap.OHLC["BTCUSDT"][2].Close)
	assert.Equal(t, 100.0, snap.Prices["BTCUSDT"])
	_, hasEth := snap.Prices["ETHUSDT"]
	assert.False(t, hasEth)

	// re-seeding the same bars is a no-op
	n, err = a.Seed("BTCUSDT", models.TF1m, hist)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = a.Seed("XRPUSDT", models.TF1m, hist)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	_, err = a.Seed("BTCUSDT", models.TF5m, hist)
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))
}

func TestSeedRejectsTicksInsideSeededHistory(t *testing.T) {
	a := newAgg(t, 10)
	hist := []models.Bar{
		{OpenTime: t0.Add(-2 * time.Minute), Open: 1, High: 1, Low: 1, Close: 98, Volume: 1},
		{OpenTime: t0.Add(-1 * time.Minute), Open: 1, High: 1, Low: 1, Close: 99, Volume: 1},
	}
	_, err := a.Seed("BTCUSDT", models.TF1m, hist)
	require.NoError(t, err)

	err = a.Ingest(tick("BTCUSDT", t0.Add(-30*time.Second), 100, 1))
	assert.True(t, errors.Is(err, errs.ErrInvalidTick))
	err = a.Ingest(tick("BTCUSDT", t0.Add(-90*time.Second), 100, 1))
	assert.True(t, errors.Is(err, errs.ErrInvalidTick))

	require.NoError(t, a.Ingest(tick("BTCUSDT", t0, 101, 1)))
	require.NoError(t, a.Ingest(tick("BTCUSDT", t0.Add(time.Minute), 102, 1)))

	bars, err := a.Bars("BTCUSDT", models.TF1m, 0, true)
	require.NoError(t, err)
	require.Len(t, bars, 4)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].OpenTime.After(bars[i-1].OpenTime), "open times strictly increase")
	}
}

func TestConcurrentIngestAcrossSymbols(t *testing.T) {
	a := newAgg(t, 100)
	var wg sync.WaitGroup
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = a.Ingest(tick(sym, t0.Add(time.Duration(i)*100*time.Millisecond), 10+float64(i%7), 1))
				_ = a.Snapshot(models.TF1s, 5)
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		bars, err := a.Bars(sym, models.TF1s, 0, true)
		require.NoError(t, err)
		var vol float64
		for _, b := range bars {
			vol += b.Volume
		}
		assert.Equal(t, 500.0, vol)
	}
	assert.False(t, a.LastUpdate().IsZero())
}
