package correlation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"PairPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource map[string][]models.Bar

func (f fakeSource) Symbols() []string {
	return []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
}

func (f fakeSource) Bars(symbol string, _ models.Timeframe, n int, _ bool) ([]models.Bar, error) {
	bars := f[symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

func series(start time.Time, closes []float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{OpenTime: start.Add(time.Duration(i) * time.Minute), Close: c}
	}
	return out
}

func TestRecomputeIsSymmetricWithUnitDiagonal(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 150
	base := make([]float64, n)
	noisy := make([]float64, n)
	inverse := make([]float64, n)
	flat := make([]float64, n)
	p := 100.0
	for i := 0; i < n; i++ {
		p += rng.NormFloat64()
		base[i] = p
		noisy[i] = 3*p + 5*rng.NormFloat64()
		inverse[i] = 500 - p
		flat[i] = 42
	}
	src := fakeSource{
		"AAA": series(start, base),
		"BBB": series(start, noisy),
		"CCC": series(start, inverse),
		"DDD": series(start, flat),
		"EEE": series(start, base[:5]),
	}

	eng := NewEngine(Config{Timeframe: models.TF1m, Window: 100, MinPoints: 20})
	assert.Nil(t, eng.Current())
	m := eng.Recompute(src)
	require.Same(t, m, eng.Current())

	for _, x := range m.Symbols {
		assert.Equal(t, 1.0, m.Values[x][x], x)
		for _, y := range m.Symbols {
			v := m.Values[x][y]
			assert.False(t, math.IsNaN(v))
			assert.Equal(t, v, m.Values[y][x], "%s/%s", x, y)
			assert.LessOrEqual(t, math.Abs(v), 1.0)
		}
	}

	assert.InDelta(t, -1.0, m.Get("AAA", "CCC"), 1e-9)
	assert.Greater(t, m.Get("AAA", "BBB"), 0.5)

	assert.False(t, m.Valid["DDD"])
	assert.False(t, m.Valid["EEE"])
	assert.True(t, m.Valid["AAA"])
	assert.Zero(t, m.Get("AAA", "DDD"))
	assert.Zero(t, m.Get("EEE", "BBB"))
}

func TestRecomputeAlignsOnOpenTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	up := make([]float64, 40)
	for i := range up {
		up[i] = float64(i + 1)
	}
	// BBB is shifted by 30 minutes so only 10 bars overlap
	src := fakeSource{
		"AAA": series(start, up),
		"BBB": series(start.Add(30*time.Minute), up),
	}
	m := NewEngine(Config{Timeframe: models.TF1m, Window: 100, MinPoints: 20}).Recompute(src)
	assert.True(t, m.Valid["AAA"])
	assert.True(t, m.Valid["BBB"])
	assert.Zero(t, m.Get("AAA", "BBB"))
}
