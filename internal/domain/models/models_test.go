package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairKeyIsCanonical(t *testing.T) {
	assert.Equal(t, NewPairKey("ethusdt", "BTCUSDT"), NewPairKey("BTCUSDT", "ETHUSDT"))
	assert.Equal(t, "BTCUSDT/ETHUSDT", NewPairKey("ETHUSDT", "btcusdt").String())
}

func TestParseSymbolPair(t *testing.T) {
	a, b, err := ParseSymbolPair("ethusdt/btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", a)
	assert.Equal(t, "BTCUSDT", b)

	a, b, err = ParseSymbolPair("SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", a)
	assert.Empty(t, b)

	_, _, err = ParseSymbolPair("A/A")
	assert.Error(t, err)
	_, _, err = ParseSymbolPair("A/B/C")
	assert.Error(t, err)
}

func TestNullFloatJSON(t *testing.T) {
	b, err := json.Marshal([]NullFloat{{}, Some(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 1.5]`, string(b))

	var out []NullFloat
	require.NoError(t, json.Unmarshal(b, &out))
	assert.False(t, out[0].Valid)
	assert.Equal(t, Some(1.5), out[1])
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, time.Second, TF1s.Duration())
	assert.Equal(t, 5*time.Minute, TF5m.Duration())
	assert.Equal(t, TF1m, NormalizeTimeframe("bogus"))
}
