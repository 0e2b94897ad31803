package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestFileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.With("aggregator").Warn("tick rejected",
		String("symbol", "BTCUSDT"),
		Float64("price", -1),
		Error(errors.New("price must be positive")),
	)
	l.Debug("filtered out")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"component":"aggregator"`)
	assert.Contains(t, out, `"symbol":"BTCUSDT"`)
	assert.Contains(t, out, `"error":"price must be positive"`)
	assert.False(t, strings.Contains(out, "filtered out"))
}

func TestFieldKeyValues(t *testing.T) {
	k, v := Duration("took", 1500*1e6).GetKeyValue()
	assert.Equal(t, "took", k)
	assert.Equal(t, 1500, v)

	k, v = Strings("symbols", []string{"A", "B"}).GetKeyValue()
	assert.Equal(t, "symbols", k)
	assert.Equal(t, "A, B", v)
}

func TestNopDoesNotPanic(t *testing.T) {
	var l *Logger
	l.With("x").Info("ignored")
	Nop().Error("ignored", Error(nil))
}
