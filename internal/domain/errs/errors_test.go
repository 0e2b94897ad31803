package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("compute: %w", InsufficientData("regression", "ols", 5, 20))

	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.False(t, errors.Is(err, ErrSingularInput))
	assert.Equal(t, KindInsufficientData, KindOf(err))
}

func TestErrorMessageCarriesContext(t *testing.T) {
	e := &Error{Kind: KindSingularInput, Op: "regression", Method: "ols", Pair: "BTCUSDT/ETHUSDT", N: 30,
		StatsB: &Stats{N: 30, Mean: 10}}

	msg := e.Error()
	assert.Contains(t, msg, "SingularInput")
	assert.Contains(t, msg, "method=ols")
	assert.Contains(t, msg, "pair=BTCUSDT/ETHUSDT")
	assert.Contains(t, msg, "n=30")

	p := e.Params()
	assert.Equal(t, "ols", p["method"])
	assert.NotNil(t, p["stats_b"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
