package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/repository"
	"PairPulse/internal/services/alerts"
	"PairPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlertRules(t *testing.T) (*AlertRulesUseCase, *repository.MemoryAlertStore, *alerts.Evaluator) {
	t.Helper()
	store := repository.NewMemoryAlertStore()
	ev := alerts.NewEvaluator()
	uc := NewAlertRulesUseCase(store, ev, newAggregator(t, "BTCUSDT", "ETHUSDT"), logger.Nop())
	ids := []string{"r1", "r2", "r3"}
	uc.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	clock := epoch
	uc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return uc, store, ev
}

func TestCreateAlertRule(t *testing.T) {
	uc, store, _ := newAlertRules(t)
	ctx := context.Background()

	rule, err := uc.Create(ctx, CreateAlertParams{
		Name: "wide", Metric: "zscore", Operator: ">", Threshold: 2, SymbolPair: "btcusdt-ethusdt",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", rule.ID)
	assert.Equal(t, "BTCUSDT/ETHUSDT", rule.SymbolPair)
	assert.True(t, rule.Enabled)

	stored, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rule, stored)

	off := false
	_, err = uc.Create(ctx, CreateAlertParams{Name: "px", Metric: "price", Operator: "<", Threshold: 10, SymbolPair: "ETHUSDT", Enabled: &off})
	require.NoError(t, err)

	list := uc.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "r1", list[0].ID)
	assert.False(t, list[1].Enabled)
}

func TestCreateAlertRuleRejectsInvalid(t *testing.T) {
	uc, store, _ := newAlertRules(t)
	ctx := context.Background()

	cases := []CreateAlertParams{
		{Name: "x", Metric: "volume", Operator: ">", SymbolPair: "BTCUSDT/ETHUSDT"},
		{Name: "x", Metric: "zscore", Operator: "!=", SymbolPair: "BTCUSDT/ETHUSDT"},
		{Name: "x", Metric: "zscore", Operator: ">", SymbolPair: "BTCUSDT"},
		{Name: "x", Metric: "price", Operator: ">", SymbolPair: "DOGEUSDT"},
	}
	for _, c := range cases {
		_, err := uc.Create(ctx, c)
		assert.True(t, errors.Is(err, errs.ErrInvalidRequest), "%+v: %v", c, err)
	}
	rules, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestToggleAndDeleteAlertRule(t *testing.T) {
	uc, store, _ := newAlertRules(t)
	ctx := context.Background()
	_, err := uc.Create(ctx, CreateAlertParams{Name: "px", Metric: "price", Operator: ">", Threshold: 1, SymbolPair: "BTCUSDT"})
	require.NoError(t, err)

	rule, err := uc.SetEnabled(ctx, "r1", false)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)
	stored, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	_, err = uc.SetEnabled(ctx, "missing", true)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	require.NoError(t, uc.Delete(ctx, "r1"))
	assert.Empty(t, uc.List(ctx))
	assert.True(t, errors.Is(uc.Delete(ctx, "r1"), errs.ErrNotFound))
}

func TestLoadSkipsBrokenRules(t *testing.T) {
	uc, store, ev := newAlertRules(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, models.AlertRule{ID: "ok", Name: "a", Metric: "price", Operator: ">", SymbolPair: "BTCUSDT", Enabled: true}))
	require.NoError(t, store.Save(ctx, models.AlertRule{ID: "bad", Name: "b", Metric: "nope", Operator: ">", SymbolPair: "BTCUSDT"}))

	n, err := uc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, ev.Rules(), 1)
	assert.Equal(t, "ok", ev.Rules()[0].Source.ID)
}
