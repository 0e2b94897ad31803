package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/alerts"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCycle(t *testing.T, tracked []PairQuery) (*RecomputeCycle, *alerts.Evaluator, *recordingHub, *recordingPublisher) {
	t.Helper()
	agg := newAggregator(t, "AAA", "BBB")
	a, b := cointegrated(21, 80)
	seedCloses(t, agg, "AAA", epoch, a)
	seedCloses(t, agg, "BBB", epoch, b)
	uc, corr := newAnalytics(agg)
	ev := alerts.NewEvaluator()
	hub := &recordingHub{}
	pub := &recordingPublisher{}
	c := NewRecomputeCycle(agg, uc, corr, ev, hub, pub, metrics.Nop{}, RecomputeConfig{
		Interval:     10 * time.Millisecond,
		Timeframe:    models.TF1m,
		OHLCBars:     5,
		TrackedPairs: tracked,
	}, logger.Nop())
	return c, ev, hub, pub
}

func TestRunOnceBroadcastsUpdate(t *testing.T) {
	c, _, hub, _ := newCycle(t, []PairQuery{{SymbolA: "AAA", SymbolB: "BBB"}})

	events := c.RunOnce(context.Background())
	assert.Empty(t, events)
	require.Equal(t, []string{models.MessageUpdate}, hub.kinds())

	msg, ok := hub.msgs[0].(models.UpdateMessage)
	require.True(t, ok)
	assert.Equal(t, models.MessageUpdate, msg.Type)
	assert.Len(t, msg.OHLC["AAA"], 5)
	assert.Contains(t, msg.Prices, "BBB")
	require.Contains(t, msg.Analytics, "AAA/BBB")
	assert.InDelta(t, 1.5, msg.Analytics["AAA/BBB"].HedgeRatio, 0.1)
	assert.NotNil(t, c.corr.Current())
}

func TestRunOnceFiresAlertsOncePerCrossing(t *testing.T) {
	c, ev, hub, pub := newCycle(t, nil)
	_, err := ev.Put(models.AlertRule{ID: "px", Name: "price up", Metric: "price", Operator: ">", Threshold: 1, SymbolPair: "AAA", Enabled: true})
	require.NoError(t, err)
	_, err = ev.Put(models.AlertRule{ID: "corr", Name: "corr", Metric: "correlation", Operator: ">=", Threshold: 0.5, SymbolPair: "AAA/BBB", Enabled: true})
	require.NoError(t, err)
	_, err = ev.Put(models.AlertRule{ID: "z", Name: "z", Metric: "zscore", Operator: "<", Threshold: 100, SymbolPair: "AAA/BBB", Enabled: true})
	require.NoError(t, err)

	ctx := context.Background()
	first := c.RunOnce(ctx)
	require.Len(t, first, 3)
	assert.Equal(t, "corr", first[0].RuleID)
	assert.Equal(t, "correlation", first[0].Metric)
	assert.Equal(t, "px", first[1].RuleID)
	assert.Equal(t, "z", first[2].RuleID)
	assert.Len(t, pub.events, 3)

	assert.Empty(t, c.RunOnce(ctx))
	assert.Equal(t, []string{
		models.MessageUpdate, models.MessageAlert, models.MessageAlert, models.MessageAlert,
		models.MessageUpdate,
	}, hub.kinds())

	alert, ok := hub.msgs[1].(models.AlertMessage)
	require.True(t, ok)
	assert.Equal(t, models.MessageAlert, alert.Type)
	assert.Equal(t, "corr", alert.RuleID)
}

func TestRunOncePublishFailureDoesNotStopBroadcast(t *testing.T) {
	c, ev, hub, pub := newCycle(t, nil)
	pub.err = errors.New("broker down")
	_, err := ev.Put(models.AlertRule{ID: "px", Name: "p", Metric: "price", Operator: ">", Threshold: 1, SymbolPair: "AAA", Enabled: true})
	require.NoError(t, err)

	require.Len(t, c.RunOnce(context.Background()), 1)
	assert.Equal(t, []string{models.MessageUpdate, models.MessageAlert}, hub.kinds())
}

func TestPairsIncludeRuleReferencedPairs(t *testing.T) {
	c, ev, _, _ := newCycle(t, []PairQuery{{SymbolA: "AAA", SymbolB: "BBB"}})
	_, err := ev.Put(models.AlertRule{ID: "1", Metric: "spread", Operator: ">", SymbolPair: "BBB/AAA", Enabled: true})
	require.NoError(t, err)
	_, err = ev.Put(models.AlertRule{ID: "2", Metric: "zscore", Operator: ">", SymbolPair: "AAA/BBB", Enabled: true})
	require.NoError(t, err)
	_, err = ev.Put(models.AlertRule{ID: "3", Metric: "zscore", Operator: ">", SymbolPair: "BBB/AAA", Enabled: false})
	require.NoError(t, err)

	pairs := c.pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "AAA", pairs[0].SymbolA)
	assert.Equal(t, "BBB", pairs[1].SymbolA)
}

func TestCycleStartStop(t *testing.T) {
	c, _, hub, _ := newCycle(t, nil)
	c.Start(context.Background())
	require.Eventually(t, func() bool { return len(hub.kinds()) >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	n := len(hub.kinds())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, len(hub.kinds()))

	first := NewInitialState(c.agg, models.TF1m, 5).Build()
	assert.Equal(t, models.MessageInitial, first.Type)
	assert.Len(t, first.OHLC["AAA"], 5)
	assert.Contains(t, first.Prices, "AAA")
}
