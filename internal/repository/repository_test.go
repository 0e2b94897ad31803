package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id string, at time.Time) models.AlertRule {
	return models.AlertRule{
		ID:         id,
		Name:       "rule " + id,
		Metric:     "zscore",
		Operator:   ">",
		Threshold:  2,
		SymbolPair: "BTCUSDT/ETHUSDT",
		Enabled:    true,
		CreatedAt:  at,
	}
}

func exerciseStore(t *testing.T, s domrepo.AlertRuleStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, rule("b", base.Add(time.Second))))
	require.NoError(t, s.Save(ctx, rule("a", base)))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	r := list[1]
	r.Enabled = false
	require.NoError(t, s.Save(ctx, r))
	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Second)))

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), errs.ErrNotFound)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryAlertStore(t *testing.T) {
	exerciseStore(t, NewMemoryAlertStore())
}

func TestRedisAlertStore(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(context.Background(), cache.WithRedisAddr(mr.Addr()), cache.WithRedisPrefix("pp"))
	require.NoError(t, err)
	defer c.Close()

	exerciseStore(t, NewRedisAlertStore(c))
	assert.True(t, mr.Exists("pp:"+alertRulesKey))
}

type fakePublisher struct {
	topic string
	key   string
	value []byte
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	f.topic, f.key = topic, string(key)
	b, err := json.Marshal(value)
	f.value = b
	return err
}

func (f *fakePublisher) Close() error { return nil }

func TestKafkaAlertPublisherKeysByRule(t *testing.T) {
	fp := &fakePublisher{}
	k := &KafkaAlertPublisher{p: fp, topic: "pairpulse.alerts"}
	require.NoError(t, k.PublishAlert(context.Background(), models.AlertEvent{RuleID: "r1", Value: 2.5}))
	assert.Equal(t, "pairpulse.alerts", fp.topic)
	assert.Equal(t, "r1", fp.key)
	assert.Contains(t, string(fp.value), `"rule_id":"r1"`)
}

type fakeQueue struct {
	types []string
	err   error
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, _ interface{}) error {
	q.types = append(q.types, msgType)
	return q.err
}

func TestMultiAlertPublisherTriesEverySink(t *testing.T) {
	broken := &fakeQueue{err: errors.New("redis down")}
	ok := &fakeQueue{}
	fp := &fakePublisher{}
	m := MultiAlertPublisher{
		NewQueueAlertPublisher(broken),
		&KafkaAlertPublisher{p: fp, topic: "alerts"},
		NewQueueAlertPublisher(ok),
	}

	err := m.PublishAlert(context.Background(), models.AlertEvent{RuleID: "r2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Equal(t, "r2", fp.key)
	assert.Equal(t, []string{AlertMessageType}, ok.types)
	assert.NoError(t, m.Close())
}

func TestLatestBarsQueryRejectsInjection(t *testing.T) {
	q, err := latestBarsQuery("market.bars")
	require.NoError(t, err)
	assert.Contains(t, q, "FROM market.bars")

	_, err = latestBarsQuery("bars; DROP TABLE x")
	assert.Error(t, err)
}
