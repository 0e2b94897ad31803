package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	calls atomic.Int32
	err   error
}

func (h *countingHandler) Topic() string { return "ticks" }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls.Add(1)
	return h.err
}

func newTestConsumer(t *testing.T, h MessageHandler) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	c.RegisterHandler(h)
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	h := &countingHandler{err: errors.New("boom")}
	c := newTestConsumer(t, h)

	c.process(&message{topic: "ticks", km: kafka.Message{Value: []byte("x")}})
	assert.Equal(t, int32(3), h.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.handled.WithLabelValues("ticks", "error")))
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	h := &countingHandler{err: &PermanentError{Err: errors.New("bad payload")}}
	c := newTestConsumer(t, h)

	c.process(&message{topic: "ticks", km: kafka.Message{Value: []byte("x")}})
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestProcessSuccess(t *testing.T) {
	h := &countingHandler{}
	c := newTestConsumer(t, h)

	c.process(&message{topic: "ticks", km: kafka.Message{Value: []byte("x")}})
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.handled.WithLabelValues("ticks", "ok")))
}

func TestMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newProducerMetrics(reg)
	b := newProducerMetrics(reg)
	assert.Same(t, a.msgs, b.msgs)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
