package streamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PairPulse/internal/broadcast"
	"PairPulse/internal/domain/models"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type
	}
	return out
}

func (c *collector) count(kind string) int {
	n := 0
	for _, t := range c.types() {
		if t == kind {
			n++
		}
	}
	return n
}

func TestClientReceivesHubMessages(t *testing.T) {
	hub := broadcast.NewHub(broadcast.Config{}, func() models.InitialMessage {
		return models.InitialMessage{Prices: map[string]float64{"BTCUSDT": 100}}
	}, metrics.Nop{}, logger.Nop())
	defer hub.Close()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s, err := hub.Serve(r.Context(), conn)
		if err != nil {
			return
		}
		<-s.Done()
	}))
	defer ts.Close()

	c := New(Config{URL: wsURL(ts), MinBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}, logger.Nop())
	got := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx, got.handle) }()

	require.Eventually(t, func() bool { return got.count(models.MessageInitial) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.IsConnected())

	hub.Broadcast(models.MessageUpdate, models.UpdateMessage{Type: models.MessageUpdate, Prices: map[string]float64{"BTCUSDT": 101}})
	require.Eventually(t, func() bool { return got.count(models.MessageUpdate) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Resubscribe(context.Background()))
	require.Eventually(t, func() bool { return got.count(models.MessageInitial) == 2 }, 2*time.Second, 5*time.Millisecond)

	got.mu.Lock()
	var first models.InitialMessage
	require.NoError(t, got.msgs[0].Decode(&first))
	got.mu.Unlock()
	assert.Equal(t, "connected", first.Message)
	assert.Equal(t, 100.0, first.Prices["BTCUSDT"])

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.IsConnected())
}

func TestClientReconnectsAfterServerDrop(t *testing.T) {
	var conns atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		_ = conn.WriteJSON(models.InitialMessage{Type: models.MessageInitial, Message: "connected"})
		if n == 1 {
			// drop the first session right away
			return
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	c := New(Config{URL: wsURL(ts), MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}, logger.Nop())
	got := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, got.handle) }()

	require.Eventually(t, func() bool { return got.count(models.MessageInitial) >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, c.Reconnects(), int64(1))
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestClientRetriesDialUntilCancelled(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(ts)
	ts.Close()

	c := New(Config{URL: url, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Run(ctx, func(Message) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Resubscribe(context.Background()))
}
