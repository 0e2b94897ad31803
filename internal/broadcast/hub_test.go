package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
)

var errClosed = errors.New("fake conn closed")

type fakeConn struct {
	in      chan []byte
	gate    chan struct{}
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written [][]byte
	wrote   chan struct{}
}

func newFakeConn(blockWrites bool) *fakeConn {
	c := &fakeConn{
		in:     make(chan []byte, 8),
		closed: make(chan struct{}),
		wrote:  make(chan struct{}, 64),
	}
	if blockWrites {
		c.gate = make(chan struct{})
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.TextMessage, b, nil
	case <-c.closed:
		return 0, nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(kind int, b []byte) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closed:
			return errClosed
		}
	}
	if kind != websocket.TextMessage {
		return nil
	}
	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), b...))
	c.mu.Unlock()
	c.wrote <- struct{}{}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadLimit(int64)               {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) next(t *testing.T) []byte {
	t.Helper()
	select {
	case <-c.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written[len(c.written)-1]
}

func newTestHub(queue int) *Hub {
	initial := func() models.InitialMessage {
		return models.InitialMessage{Prices: map[string]float64{"BTCUSDT": 50000}}
	}
	return NewHub(Config{QueueSize: queue, WriteTimeout: time.Second}, initial, metrics.Nop{}, logger.Nop())
}

func typeOf(t *testing.T, b []byte) string {
	t.Helper()
	var m struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(b, &m))
	return m.Type
}

func TestServeSendsInitialThenUpdates(t *testing.T) {
	h := newTestHub(8)
	conn := newFakeConn(false)
	s, err := h.Serve(context.Background(), conn)
	require.NoError(t, err)
	defer s.close(nil)

	assert.Equal(t, models.MessageInitial, typeOf(t, conn.next(t)))
	assert.Equal(t, 1, h.Count())

	h.Broadcast(models.MessageUpdate, models.UpdateMessage{Type: models.MessageUpdate, Timestamp: time.Now()})
	assert.Equal(t, models.MessageUpdate, typeOf(t, conn.next(t)))
}

func TestPingAndSubscribe(t *testing.T) {
	h := newTestHub(8)
	conn := newFakeConn(false)
	s, err := h.Serve(context.Background(), conn)
	require.NoError(t, err)
	defer s.close(nil)
	conn.next(t)

	conn.in <- []byte("ping")
	assert.Equal(t, "pong", string(conn.next(t)))

	conn.in <- []byte(`{"type":"ping"}`)
	assert.Equal(t, models.MessagePong, typeOf(t, conn.next(t)))

	conn.in <- []byte(`{"type":"subscribe"}`)
	assert.Equal(t, models.MessageInitial, typeOf(t, conn.next(t)))
}

func TestOverflowDropsSessionAndResubscribeGetsInitial(t *testing.T) {
	var price atomic.Value
	price.Store(50000.0)
	initial := func() models.InitialMessage {
		return models.InitialMessage{Prices: map[string]float64{"BTCUSDT": price.Load().(float64)}}
	}
	h := NewHub(Config{QueueSize: 2, WriteTimeout: time.Second}, initial, metrics.Nop{}, logger.Nop())
	slow := newFakeConn(true)
	s, err := h.Serve(context.Background(), slow)
	require.NoError(t, err)

	// the writer holds the initial message while the gate is shut,
	// so broadcasts fill the queue and the third one overflows
	require.Eventually(t, func() bool { return len(s.send) == 0 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		h.Broadcast(models.MessageUpdate, models.UpdateMessage{Type: models.MessageUpdate})
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not dropped")
	}
	assert.ErrorIs(t, s.Err(), errs.ErrSessionOverflow)
	assert.Equal(t, 0, h.Count())

	// state moves on while the client is away
	price.Store(51234.5)

	fresh := newFakeConn(false)
	s2, err := h.Serve(context.Background(), fresh)
	require.NoError(t, err)
	defer s2.close(nil)

	var msg models.InitialMessage
	require.NoError(t, json.Unmarshal(fresh.next(t), &msg))
	assert.Equal(t, models.MessageInitial, msg.Type)
	assert.Equal(t, 51234.5, msg.Prices["BTCUSDT"])
	assert.Equal(t, 1, h.Count())
}

func TestInitialPrecedesConcurrentBroadcast(t *testing.T) {
	var h *Hub
	initial := func() models.InitialMessage {
		// a recompute cycle broadcasting while the session is being set up
		h.Broadcast(models.MessageUpdate, models.UpdateMessage{Type: models.MessageUpdate})
		return models.InitialMessage{Prices: map[string]float64{"BTCUSDT": 1}}
	}
	h = NewHub(Config{QueueSize: 8, WriteTimeout: time.Second}, initial, metrics.Nop{}, logger.Nop())
	conn := newFakeConn(false)
	s, err := h.Serve(context.Background(), conn)
	require.NoError(t, err)
	defer s.close(nil)

	assert.Equal(t, models.MessageInitial, typeOf(t, conn.next(t)))
	h.Broadcast(models.MessageUpdate, models.UpdateMessage{Type: models.MessageUpdate})
	assert.Equal(t, models.MessageUpdate, typeOf(t, conn.next(t)))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Len(t, conn.written, 2)
}

func TestContextCancelClosesSession(t *testing.T) {
	h := newTestHub(4)
	ctx, cancel := context.WithCancel(context.Background())
	conn := newFakeConn(false)
	s, err := h.Serve(ctx, conn)
	require.NoError(t, err)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session still open")
	}
	assert.NoError(t, s.Err())
	assert.Equal(t, 0, h.Count())
}

func TestClosedHubRejects(t *testing.T) {
	h := newTestHub(4)
	h.Close()
	_, err := h.Serve(context.Background(), newFakeConn(false))
	assert.Error(t, err)
}
