// Package broadcast fans analytics updates out to live websocket sessions.
// Every session owns a bounded outbound queue; a session whose queue fills
// up is dropped instead of slowing the producer.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	applogger "PairPulse/pkg/logger"
)

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// InitialFunc builds the full state sent to a (re)subscribing session.
type InitialFunc func() models.InitialMessage

type Config struct {
	QueueSize    int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

func (c *Config) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 4096
	}
}

// Hub tracks live sessions.
type Hub struct {
	cfg     Config
	initial InitialFunc
	metrics drepo.Metrics
	log     *applogger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewHub(cfg Config, initial InitialFunc, metrics drepo.Metrics, log *applogger.Logger) *Hub {
	cfg.normalize()
	return &Hub{
		cfg:      cfg,
		initial:  initial,
		metrics:  metrics,
		log:      log.With("broadcast"),
		sessions: make(map[string]*Session),
	}
}

// Serve registers conn as a new session, queues its initial message and
// starts its pumps. The session ends when ctx is done, the peer goes away,
// a write times out or its queue overflows.
func (h *Hub) Serve(ctx context.Context, conn Conn) (*Session, error) {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.QueueSize),
		done: make(chan struct{}),
		hub:  h,
	}

	// initial goes on the queue before the session is visible to Broadcast
	s.sendInitial("connected")
	select {
	case <-s.done:
		return nil, fmt.Errorf("session %s: %w", s.id, s.Err())
	default:
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast hub closed")
	}
	h.sessions[s.id] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.metrics.RecordSessions(n)
	h.log.Info("session opened", applogger.String("session", s.id), applogger.Int("sessions", n))

	conn.SetReadLimit(h.cfg.ReadLimit)
	go s.writePump()
	go s.readPump()
	go func() {
		select {
		case <-ctx.Done():
			s.close(nil)
		case <-s.done:
		}
	}()
	return s, nil
}

// Broadcast marshals v once and queues it on every session without blocking.
func (h *Hub) Broadcast(kind string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("marshal broadcast", applogger.String("kind", kind), applogger.Error(err))
		h.metrics.RecordError("broadcast_marshal")
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.enqueue(b) {
			h.metrics.RecordMessageSent("ws", kind)
		}
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close ends every session and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()
	for _, s := range targets {
		s.close(nil)
	}
}

func (h *Hub) remove(s *Session, reason error) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	n := len(h.sessions)
	h.mu.Unlock()
	h.metrics.RecordSessions(n)

	if reason == nil {
		h.log.Info("session closed", applogger.String("session", s.id))
		return
	}
	label := "error"
	if errs.KindOf(reason) == errs.KindSessionOverflow {
		label = "overflow"
	}
	h.metrics.RecordSessionDropped(label)
	h.log.Warn("session dropped", applogger.String("session", s.id), applogger.String("reason", label), applogger.Error(reason))
}
