package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
)

// Session is one live subscriber.
type Session struct {
	id   string
	conn Conn
	send chan []byte
	done chan struct{}
	hub  *Hub

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended; nil for a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// enqueue never blocks. A full queue ends the session with SessionOverflow.
func (s *Session) enqueue(b []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- b:
		return true
	default:
		s.close(&errs.Error{
			Kind:   errs.KindSessionOverflow,
			Op:     "broadcast.enqueue",
			N:      len(s.send),
			Detail: "session " + s.id + " outbound queue full",
		})
		return false
	}
}

func (s *Session) close(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close()
		s.hub.remove(s, reason)
	})
}

func (s *Session) sendInitial(message string) {
	msg := s.hub.initial()
	msg.Type = models.MessageInitial
	msg.Message = message
	b, err := json.Marshal(msg)
	if err != nil {
		s.close(fmt.Errorf("marshal initial: %w", err))
		return
	}
	if s.enqueue(b) {
		s.hub.metrics.RecordMessageSent("ws", models.MessageInitial)
	}
}

func (s *Session) writePump() {
	var ping <-chan time.Time
	if s.hub.cfg.PingInterval > 0 {
		t := time.NewTicker(s.hub.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			if err := s.write(websocket.TextMessage, b); err != nil {
				s.close(fmt.Errorf("write: %w", err))
				return
			}
		case <-ping:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.close(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

func (s *Session) write(kind int, b []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, b)
}

type inbound struct {
	Type string `json:"type"`
}

var pongJSON = []byte(`{"type":"pong"}`)

func (s *Session) readPump() {
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.close(nil)
				} else {
					s.close(fmt.Errorf("read: %w", err))
				}
			}
			return
		}

		text := strings.TrimSpace(string(b))
		if text == "ping" {
			s.enqueue([]byte(models.MessagePong))
			continue
		}
		var in inbound
		if err := json.Unmarshal(b, &in); err != nil {
			continue
		}
		switch in.Type {
		case "ping":
			s.enqueue(pongJSON)
		case "subscribe":
			s.sendInitial("subscribed")
		}
	}
}
