// Package streamclient consumes the /ws/live stream. It reconnects with
// bounded exponential backoff; every new connection starts with a fresh
// initial message, so consumers can rebuild their state after a gap.
package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/util"

	"github.com/gorilla/websocket"
)

// Config configures the stream client.
type Config struct {
	URL              string
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout drops a connection that stays silent for this long. Server
	// pings extend it. Zero disables the check.
	ReadTimeout time.Duration
}

// Message is one typed frame from the stream. Data holds the raw JSON.
type Message struct {
	Type string
	Data json.RawMessage
}

// Decode unmarshals the frame into v.
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// Handler receives every frame in arrival order.
type Handler func(Message)

type Client struct {
	cfg    Config
	log    *applogger.Logger
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  atomic.Bool
	reconnects atomic.Int64
}

func New(cfg Config, log *applogger.Logger) *Client {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		log:    log.With("streamclient"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

func (c *Client) IsConnected() bool { return c.connected.Load() }

// Reconnects counts connections made after the first one.
func (c *Client) Reconnects() int64 { return c.reconnects.Load() }

// Run connects and delivers frames to h until ctx is done, then returns
// ctx.Err(). Dial and read failures are retried forever.
func (c *Client) Run(ctx context.Context, h Handler) error {
	attempt := 0
	first := true
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			d := util.Backoff(c.cfg.MinBackoff, c.cfg.MaxBackoff, attempt)
			c.log.Warn("stream dial failed",
				applogger.String("url", c.cfg.URL),
				applogger.Int("attempt", attempt),
				applogger.Duration("retry_in", d),
				applogger.Error(err),
			)
			if !util.Sleep(ctx.Done(), d) {
				return ctx.Err()
			}
			continue
		}

		if !first {
			c.reconnects.Add(1)
		}
		first = false
		attempt = 0
		c.setConn(conn)
		c.log.Info("stream connected", applogger.String("url", c.cfg.URL))

		err = c.consume(ctx, conn, h)
		c.setConn(nil)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		d := util.Backoff(c.cfg.MinBackoff, c.cfg.MaxBackoff, attempt)
		c.log.Warn("stream interrupted", applogger.Duration("retry_in", d), applogger.Error(err))
		if !util.Sleep(ctx.Done(), d) {
			return ctx.Err()
		}
	}
}

// Resubscribe asks the server for a fresh initial message on the current
// connection. Repeating it is harmless.
func (c *Client) Resubscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("stream not connected")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteJSON(map[string]string{"type": "subscribe"}); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(conn != nil)
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn, h Handler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	if c.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			c.mu.Lock()
			defer c.mu.Unlock()
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		if c.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &head); err != nil {
			// plain-text pong
			head.Type = string(b)
		}
		h(Message{Type: head.Type, Data: b})
	}
}
