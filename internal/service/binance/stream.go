// Package binance connects to the Binance spot market: the trade stream for
// live ticks and the REST klines endpoint for warm start.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	applogger "PairPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamConfig configures the trade stream client.
type StreamConfig struct {
	WSURL            string
	Symbols          []string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
}

// Stream implements a MarketStream backed by Binance <symbol>@trade streams.
type Stream struct {
	cfg    StreamConfig
	log    *applogger.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	requestID atomic.Int64
}

var _ drepo.MarketStream = (*Stream)(nil)

// NewStream creates a new Binance MarketStream.
func NewStream(cfg StreamConfig, log *applogger.Logger) *Stream {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &Stream{
		cfg:    cfg,
		log:    log.With("binance"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.log.Info("connected", applogger.String("url", s.cfg.WSURL))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Subscribe (re)subscribes to the trade stream of every configured symbol.
// Binance treats repeated subscriptions as no-ops.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected.Load() {
		return fmt.Errorf("binance not connected")
	}
	params := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		params = append(params, strings.ToLower(sym)+"@trade")
	}
	req := subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: s.requestID.Add(1)}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	s.log.Info("subscribed", applogger.Strings("streams", params))
	return nil
}

// Read streams ticks until ctx is done or the connection fails. The error
// channel receives at most one error and both channels are then closed.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, s.cfg.BufferSize)
	errc := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		errc <- fmt.Errorf("binance conn nil")
		close(ticks)
		close(errc)
		return ticks, errc
	}

	done := make(chan struct{})
	if s.cfg.PingInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.cfg.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					return
				case <-ticker.C:
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}()
	}

	// unblock ReadMessage on cancellation
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errc)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				s.connected.Store(false)
				if ctx.Err() == nil {
					errc <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			tick, ok, err := decodeTrade(b)
			if err != nil {
				s.log.Warn("undecodable trade frame", applogger.Error(err))
				continue
			}
			if !ok {
				continue
			}
			select {
			case ticks <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticks, errc
}

// Reconnect closes the current connection, dials again and resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected.Load() }

type tradeEvent struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// decodeTrade accepts raw and combined-stream trade frames. ok is false for
// frames that are not trades (subscription acks, other events).
func decodeTrade(b []byte) (*models.Tick, bool, error) {
	var frame combinedFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		return nil, false, err
	}
	payload := b
	if frame.Stream != "" && len(frame.Data) > 0 {
		payload = frame.Data
	}

	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, false, err
	}
	if ev.Event != "trade" {
		return nil, false, nil
	}
	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return nil, false, fmt.Errorf("price %q: %w", ev.Price, err)
	}
	qty, err := strconv.ParseFloat(ev.Quantity, 64)
	if err != nil {
		return nil, false, fmt.Errorf("quantity %q: %w", ev.Quantity, err)
	}
	return &models.Tick{
		Symbol:    strings.ToUpper(ev.Symbol),
		Timestamp: time.UnixMilli(ev.TradeTime).UTC(),
		Price:     price,
		Size:      qty,
	}, true, nil
}
