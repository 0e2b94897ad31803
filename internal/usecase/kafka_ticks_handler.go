package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	mid "PairPulse/internal/middleware"
	pkgkafka "PairPulse/pkg/kafka"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/util"
)

// KafkaTicksHandler consumes tick messages and feeds them into the pipeline.
type KafkaTicksHandler struct {
	topic   string
	pipe    *mid.RealtimePipeline
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewKafkaTicksHandler(topic string, pipe *mid.RealtimePipeline, metrics domrepo.Metrics, log *applogger.Logger) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, metrics: metrics, log: log.With("kafka-ticks")}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

type tickMessage struct {
	Symbol    string          `json:"symbol"`
	Timestamp json.RawMessage `json:"timestamp"`
	Price     float64         `json:"price"`
	Size      float64         `json:"size"`
}

// Handle decodes {symbol, timestamp, price, size}. timestamp is RFC3339 or a unix
// number (seconds or milliseconds). Undecodable payloads are permanent failures;
// ticks the aggregator rejects are counted and skipped.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.PermanentError{Err: fmt.Errorf("decode tick: %w", err)}
	}
	ts, ok := parseTimestamp(m.Timestamp)
	if !ok {
		h.metrics.RecordInvalidTick("bad_timestamp")
		return &pkgkafka.PermanentError{Err: fmt.Errorf("tick %s: bad timestamp %s", m.Symbol, string(m.Timestamp))}
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	err := h.pipe.Process(models.Tick{Symbol: m.Symbol, Timestamp: ts, Price: m.Price, Size: m.Size})
	if errors.Is(err, errs.ErrInvalidTick) {
		h.log.Debug("tick skipped", applogger.String("symbol", m.Symbol), applogger.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	h.metrics.RecordMessageSent("aggregator", m.Symbol)
	return nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return util.ParseTime(s)
	}
	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return time.Time{}, false
	}
	return util.ParseTime(string(raw))
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

// KafkaTickSource runs a consumer for the ticks topic as a TickSource.
type KafkaTickSource struct {
	consumer *pkgkafka.Consumer
	handler  *KafkaTicksHandler
	running  atomic.Bool
}

func NewKafkaTickSource(consumer *pkgkafka.Consumer, handler *KafkaTicksHandler) *KafkaTickSource {
	consumer.RegisterHandler(handler)
	return &KafkaTickSource{consumer: consumer, handler: handler}
}

func (s *KafkaTickSource) Start(_ context.Context) error {
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("start tick consumer: %w", err)
	}
	s.running.Store(true)
	s.handler.metrics.RecordFeedConnected(true)
	return nil
}

func (s *KafkaTickSource) Shutdown(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	s.handler.metrics.RecordFeedConnected(false)
	return s.consumer.Stop(ctx)
}

func (s *KafkaTickSource) IsConnected() bool { return s.running.Load() }

var (
	_ TickSource = (*KafkaTickSource)(nil)
	_ TickSource = (*FeedCollector)(nil)
)
