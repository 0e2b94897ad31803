package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	mid "PairPulse/internal/middleware"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/util"
)

// TickSource is a running tick producer feeding the pipeline.
type TickSource interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	IsConnected() bool
}

// FeedCollector pulls ticks from the exchange stream into the pipeline and
// reconnects with bounded exponential backoff.
type FeedCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	log     *applogger.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFeedCollector creates a new FeedCollector instance.
func NewFeedCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, minBackoff, maxBackoff time.Duration, log *applogger.Logger) *FeedCollector {
	return &FeedCollector{
		stream:     stream,
		pipe:       pipe,
		metrics:    metrics,
		log:        log.With("feed"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// IsConnected returns true if the market stream is connected.
func (c *FeedCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start launches the collect loop. Connection failures are retried in the
// background so the service can come up while the exchange is unreachable.
func (c *FeedCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

func (c *FeedCollector) run(ctx context.Context) {
	defer close(c.done)
	attempt := 0
	first := true
	for ctx.Err() == nil {
		var err error
		if first {
			if err = c.stream.Connect(ctx); err == nil {
				err = c.stream.Subscribe(ctx)
			}
		} else {
			err = c.stream.Reconnect(ctx)
		}
		if err != nil {
			attempt++
			c.metrics.RecordFeedConnected(false)
			c.metrics.RecordError("feed_connect")
			wait := util.Backoff(c.minBackoff, c.maxBackoff, attempt)
			c.log.Warn("feed connect failed",
				applogger.Error(err),
				applogger.Int("attempt", attempt),
				applogger.Duration("retry_in", wait),
			)
			first = false
			if !util.Sleep(ctx.Done(), wait) {
				return
			}
			continue
		}
		first = false
		attempt = 0
		c.metrics.RecordFeedConnected(true)

		ticks, errc := c.stream.Read(ctx)
		if err := c.consume(ctx, ticks, errc); err != nil {
			c.metrics.RecordError("stream")
			c.log.Warn("feed stream interrupted", applogger.Error(err))
		}
		c.metrics.RecordFeedConnected(false)
		if ctx.Err() != nil {
			return
		}
		// brief pause so a flapping endpoint does not spin
		if !util.Sleep(ctx.Done(), util.Backoff(c.minBackoff, c.maxBackoff, 1)) {
			return
		}
	}
}

func (c *FeedCollector) consume(ctx context.Context, ticks <-chan *models.Tick, errc <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errc:
			if ok && err != nil {
				return err
			}
			if !ok {
				errc = nil
			}
		case t, ok := <-ticks:
			if !ok {
				if errc != nil {
					if err := <-errc; err != nil {
						return err
					}
				}
				return errors.New("feed stream closed")
			}
			if t == nil {
				continue
			}
			if err := c.pipe.Process(*t); err != nil && !errors.Is(err, errs.ErrInvalidTick) {
				c.log.Error("pipeline error", applogger.Error(err), applogger.String("symbol", t.Symbol))
			}
		}
	}
}

// Shutdown stops the collect loop and closes the stream.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		_ = c.stream.Close()
		return ctx.Err()
	}
	c.metrics.RecordFeedConnected(false)
	return c.stream.Close()
}
