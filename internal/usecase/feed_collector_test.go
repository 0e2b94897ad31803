package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PairPulse/internal/domain/models"
	mid "PairPulse/internal/middleware"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream fails the first failConnects dials, then serves one batch of
// ticks per connection followed by a read error.
type fakeStream struct {
	mu           sync.Mutex
	failConnects int
	batches      [][]*models.Tick
	connects     int
	reconnects   int
	connected    atomic.Bool
}

func (s *fakeStream) dial() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connects <= s.failConnects {
		return errors.New("dial refused")
	}
	s.connected.Store(true)
	return nil
}

func (s *fakeStream) Connect(context.Context) error   { return s.dial() }
func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return s.dial()
}

func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick)
	errc := make(chan error, 1)
	s.mu.Lock()
	var batch []*models.Tick
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()
	go func() {
		defer close(ticks)
		defer close(errc)
		for _, t := range batch {
			select {
			case ticks <- t:
			case <-ctx.Done():
				return
			}
		}
		if len(batch) == 0 {
			<-ctx.Done()
			return
		}
		s.connected.Store(false)
		errc <- errors.New("connection reset")
	}()
	return ticks, errc
}

func (s *fakeStream) Close() error {
	s.connected.Store(false)
	return nil
}

func (s *fakeStream) IsConnected() bool { return s.connected.Load() }

func (s *fakeStream) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.reconnects
}

func TestFeedCollectorRetriesAndReconnects(t *testing.T) {
	agg := newAggregator(t, "AAA")
	pipe := mid.NewRealtimePipeline(agg, metrics.Nop{})
	at := func(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }
	stream := &fakeStream{
		failConnects: 2,
		batches: [][]*models.Tick{
			{{Symbol: "AAA", Timestamp: at(1), Price: 10, Size: 1}, {Symbol: "AAA", Timestamp: at(2), Price: 11, Size: 1}},
			{{Symbol: "aaa", Timestamp: at(3), Price: 12, Size: 1}, {Symbol: "AAA", Timestamp: at(0), Price: 99, Size: 1}},
		},
	}
	c := NewFeedCollector(stream, pipe, metrics.Nop{}, time.Millisecond, 5*time.Millisecond, logger.Nop())
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		p, _ := agg.Price("AAA")
		return p == 12
	}, 2*time.Second, 5*time.Millisecond)

	connects, reconnects := stream.counts()
	assert.GreaterOrEqual(t, connects, 4)
	assert.GreaterOrEqual(t, reconnects, 3)
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())
	// idempotent
	require.NoError(t, c.Shutdown(ctx))
}
