package repository

import (
	"context"

	"PairPulse/internal/domain/models"
)

// MarketStream is a live tick source (exchange websocket).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarSource provides historical bars for warm start. Read-only.
type BarSource interface {
	LoadBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

// AlertRuleStore persists alert rule definitions.
type AlertRuleStore interface {
	List(ctx context.Context) ([]models.AlertRule, error)
	Get(ctx context.Context, id string) (models.AlertRule, error)
	Save(ctx context.Context, rule models.AlertRule) error
	Delete(ctx context.Context, id string) error
}

// AlertPublisher forwards alert events to an external sink.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, ev models.AlertEvent) error
	Close() error
}

type Metrics interface {
	RecordTick(symbol string)
	RecordInvalidTick(reason string)
	RecordMessageSent(sink, kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordSessions(n int)
	RecordSessionDropped(reason string)
	RecordAlert(metric string)
	RecordFeedConnected(connected bool)
}
