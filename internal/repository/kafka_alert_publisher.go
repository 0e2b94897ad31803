package repository

import (
	"context"
	"errors"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	pkgkafka "PairPulse/pkg/kafka"
	"PairPulse/pkg/queue"
)

// AlertMessageType is the queue message type of a fired alert.
const AlertMessageType = "alert.fired"

// publisher is the subset of *pkgkafka.Producer used here.
type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaAlertPublisher forwards alert events to a topic keyed by rule id.
type KafkaAlertPublisher struct {
	p     publisher
	topic string
}

var (
	_ domrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
	_ domrepo.AlertPublisher = (*QueueAlertPublisher)(nil)
	_ domrepo.AlertPublisher = MultiAlertPublisher(nil)
)

func NewKafkaAlertPublisher(p *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{p: p, topic: topic}
}

func (k *KafkaAlertPublisher) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return k.p.Publish(ctx, k.topic, []byte(ev.RuleID), ev)
}

func (k *KafkaAlertPublisher) Close() error {
	return k.p.Close()
}

// QueueAlertPublisher enqueues alert events for asynchronous delivery.
type QueueAlertPublisher struct {
	q queue.Publisher
}

func NewQueueAlertPublisher(q queue.Publisher) *QueueAlertPublisher {
	return &QueueAlertPublisher{q: q}
}

func (p *QueueAlertPublisher) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	return p.q.PublishMessage(ctx, AlertMessageType, ev)
}

// Close is a no-op; the queue lifecycle belongs to the app.
func (p *QueueAlertPublisher) Close() error { return nil }

// MultiAlertPublisher fans an event out to every sink. All sinks are tried;
// failures are joined.
type MultiAlertPublisher []domrepo.AlertPublisher

func (m MultiAlertPublisher) PublishAlert(ctx context.Context, ev models.AlertEvent) error {
	var errList []error
	for _, p := range m {
		if err := p.PublishAlert(ctx, ev); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (m MultiAlertPublisher) Close() error {
	var errList []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// NopAlertPublisher drops events; used when no alert sink is configured.
type NopAlertPublisher struct{}

func (NopAlertPublisher) PublishAlert(context.Context, models.AlertEvent) error { return nil }
func (NopAlertPublisher) Close() error                                          { return nil }
