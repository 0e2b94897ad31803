package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/repository"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/queue"
)

// AlertWebhookJob delivers queued alert events to an HTTP endpoint. 4xx
// answers other than 429 are not retried.
type AlertWebhookJob struct {
	client  *xhttp.Client
	url     string
	metrics drepo.Metrics
	log     *applogger.Logger
}

var _ queue.Job = (*AlertWebhookJob)(nil)

func NewAlertWebhookJob(client *xhttp.Client, url string, metrics drepo.Metrics, log *applogger.Logger) *AlertWebhookJob {
	return &AlertWebhookJob{client: client, url: url, metrics: metrics, log: log.With("alert_webhook")}
}

func (j *AlertWebhookJob) Name() string { return "alert-webhook" }
func (j *AlertWebhookJob) Type() string { return repository.AlertMessageType }

func (j *AlertWebhookJob) Handle(ctx context.Context, payload json.RawMessage) error {
	var ev models.AlertEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return queue.Permanent(fmt.Errorf("decode alert: %w", err))
	}

	err := j.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    j.url,
		Body:   ev,
	}, nil)
	if err != nil {
		j.metrics.RecordError("alert_webhook")
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return queue.Permanent(err)
		}
		return err
	}
	j.metrics.RecordMessageSent("webhook", ev.Metric)
	j.log.Debug("alert delivered", applogger.String("rule_id", ev.RuleID))
	return nil
}
