package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"PairPulse/internal/domain/models"
	xhttp "PairPulse/pkg/http"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
	"PairPulse/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertWebhookJob(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body.Store(string(b))
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	job := NewAlertWebhookJob(xhttp.NewClient(), srv.URL, metrics.Nop{}, logger.Nop())
	payload, err := json.Marshal(models.AlertEvent{RuleID: "r1", RuleName: "wide", Metric: "zscore", Value: 2.4})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, payload))
	assert.Contains(t, body.Load().(string), `"rule_id":"r1"`)

	status.Store(http.StatusServiceUnavailable)
	err = job.Handle(ctx, payload)
	require.Error(t, err)
	var perm *queue.PermanentError
	assert.False(t, errors.As(err, &perm), "5xx is retried")

	status.Store(http.StatusBadRequest)
	err = job.Handle(ctx, payload)
	assert.True(t, errors.As(err, &perm), "4xx is not retried")

	err = job.Handle(ctx, []byte("{"))
	assert.True(t, errors.As(err, &perm))
}
