// Package metrics holds per-endpoint analytics instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analytics records latency and failures of the on-demand analytics endpoints.
type Analytics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	limited *prometheus.CounterVec
}

func NewAnalytics(reg prometheus.Registerer) *Analytics {
	f := promauto.With(reg)
	return &Analytics{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pairpulse",
				Subsystem: "analytics",
				Name:      "latency_seconds",
				Help:      "Latency of analytics endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pairpulse",
				Subsystem: "analytics",
				Name:      "errors_total",
				Help:      "Errors by analytics endpoint and error kind",
			},
			[]string{"endpoint", "kind"},
		),
		limited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pairpulse",
				Subsystem: "analytics",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the analytics rate limiter",
			},
			[]string{"endpoint"},
		),
	}
}

// Observe records one request. kind is empty on success.
func (a *Analytics) Observe(endpoint string, start time.Time, kind string) {
	if a == nil {
		return
	}
	a.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if kind != "" {
		a.errors.WithLabelValues(endpoint, kind).Inc()
	}
}

func (a *Analytics) RateLimited(endpoint string) {
	if a == nil {
		return
	}
	a.limited.WithLabelValues(endpoint).Inc()
}
