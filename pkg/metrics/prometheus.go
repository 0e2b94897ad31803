package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal      *prometheus.CounterVec
	invalidTicks    *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	sessions        prometheus.Gauge
	sessionsDropped *prometheus.CounterVec
	alertsFired     *prometheus.CounterVec
	feedConnected   prometheus.Gauge
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_ticks_total",
				Help: "Total number of ticks accepted by the aggregator",
			},
			[]string{"symbol"},
		),
		invalidTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_invalid_ticks_total",
				Help: "Total number of ticks rejected at ingestion",
			},
			[]string{"reason"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_messages_sent_total",
				Help: "Total number of messages delivered to a sink",
			},
			[]string{"sink", "kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pairpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "pairpulse_stream_sessions",
			Help: "Number of live stream sessions",
		}),
		sessionsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_stream_sessions_dropped_total",
				Help: "Sessions closed by the server",
			},
			[]string{"reason"},
		),
		alertsFired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairpulse_alerts_fired_total",
				Help: "Alert events emitted",
			},
			[]string{"metric"},
		),
		feedConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "pairpulse_feed_connected",
			Help: "1 when the market feed is connected",
		}),
	}
}

func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordInvalidTick(reason string) {
	r.invalidTicks.WithLabelValues(reason).Inc()
}

// RecordMessageSent records a message delivered to a sink (ws, kafka).
func (r *Recorder) RecordMessageSent(sink, kind string) {
	r.messagesSent.WithLabelValues(sink, kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSessions(n int) {
	r.sessions.Set(float64(n))
}

func (r *Recorder) RecordSessionDropped(reason string) {
	r.sessionsDropped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordAlert(metric string) {
	r.alertsFired.WithLabelValues(metric).Inc()
}

func (r *Recorder) RecordFeedConnected(connected bool) {
	if connected {
		r.feedConnected.Set(1)
		return
	}
	r.feedConnected.Set(0)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordTick(string)                {}
func (Nop) RecordInvalidTick(string)         {}
func (Nop) RecordMessageSent(string, string) {}
func (Nop) RecordError(string)               {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordSessions(int)               {}
func (Nop) RecordSessionDropped(string)      {}
func (Nop) RecordAlert(string)               {}
func (Nop) RecordFeedConnected(bool)         {}
