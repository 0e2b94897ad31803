package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PairPulse/internal/broadcast"
	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
	"PairPulse/internal/handler/api"
	mid "PairPulse/internal/middleware"
	internalrepo "PairPulse/internal/repository"
	"PairPulse/internal/service/aggregator"
	"PairPulse/internal/service/binance"
	amet "PairPulse/internal/service/metrics"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/alerts"
	"PairPulse/internal/services/correlation"
	"PairPulse/internal/services/regression"
	"PairPulse/internal/services/spread"
	"PairPulse/internal/services/stationarity"
	"PairPulse/internal/usecase"
	"PairPulse/pkg/cache"
	pkgch "PairPulse/pkg/clickhouse"
	"PairPulse/pkg/config"
	xhttp "PairPulse/pkg/http"
	pkgkafka "PairPulse/pkg/kafka"
	applogger "PairPulse/pkg/logger"
	"PairPulse/pkg/metrics"
	"PairPulse/pkg/queue"
	"PairPulse/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideRegistry creates the registry every collector and /metrics share.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the Prometheus domain metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideAnalyticsMetrics(reg *prometheus.Registry) *amet.Analytics {
	return amet.NewAnalytics(reg)
}

func timeframes(list []string) []models.Timeframe {
	out := make([]models.Timeframe, 0, len(list))
	for _, s := range list {
		out = append(out, models.Timeframe(s))
	}
	return out
}

func ProvideAggregator(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*aggregator.Aggregator, error) {
	return aggregator.New(aggregator.Config{
		Symbols:      cfg.Symbols,
		Timeframes:   timeframes(cfg.Timeframes),
		HistorySize:  cfg.Aggregator.HistorySize,
		VolumeWindow: cfg.Aggregator.VolumeWindow,
	}, m, l)
}

// ProvidePipeline builds the validation stage in front of the aggregator.
func ProvidePipeline(agg *aggregator.Aggregator, m repository.Metrics, cfg *config.Config) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(agg, m, mid.WithMaxRPS(cfg.Ingest.MaxRPS))
}

// ProvideTickSource selects the live feed: the Binance trade stream or a
// Kafka ticks topic.
func ProvideTickSource(
	cfg *config.Config,
	pipe *mid.RealtimePipeline,
	m repository.Metrics,
	reg *prometheus.Registry,
	l *applogger.Logger,
) (usecase.TickSource, error) {
	switch cfg.Ingest.Source {
	case "kafka":
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
			pkgkafka.WithConsumerLogger(l),
			pkgkafka.WithConsumerRegisterer(reg),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		h := usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipe, m, l)
		return usecase.NewKafkaTickSource(consumer, h), nil
	default:
		stream := binance.NewStream(binance.StreamConfig{
			WSURL:        cfg.Feed.WSURL,
			Symbols:      cfg.Symbols,
			PingInterval: cfg.Feed.PingInterval,
		}, l)
		return usecase.NewFeedCollector(stream, pipe, m, cfg.Feed.ReconnectMin, cfg.Feed.ReconnectMax, l), nil
	}
}

// ProvideRedis opens the shared Redis client when the alert store or the
// webhook queue needs it; nil otherwise.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if cfg.Alerts.Store != "redis" && cfg.Alerts.WebhookURL == "" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideAlertQueue creates the webhook delivery queue, or nil when no
// webhook is configured. The App owns Start and Stop.
func ProvideAlertQueue(cfg *config.Config, rc *cache.RedisCache, m repository.Metrics, l *applogger.Logger) *queue.RedisQueue {
	if cfg.Alerts.WebhookURL == "" || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Alerts.Queue.Workers,
		RetryLimit: cfg.Alerts.Queue.RetryLimit,
		RetryDelay: cfg.Alerts.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":alerts"))
	client := xhttp.NewClient(xhttp.WithTimeout(cfg.Alerts.Queue.Timeout))
	q.RegisterJob(usecase.NewAlertWebhookJob(client, cfg.Alerts.WebhookURL, m, l))
	return q
}

// ProvideAlertPublisher fans fired alerts out to Kafka (alerts.topic) and the
// webhook queue. With neither configured alerts are only broadcast.
func ProvideAlertPublisher(cfg *config.Config, q *queue.RedisQueue, reg *prometheus.Registry) (repository.AlertPublisher, func(), error) {
	var sinks internalrepo.MultiAlertPublisher
	if cfg.Alerts.Topic != "" {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
			pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
			pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
			pkgkafka.WithProducerRegisterer(reg),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		sinks = append(sinks, internalrepo.NewKafkaAlertPublisher(producer, cfg.Alerts.Topic))
	}
	if q != nil {
		sinks = append(sinks, internalrepo.NewQueueAlertPublisher(q))
	}
	switch len(sinks) {
	case 0:
		return internalrepo.NopAlertPublisher{}, func() {}, nil
	case 1:
		return sinks[0], func() { _ = sinks[0].Close() }, nil
	}
	return sinks, func() { _ = sinks.Close() }, nil
}

// ProvideAlertStore persists rule definitions in memory or Redis.
func ProvideAlertStore(cfg *config.Config, rc *cache.RedisCache) (repository.AlertRuleStore, error) {
	if cfg.Alerts.Store != "redis" {
		return internalrepo.NewMemoryAlertStore(), nil
	}
	if rc == nil {
		return nil, fmt.Errorf("redis alert store: no redis client")
	}
	return internalrepo.NewRedisAlertStore(rc), nil
}

// ProvideBarSource returns the warm-start history source, or nil when warmup
// is disabled.
func ProvideBarSource(cfg *config.Config, l *applogger.Logger) (repository.BarSource, func(), error) {
	switch cfg.Warmup.Source {
	case "binance":
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Warmup.Timeout))
		return binance.NewKlineSource(client, cfg.Feed.RESTURL), func() {}, nil
	case "clickhouse":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ClickHouse.DialTimeout+time.Second)
		defer cancel()
		ch, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		src, err := internalrepo.NewCHBarSource(ch, cfg.ClickHouse.BarsTable, l)
		if err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
		return src, func() { _ = ch.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func ProvideWarmer(src repository.BarSource, agg *aggregator.Aggregator, cfg *config.Config, l *applogger.Logger) *usecase.Warmer {
	if src == nil {
		return nil
	}
	return usecase.NewWarmer(src, agg, cfg.Warmup.Bars, cfg.Warmup.Timeout, l)
}

func ProvideRegressionEngine(cfg *config.Config) *regression.Engine {
	a := cfg.Analytics
	return regression.NewEngine(regression.Config{
		MinPoints:         a.MinPoints,
		TheilSenMaxPoints: a.TheilSenMaxPoints,
		KalmanDelta:       a.Kalman.Delta,
		KalmanObsVar:      a.Kalman.ObservationVariance,
		HuberEpsilon:      a.Huber.Epsilon,
		HuberMaxIter:      a.Huber.MaxIter,
		HuberTolerance:    a.Huber.Tolerance,
	})
}

func ProvideSpreadTracker(cfg *config.Config) *spread.Tracker {
	return spread.NewTracker(spread.Config{
		Window:           cfg.Analytics.Window,
		ZeroStdPolicy:    spread.ZeroStdPolicy(cfg.Analytics.ZeroStdPolicy),
		IncludeIntercept: cfg.Analytics.IncludeIntercept,
	})
}

func ProvideADFTester(cfg *config.Config) *stationarity.Tester {
	return stationarity.NewTester(stationarity.Config{
		Lags:       cfg.ADF.Lags,
		Autolag:    stationarity.Autolag(cfg.ADF.Autolag),
		Confidence: cfg.ADF.Confidence,
	})
}

func ProvideCorrelationEngine(cfg *config.Config) *correlation.Engine {
	return correlation.NewEngine(correlation.Config{
		Timeframe: models.Timeframe(cfg.Correlation.Timeframe),
		Window:    cfg.Correlation.Window,
		MinPoints: cfg.Correlation.MinPoints,
	})
}

func ProvidePairAnalytics(
	agg *aggregator.Aggregator,
	engine *regression.Engine,
	tracker *spread.Tracker,
	tester *stationarity.Tester,
	corr *correlation.Engine,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.PairAnalyticsUseCase {
	return usecase.NewPairAnalyticsUseCase(agg, engine, tracker, tester, corr, m, usecase.AnalyticsConfig{
		Timeframe:  models.Timeframe(cfg.Analytics.Timeframe),
		Regression: models.RegressionType(cfg.Analytics.Regression),
		Lookback:   cfg.Analytics.Lookback,
		MinPoints:  cfg.Analytics.MinPoints,
	}, l)
}

func ProvideAlertRules(store repository.AlertRuleStore, ev *alerts.Evaluator, agg *aggregator.Aggregator, l *applogger.Logger) *usecase.AlertRulesUseCase {
	return usecase.NewAlertRulesUseCase(store, ev, agg, l)
}

func ProvideMarket(agg *aggregator.Aggregator, source usecase.TickSource, cfg *config.Config) *usecase.MarketUseCase {
	return usecase.NewMarketUseCase(agg, source, cfg.Feed.StaleAfter, models.Timeframe(cfg.Analytics.Timeframe))
}

// ProvideHub creates the live broadcast hub. New sessions receive the
// current prices and recent bars of the analytics timeframe.
func ProvideHub(cfg *config.Config, agg *aggregator.Aggregator, m repository.Metrics, l *applogger.Logger) *broadcast.Hub {
	initial := usecase.NewInitialState(agg, models.Timeframe(cfg.Analytics.Timeframe), cfg.Broadcast.OHLCBars)
	return broadcast.NewHub(broadcast.Config{
		QueueSize:    cfg.Broadcast.QueueSize,
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		PingInterval: cfg.Broadcast.PingInterval,
	}, initial.Build, m, l)
}

// trackedPairs parses "A/B" (or "A-B") entries; config validation already
// rejected malformed ones.
func trackedPairs(list []string) []usecase.PairQuery {
	out := make([]usecase.PairQuery, 0, len(list))
	for _, p := range list {
		parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '-' })
		if len(parts) != 2 {
			continue
		}
		out = append(out, usecase.PairQuery{
			SymbolA: strings.ToUpper(strings.TrimSpace(parts[0])),
			SymbolB: strings.ToUpper(strings.TrimSpace(parts[1])),
		})
	}
	return out
}

func ProvideRecompute(
	agg *aggregator.Aggregator,
	analytics *usecase.PairAnalyticsUseCase,
	corr *correlation.Engine,
	ev *alerts.Evaluator,
	hub *broadcast.Hub,
	pub repository.AlertPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RecomputeCycle {
	return usecase.NewRecomputeCycle(agg, analytics, corr, ev, hub, pub, m, usecase.RecomputeConfig{
		Interval:     cfg.Analytics.RecomputeInterval,
		Timeframe:    models.Timeframe(cfg.Analytics.Timeframe),
		OHLCBars:     cfg.Broadcast.OHLCBars,
		TrackedPairs: trackedPairs(cfg.Analytics.TrackedPairs),
	}, l)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Analytics.RateLimit.Capacity, cfg.Analytics.RateLimit.RefillPerSec)
}

// ProvideHTTPServer builds the Echo server with the API routes and /metrics.
func ProvideHTTPServer(cfg *config.Config, router *api.Router, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(router,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithRegistry(reg, reg),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	source usecase.TickSource,
	cycle *usecase.RecomputeCycle,
	rules *usecase.AlertRulesUseCase,
	warmer *usecase.Warmer,
	limiter *ratelimit.Limiter,
	hub *broadcast.Hub,
	alertQueue *queue.RedisQueue,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, server.Components{
		Source:     source,
		Cycle:      cycle,
		Rules:      rules,
		Warmer:     warmer,
		Limiter:    limiter,
		Hub:        hub,
		AlertQueue: alertQueue,
		HTTP:       srv,
	})
}
