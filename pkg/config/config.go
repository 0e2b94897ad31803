package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment" default:"development"`
	Symbols     []string `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\",\"BNBUSDT\",\"SOLUSDT\"]" validate:"min=1,dive,required"`
	Timeframes  []string `yaml:"timeframes" default:"[\"1s\",\"1m\",\"5m\"]" validate:"min=1,dive,oneof=1s 1m 5m"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Aggregator AggregatorConfig `yaml:"aggregator"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	ADF        ADFConfig        `yaml:"adf"`

	Correlation struct {
		Timeframe string `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
		Window    int    `yaml:"window" default:"100" validate:"gte=2"`
		MinPoints int    `yaml:"min_points" default:"20" validate:"gte=2"`
	} `yaml:"correlation"`

	Broadcast struct {
		QueueSize    int           `yaml:"queue_size" default:"256" validate:"gte=1"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		OHLCBars     int           `yaml:"ohlc_bars" default:"50" validate:"gte=1"`
	} `yaml:"broadcast"`

	Ingest struct {
		Source string `yaml:"source" default:"binance" validate:"oneof=binance kafka"`
		MaxRPS int    `yaml:"max_rps" default:"0" validate:"gte=0"`
	} `yaml:"ingest"`

	Feed struct {
		WSURL        string        `yaml:"ws_url" default:"wss://stream.binance.com:9443/stream"`
		RESTURL      string        `yaml:"rest_url" default:"https://api.binance.com/api/v3"`
		ReconnectMin time.Duration `yaml:"reconnect_min" default:"500ms"`
		ReconnectMax time.Duration `yaml:"reconnect_max" default:"30s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"20s"`
		StaleAfter   time.Duration `yaml:"stale_after" default:"30s"`
	} `yaml:"feed"`

	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic" default:"pairpulse.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"pairpulse"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"pairpulse"`
	} `yaml:"redis"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pairpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		BarsTable        string        `yaml:"bars_table" default:"bars"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`

	Alerts struct {
		Store string `yaml:"store" default:"memory" validate:"oneof=memory redis"`
		Topic string `yaml:"topic"`
		// WebhookURL enables delivery of fired alerts through the Redis queue.
		WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
		Queue      struct {
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			RetryLimit int           `yaml:"retry_limit" default:"5" validate:"gte=0"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
			Timeout    time.Duration `yaml:"timeout" default:"5s"`
		} `yaml:"queue"`
	} `yaml:"alerts"`

	Warmup struct {
		Source  string        `yaml:"source" default:"none" validate:"oneof=none binance clickhouse"`
		Bars    int           `yaml:"bars" default:"100" validate:"gte=1,lte=1000"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"warmup"`
}

type AggregatorConfig struct {
	HistorySize  int           `yaml:"history_size" default:"1000" validate:"gte=10"`
	VolumeWindow time.Duration `yaml:"volume_window" default:"24h"`
}

type AnalyticsConfig struct {
	Timeframe         string        `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m"`
	Regression        string        `yaml:"regression" default:"ols" validate:"oneof=ols kalman huber theilsen"`
	Lookback          int           `yaml:"lookback" default:"100" validate:"gte=2"`
	MinPoints         int           `yaml:"min_points" default:"20" validate:"gte=2"`
	Window            int           `yaml:"window" default:"20" validate:"gte=2"`
	ZeroStdPolicy     string        `yaml:"zero_std_policy" default:"zero" validate:"oneof=zero null"`
	IncludeIntercept  bool          `yaml:"include_intercept"`
	RecomputeInterval time.Duration `yaml:"recompute_interval" default:"1s"`
	TrackedPairs      []string      `yaml:"tracked_pairs"`
	TheilSenMaxPoints int           `yaml:"theilsen_max_points" default:"500" validate:"gte=2"`

	Kalman struct {
		Delta               float64 `yaml:"delta" default:"0.00001" validate:"gt=0,lt=1"`
		ObservationVariance float64 `yaml:"observation_variance" default:"0.001" validate:"gt=0"`
	} `yaml:"kalman"`

	Huber struct {
		Epsilon   float64 `yaml:"epsilon" default:"1.345" validate:"gt=1"`
		MaxIter   int     `yaml:"max_iter" default:"50" validate:"gte=1"`
		Tolerance float64 `yaml:"tolerance" default:"0.00000001" validate:"gt=0"`
	} `yaml:"huber"`

	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"20"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
	} `yaml:"rate_limit"`
}

type ADFConfig struct {
	Lags       int    `yaml:"lags" default:"1" validate:"gte=0"`
	Autolag    string `yaml:"autolag" default:"none" validate:"oneof=none aic"`
	Confidence string `yaml:"confidence" default:"5%" validate:"oneof=1% 5% 10%"`
}

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env files (if present), the YAML config, and applies environment overrides.
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env %s: %w", f, err)
		}
	}

	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("INGEST_SOURCE"); v != "" {
		c.Ingest.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ALERTS_STORE"); v != "" {
		c.Alerts.Store = v
	}
	if v := os.Getenv("ALERTS_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}
	if v := os.Getenv("WARMUP_SOURCE"); v != "" {
		c.Warmup.Source = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if !contains(c.Timeframes, c.Analytics.Timeframe) {
		return fmt.Errorf("analytics.timeframe %q is not in timeframes", c.Analytics.Timeframe)
	}
	if !contains(c.Timeframes, c.Correlation.Timeframe) {
		return fmt.Errorf("correlation.timeframe %q is not in timeframes", c.Correlation.Timeframe)
	}
	if c.Analytics.MinPoints > c.Analytics.Lookback {
		return fmt.Errorf("analytics.min_points (%d) exceeds lookback (%d)", c.Analytics.MinPoints, c.Analytics.Lookback)
	}
	if c.Analytics.RecomputeInterval <= 0 {
		return fmt.Errorf("analytics.recompute_interval must be positive")
	}
	if c.Feed.ReconnectMin <= 0 || c.Feed.ReconnectMax < c.Feed.ReconnectMin {
		return fmt.Errorf("feed reconnect bounds are invalid: min=%s max=%s", c.Feed.ReconnectMin, c.Feed.ReconnectMax)
	}
	if c.Broadcast.WriteTimeout <= 0 {
		return fmt.Errorf("broadcast.write_timeout must be positive")
	}
	needKafka := c.Ingest.Source == "kafka" || c.Alerts.Topic != ""
	if needKafka && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when ingest.source=kafka or alerts.topic is set")
	}
	for _, p := range c.Analytics.TrackedPairs {
		parts := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '-' })
		if len(parts) != 2 {
			return fmt.Errorf("analytics.tracked_pairs entry %q must be A/B", p)
		}
		for _, s := range parts {
			if !contains(c.Symbols, strings.ToUpper(s)) {
				return fmt.Errorf("analytics.tracked_pairs entry %q references unknown symbol %s", p, s)
			}
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
