package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/domain/repository"
	pkgch "ProbDesk/pkg/clickhouse"
	pkgkafka "ProbDesk/pkg/kafka"
	applogger "ProbDesk/pkg/logger"
	"ProbDesk/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PROBDESK_"

type Config struct {
	Environment string                 `yaml:"environment" default:"dev"`
	Log         applogger.Config       `yaml:"log"`
	Server      ServerConfig           `yaml:"server"`
	Relay       RelayConfig            `yaml:"relay"`
	Divergence  DivergenceConfig       `yaml:"divergence"`
	Alerts      models.AlertThresholds `yaml:"alerts"`
	History     HistoryConfig          `yaml:"history"`
	Ingest      IngestConfig           `yaml:"ingest"`
	Sink        SinkConfig             `yaml:"sink"`
	ClickHouse  pkgch.Config           `yaml:"clickhouse"`
	SQLite      SQLiteConfig           `yaml:"sqlite"`
	Kafka       pkgkafka.Config        `yaml:"kafka"`
	Collector   CollectorConfig        `yaml:"collector"`
	Cache       CacheConfig            `yaml:"cache"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0: event streams stay open
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins"` // empty disables CORS
}

type RelayConfig struct {
	UpstreamBase    string        `yaml:"upstream_base" default:"http://localhost:8000"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" default:"1048576"`
	ChunkSize       int           `yaml:"chunk_size" default:"4096"`
	DialTimeout     time.Duration `yaml:"dial_timeout" default:"5s"`
	HeaderTimeout   time.Duration `yaml:"header_timeout" default:"30s"` // first byte from upstream
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" default:"5"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" default:"10"`
}

type DivergenceConfig struct {
	Epsilon    float64 `yaml:"epsilon" default:"0.000001"`
	Saturation float64 `yaml:"saturation" default:"0.25"`
	Merge      string  `yaml:"merge" default:"latest_timestamp"`
}

type HistoryConfig struct {
	MaxPoints        int           `yaml:"max_points" default:"500"`
	MaxSpan          time.Duration `yaml:"max_span" default:"168h"`
	DefaultTimeframe string        `yaml:"default_timeframe" default:"24h"`
	BackfillLimit    int           `yaml:"backfill_limit" default:"500"`
}

type IngestConfig struct {
	MaxRPSPerMarket float64       `yaml:"max_rps_per_market" default:"20"`
	BufferSize      int           `yaml:"buffer_size" default:"1000"`
	FlushInterval   time.Duration `yaml:"flush_interval" default:"500ms"`
	MaxRetries      int           `yaml:"max_retries" default:"5"`
}

type SinkConfig struct {
	Type string `yaml:"type" default:"none"` // none, clickhouse, sqlite, kafka
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"probdesk.db"`
}

type CollectorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	WebSocketURL   string        `yaml:"websocket_url"`
	APIKey         string        `yaml:"api_key"`
	Markets        []string      `yaml:"markets"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

type CacheConfig struct {
	Type  string        `yaml:"type" default:"memory"` // memory, redis
	TTL   time.Duration `yaml:"ttl" default:"2s"`
	Redis RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns a config populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with PROBDESK_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = util.SplitCSV(v)
		}
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return models.NewConfigurationError(strings.ToLower(key), "must be a number")
		}
		*dst = f
		return nil
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup(envPrefix + "SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return models.NewConfigurationError("server.port", "must be an integer")
		}
		c.Server.Port = port
	}
	list("SERVER_CORS_ORIGINS", &c.Server.CORSOrigins)
	str("RELAY_UPSTREAM_BASE", &c.Relay.UpstreamBase)
	str("SINK_TYPE", &c.Sink.Type)
	str("SQLITE_PATH", &c.SQLite.Path)
	str("CLICKHOUSE_HOST", &c.ClickHouse.Host)
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	list("KAFKA_BROKERS", &c.Kafka.Brokers)
	str("CACHE_TYPE", &c.Cache.Type)
	str("REDIS_ADDR", &c.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("COLLECTOR_URL", &c.Collector.WebSocketURL)
	str("COLLECTOR_API_KEY", &c.Collector.APIKey)
	list("COLLECTOR_MARKETS", &c.Collector.Markets)

	for key, dst := range map[string]*float64{
		"ALERTS_LOW":    &c.Alerts.Low,
		"ALERTS_MEDIUM": &c.Alerts.Medium,
		"ALERTS_HIGH":   &c.Alerts.High,
	} {
		if err := float(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate fails fast with a ConfigurationError.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return models.NewConfigurationError("environment", "is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return models.NewConfigurationError("server.port", "must be between 1 and 65535")
	}

	u, err := url.Parse(c.Relay.UpstreamBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewConfigurationError("relay.upstream_base", "must be an absolute http(s) URL")
	}
	if c.Relay.MaxBodyBytes <= 0 {
		return models.NewConfigurationError("relay.max_body_bytes", "must be greater than 0")
	}
	if c.Relay.ChunkSize <= 0 {
		return models.NewConfigurationError("relay.chunk_size", "must be greater than 0")
	}

	if !(c.Divergence.Epsilon > 0) {
		return models.NewConfigurationError("divergence.epsilon", "must be greater than 0")
	}
	if !(c.Divergence.Saturation > 0) {
		return models.NewConfigurationError("divergence.saturation", "must be greater than 0")
	}
	switch c.Divergence.Merge {
	case "latest_timestamp", "last_arrival":
	default:
		return models.NewConfigurationError("divergence.merge", "must be latest_timestamp or last_arrival")
	}

	if err := c.Alerts.Validate(); err != nil {
		return err
	}

	if c.History.MaxPoints < 0 || c.History.MaxSpan < 0 {
		return models.NewConfigurationError("history", "bounds must not be negative")
	}
	if c.History.MaxPoints == 0 && c.History.MaxSpan == 0 {
		return models.NewConfigurationError("history", "max_points or max_span is required")
	}
	if !repository.IsValidTimeframe(repository.Timeframe(c.History.DefaultTimeframe)) {
		return models.NewConfigurationError("history.default_timeframe", "must be one of 1h, 6h, 24h, 7d, all")
	}

	switch c.Sink.Type {
	case "none", "":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return models.NewConfigurationError("clickhouse.host", "is required for sink.type=clickhouse")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return models.NewConfigurationError("sqlite.path", "is required for sink.type=sqlite")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.SnapshotsTopic == "" {
			return models.NewConfigurationError("kafka", "brokers and snapshots_topic are required for sink.type=kafka")
		}
	default:
		return models.NewConfigurationError("sink.type", fmt.Sprintf("unsupported value %q", c.Sink.Type))
	}

	if c.Kafka.PublishAlerts && (len(c.Kafka.Brokers) == 0 || c.Kafka.AlertsTopic == "") {
		return models.NewConfigurationError("kafka", "brokers and alerts_topic are required when publish_alerts is set")
	}
	if c.Kafka.Consumer.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.SamplesTopic == "") {
		return models.NewConfigurationError("kafka.consumer", "brokers and samples_topic are required when enabled")
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return models.NewConfigurationError("cache.redis.addr", "is required for cache.type=redis")
		}
	default:
		return models.NewConfigurationError("cache.type", "must be memory or redis")
	}

	if c.Collector.Enabled && c.Collector.WebSocketURL == "" {
		return models.NewConfigurationError("collector.websocket_url", "is required when the collector is enabled")
	}
	return nil
}
