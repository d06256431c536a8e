package di

import (
	"context"
	"fmt"
	"time"

	"ProbDesk/internal/domain/repository"
	domsvc "ProbDesk/internal/domain/service"
	"ProbDesk/internal/handler/api"
	mid "ProbDesk/internal/middleware"
	internalrepo "ProbDesk/internal/repository"
	"ProbDesk/internal/service/cache"
	"ProbDesk/internal/service/collector"
	relaymetrics "ProbDesk/internal/service/metrics"
	"ProbDesk/internal/service/ratelimit"
	"ProbDesk/internal/services/divergence"
	"ProbDesk/internal/services/history"
	"ProbDesk/internal/services/relay"
	"ProbDesk/internal/usecase"
	pkgch "ProbDesk/pkg/clickhouse"
	"ProbDesk/pkg/config"
	xhttp "ProbDesk/pkg/http"
	pkgkafka "ProbDesk/pkg/kafka"
	applogger "ProbDesk/pkg/logger"
	"ProbDesk/pkg/metrics"
	"ProbDesk/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideCalculator(cfg *config.Config) *divergence.Calculator {
	return divergence.NewCalculator(
		divergence.WithEpsilon(cfg.Divergence.Epsilon),
		divergence.WithSaturation(cfg.Divergence.Saturation),
	)
}

func ProvideMergeStrategy(cfg *config.Config) (divergence.MergeStrategy, error) {
	return divergence.ParseMergeStrategy(cfg.Divergence.Merge)
}

func ProvideIngestor(calc *divergence.Calculator) domsvc.Ingestor {
	return divergence.NewIngestor(calc)
}

// ProvideClassifier validates the configured thresholds once at startup.
func ProvideClassifier(cfg *config.Config) (domsvc.Classifier, error) {
	c, err := divergence.NewClassifier(cfg.Alerts)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return c, nil
}

func ProvideAggregator(calc *divergence.Calculator, merge divergence.MergeStrategy) domsvc.Aggregator {
	return divergence.NewAggregator(calc, merge)
}

func ProvideSnapshotBook(merge divergence.MergeStrategy) repository.SnapshotBook {
	return internalrepo.NewMemorySnapshotBook(merge)
}

func ProvideHistoryTracker(cfg *config.Config) domsvc.HistoryTracker {
	return history.NewTracker(
		history.WithMaxPoints(cfg.History.MaxPoints),
		history.WithMaxSpan(cfg.History.MaxSpan),
	)
}

// ProvideKafkaProducer creates a Kafka producer when snapshots or alerts go to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Sink.Type != "kafka" && !cfg.Kafka.PublishAlerts {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(cfg.Kafka.ProducerOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideSnapshotArchive opens the queryable sink selected by sink.type.
// Kafka and none have no archive, so history is served from memory only.
func ProvideSnapshotArchive(cfg *config.Config, l *applogger.Logger) (repository.SnapshotArchive, func(), error) {
	var archive repository.SnapshotArchive
	switch cfg.Sink.Type {
	case "clickhouse":
		client, err := pkgch.NewClient(append(cfg.ClickHouse.Options(), pkgch.WithMaxConnections(10, 5))...)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		archive = internalrepo.NewClickHouseSnapshotArchive(client, cfg.ClickHouse.Table, l)
	case "sqlite":
		s, err := internalrepo.NewSQLiteSnapshotArchive(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite archive: %w", err)
		}
		archive = s
	default:
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = archive.Close()
		return nil, nil, fmt.Errorf("%s schema: %w", cfg.Sink.Type, err)
	}
	l.Info("snapshot archive ready", applogger.String("sink", cfg.Sink.Type))
	return archive, func() { _ = archive.Close() }, nil
}

// ProvideSnapshotSink picks where computed snapshots are written.
func ProvideSnapshotSink(cfg *config.Config, archive repository.SnapshotArchive, producer *pkgkafka.Producer) repository.SnapshotSink {
	switch {
	case archive != nil:
		return archive
	case cfg.Sink.Type == "kafka" && producer != nil:
		return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SnapshotsTopic, cfg.Kafka.AlertsTopic)
	default:
		return nil
	}
}

func ProvideAlertPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.AlertPublisher {
	if !cfg.Kafka.PublishAlerts || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SnapshotsTopic, cfg.Kafka.AlertsTopic)
}

// ProvidePipeline builds the throttle and retry stage in front of the sink.
func ProvidePipeline(cfg *config.Config, sink repository.SnapshotSink, m repository.Metrics, l *applogger.Logger) *mid.RealtimePipeline {
	if sink == nil {
		return nil
	}
	return mid.NewRealtimePipeline(sink, m,
		mid.WithMaxRPS(int(cfg.Ingest.MaxRPSPerMarket)),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithMaxRetries(cfg.Ingest.MaxRetries),
		mid.WithPipelineLogger(l.With(applogger.String("component", "pipeline"))),
	)
}

func ProvideMonitor(
	ingestor domsvc.Ingestor,
	classifier domsvc.Classifier,
	book repository.SnapshotBook,
	tracker domsvc.HistoryTracker,
	m repository.Metrics,
	pipe *mid.RealtimePipeline,
	alerts repository.AlertPublisher,
	l *applogger.Logger,
) *usecase.Monitor {
	opts := []usecase.MonitorOption{usecase.WithMonitorLogger(l)}
	if pipe != nil {
		opts = append(opts, usecase.WithSinkPipeline(pipe))
	}
	if alerts != nil {
		opts = append(opts, usecase.WithAlertPublisher(alerts))
	}
	return usecase.NewMonitor(ingestor, classifier, book, tracker, m, opts...)
}

// ProvideCache creates the dashboard payload cache.
func ProvideCache(cfg *config.Config) (cache.BytesCache, func(), error) {
	if cfg.Cache.Type != "redis" {
		return cache.NewTTLCache(), func() {}, nil
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func ProvideDashboard(
	cfg *config.Config,
	book repository.SnapshotBook,
	agg domsvc.Aggregator,
	classifier domsvc.Classifier,
	tracker domsvc.HistoryTracker,
	archive repository.SnapshotArchive,
	c cache.BytesCache,
	l *applogger.Logger,
) *usecase.Dashboard {
	opts := []usecase.DashboardOption{
		usecase.WithHeatmapCache(c, cfg.Cache.TTL),
		usecase.WithDefaultTimeframe(repository.Timeframe(cfg.History.DefaultTimeframe)),
		usecase.WithDashboardLogger(l),
	}
	if archive != nil {
		opts = append(opts, usecase.WithArchive(archive, cfg.History.BackfillLimit))
	}
	return usecase.NewDashboard(book, agg, classifier, tracker, opts...)
}

// ProvideRelay creates the streaming relay. The outbound client has no total
// timeout; the inbound request context bounds each call.
func ProvideRelay(cfg *config.Config) *relay.Relay {
	client := xhttp.NewClient(
		xhttp.WithTimeout(0),
		xhttp.WithDialTimeout(cfg.Relay.DialTimeout),
		xhttp.WithHeaderTimeout(cfg.Relay.HeaderTimeout),
	)
	return relay.New(cfg.Relay.UpstreamBase,
		relay.WithClient(client),
		relay.WithMaxBodyBytes(cfg.Relay.MaxBodyBytes),
		relay.WithChunkSize(cfg.Relay.ChunkSize),
	)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHandlers builds every route group served by the HTTP server.
func ProvideHandlers(
	cfg *config.Config,
	l *applogger.Logger,
	r *relay.Relay,
	limiter *ratelimit.Limiter,
	monitor *usecase.Monitor,
	dashboard *usecase.Dashboard,
	archive repository.SnapshotArchive,
) []xhttp.Handler {
	relaymetrics.Register()
	relayHandler := api.NewRelayEchoHandler(l.With(applogger.String("component", "relay")), r,
		api.WithRateLimit(limiter, cfg.Relay.RateLimitPerSec, float64(cfg.Relay.RateLimitBurst)),
	)
	dash := api.NewDashboardEchoHandler(l, monitor, dashboard)
	if archive != nil {
		dash.AddHealthCheck(cfg.Sink.Type, archive)
	}
	return []xhttp.Handler{relayHandler, dash}
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, handlers []xhttp.Handler) *xhttp.Server {
	return xhttp.NewServer(l, handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins...),
	)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	opts := append(cfg.Kafka.ConsumerOptions(), pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))))
	consumer, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaSamplesHandler handles the raw samples topic.
func ProvideKafkaSamplesHandler(cfg *config.Config, monitor *usecase.Monitor, m repository.Metrics, l *applogger.Logger) *usecase.KafkaSamplesHandler {
	return usecase.NewKafkaSamplesHandler(cfg.Kafka.SamplesTopic, monitor, m, l)
}

// ProvideSampleCollector creates the WebSocket collector feed, or nil when disabled.
func ProvideSampleCollector(cfg *config.Config, monitor *usecase.Monitor, m repository.Metrics, l *applogger.Logger) *usecase.SampleCollector {
	if !cfg.Collector.Enabled {
		return nil
	}
	stream := collector.New(collector.Config{
		APIKey:         cfg.Collector.APIKey,
		WebSocketURL:   cfg.Collector.WebSocketURL,
		Markets:        cfg.Collector.Markets,
		ReconnectDelay: cfg.Collector.ReconnectDelay,
		PingInterval:   cfg.Collector.PingInterval,
	}, l)
	return usecase.NewSampleCollector(stream, monitor, m, l,
		usecase.WithLinger(cfg.Ingest.FlushInterval),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	monitor *usecase.Monitor,
	pipe *mid.RealtimePipeline,
	limiter *ratelimit.Limiter,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSamplesHandler,
	sc *usecase.SampleCollector,
) *server.App {
	return server.New(cfg, l, srv, monitor,
		server.WithPipeline(pipe),
		server.WithRateLimiter(limiter),
		server.WithKafkaConsumer(consumer, kh),
		server.WithCollector(sc),
	)
}
