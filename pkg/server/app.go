package server

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	mid "ProbDesk/internal/middleware"
	"ProbDesk/internal/service/ratelimit"
	"ProbDesk/internal/usecase"
	"ProbDesk/pkg/config"
	xhttp "ProbDesk/pkg/http"
	pkgkafka "ProbDesk/pkg/kafka"
	applogger "ProbDesk/pkg/logger"
)

const limiterIdle = 10 * time.Minute

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	monitor    *usecase.Monitor
	pipe       *mid.RealtimePipeline
	limiter    *ratelimit.Limiter
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	collector  *usecase.SampleCollector
}

type Option func(*App)

func WithPipeline(p *mid.RealtimePipeline) Option {
	return func(a *App) { a.pipe = p }
}

// WithRateLimiter lets the app prune idle relay buckets.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(a *App) { a.limiter = l }
}

func WithKafkaConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.kh = h
	}
}

func WithCollector(c *usecase.SampleCollector) Option {
	return func(a *App) { a.collector = c }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, monitor *usecase.Monitor, opts ...Option) *App {
	a := &App{cfg: cfg, log: l, httpServer: srv, monitor: monitor}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.pipe != nil {
		a.pipe.Start(runCtx)
		a.log.Info("snapshot pipeline started", applogger.String("sink", a.cfg.Sink.Type))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(runCtx); err != nil {
				a.log.Error("collector error", applogger.Error(err))
			}
		}()
		a.log.Info("collector started", applogger.Strings("markets", a.cfg.Collector.Markets))
	}

	if a.limiter != nil {
		go a.pruneLimiter(runCtx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(limiterIdle); n > 0 {
				a.log.Debug("pruned idle rate limit buckets", applogger.Int("count", n))
			}
		}
	}
}

// shutdown stops intake first, then drains the sink pipeline.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.log.Info("shutting down...")

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.monitor.Shutdown()

	a.log.Info("shutdown complete")
	return nil
}
