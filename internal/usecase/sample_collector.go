package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"ProbDesk/internal/domain/models"
	drepo "ProbDesk/internal/domain/repository"
	applogger "ProbDesk/pkg/logger"
)

// SampleCollector reads the live collector feed and feeds the monitor.
type SampleCollector struct {
	stream    drepo.SampleStream
	monitor   *Monitor
	metrics   drepo.Metrics
	logger    *applogger.Logger
	batchSize int
	linger    time.Duration
	done      chan struct{}
	started   atomic.Bool
}

type CollectorOption func(*SampleCollector)

// WithLinger sets how long samples wait before a partial batch is ingested.
func WithLinger(d time.Duration) CollectorOption {
	return func(c *SampleCollector) {
		if d > 0 {
			c.linger = d
		}
	}
}

// WithCollectorBatchSize caps how many samples go into one monitor pass.
func WithCollectorBatchSize(n int) CollectorOption {
	return func(c *SampleCollector) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func NewSampleCollector(stream drepo.SampleStream, monitor *Monitor, metrics drepo.Metrics, l *applogger.Logger, opts ...CollectorOption) *SampleCollector {
	if l == nil {
		l = applogger.Nop()
	}
	c := &SampleCollector{
		stream:    stream,
		monitor:   monitor,
		metrics:   metrics,
		logger:    l,
		batchSize: 100,
		linger:    200 * time.Millisecond,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected returns true if the feed is connected.
func (c *SampleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *SampleCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	ch, errCh := c.stream.Read(ctx)
	c.started.Store(true)
	go c.consume(ctx, ch, errCh)
	return nil
}

// consume groups samples into small batches so one monitor pass covers a
// burst of updates.
func (c *SampleCollector) consume(ctx context.Context, ch <-chan *models.RawSample, errCh <-chan error) {
	defer close(c.done)
	ticker := time.NewTicker(c.linger)
	defer ticker.Stop()

	batch := make([]models.RawSample, 0, c.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.monitor.Ingest(ctx, "collector", batch)
		batch = make([]models.RawSample, 0, c.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.logger.Warn("collector stream error, reconnecting", applogger.Error(err))
			flush()
			if !c.reconnect(ctx) {
				return
			}
			ch, errCh = c.stream.Read(ctx)
		case s, ok := <-ch:
			if !ok {
				flush()
				ch = nil
				if errCh == nil {
					return
				}
				continue
			}
			if s == nil {
				continue
			}
			batch = append(batch, *s)
			if len(batch) >= c.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// reconnect retries until the feed is back or ctx ends.
func (c *SampleCollector) reconnect(ctx context.Context) bool {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.logger.Info("collector reconnected")
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("collector reconnect failed", applogger.Error(err))
	}
}

// Shutdown closes the feed.
func (c *SampleCollector) Shutdown(ctx context.Context) error {
	err := c.stream.Close()
	if !c.started.Load() {
		return err
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return err
}
