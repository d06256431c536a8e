package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"
	"ProbDesk/internal/service/ratelimit"
	applogger "ProbDesk/pkg/logger"
)

// RealtimePipeline sits between ingestion and the snapshot sink.
// It throttles per market and buffers batches while the sink is unavailable.
type RealtimePipeline struct {
	sink       domrepo.SnapshotSink
	metrics    domrepo.Metrics
	logger     *applogger.Logger
	limiter    *ratelimit.Limiter
	maxRPS     int
	bufSize    int
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	bufCh      chan pending
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
	mu         sync.Mutex
}

type pending struct {
	batch    []models.ProbabilitySnapshot
	attempts int
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max snapshots per second per market forwarded to the sink.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many failed batches are held for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxRetries bounds the retry attempts of a buffered batch.
func WithMaxRetries(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithBackoff sets the initial and maximum retry delay.
func WithBackoff(initial, max time.Duration) PipelineOption {
	return func(p *RealtimePipeline) {
		if initial > 0 {
			p.backoff = initial
		}
		if max >= p.backoff {
			p.maxBackoff = max
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewRealtimePipeline creates a new pipeline in front of sink.
func NewRealtimePipeline(sink domrepo.SnapshotSink, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:       sink,
		metrics:    metrics,
		logger:     applogger.Nop(),
		limiter:    ratelimit.New(),
		maxRPS:     20,
		bufSize:    1000,
		maxRetries: 5,
		backoff:    50 * time.Millisecond,
		maxBackoff: 2 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan pending, p.bufSize)
	return p
}

// Start launches background flushing of buffered batches.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := p.backoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case item := <-p.bufCh:
				if err := p.sink.StoreBatch(ctx, item.batch); err != nil {
					item.attempts++
					p.metrics.RecordError("pipeline_flush")
					if item.attempts >= p.maxRetries {
						p.metrics.RecordError("pipeline_drop")
						p.logger.Error("dropping snapshot batch after retries",
							applogger.Int("size", len(item.batch)),
							applogger.Int("attempts", item.attempts),
							applogger.Error(err))
					} else {
						p.enqueue(item)
					}
					if backoff < p.maxBackoff {
						backoff *= 2
						if backoff > p.maxBackoff {
							backoff = p.maxBackoff
						}
					}
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return
					case <-p.stopCh:
						return
					}
					continue
				}
				backoff = p.backoff
				p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
			}
		}
	}()
}

// Stop stops the background flushing and waits for it to exit.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
	if n := len(p.bufCh); n > 0 {
		p.logger.Warn("pipeline stopped with buffered batches", applogger.Int("batches", n))
	}
}

// Process throttles snapshots per market and forwards the rest to the sink.
// A failed write is buffered for retry and the error is returned.
func (p *RealtimePipeline) Process(ctx context.Context, snapshots []models.ProbabilitySnapshot) error {
	start := time.Now()
	batch := make([]models.ProbabilitySnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if !p.allow(s.MarketID) {
			p.metrics.RecordError("pipeline_throttle")
			continue
		}
		batch = append(batch, s)
	}
	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.StoreBatch(ctx, batch); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(pending{batch: batch, attempts: 1})
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports the number of batches awaiting retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

func (p *RealtimePipeline) enqueue(item pending) {
	select {
	case p.bufCh <- item:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		p.logger.Warn("pipeline buffer full, dropping batch", applogger.Int("size", len(item.batch)))
	}
}

func (p *RealtimePipeline) allow(marketID string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	rate := float64(p.maxRPS)
	return p.limiter.Allow(marketID, rate, rate)
}
