package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ProbDesk/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleIngested(string)         {}
func (nopMetrics) RecordSampleRejected(string, string) {}
func (nopMetrics) RecordAlert(models.Severity)         {}
func (nopMetrics) RecordDivergence(string, float64)    {}
func (nopMetrics) RecordError(string)                  {}
func (nopMetrics) RecordLatency(string, float64)       {}

type flakySink struct {
	mu     sync.Mutex
	fails  int
	calls  int
	stored []models.ProbabilitySnapshot
}

func (s *flakySink) StoreBatch(_ context.Context, b []models.ProbabilitySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fails > 0 {
		s.fails--
		return errors.New("sink down")
	}
	s.stored = append(s.stored, b...)
	return nil
}

func (s *flakySink) Close() error { return nil }

func (s *flakySink) storedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func snaps(ids ...string) []models.ProbabilitySnapshot {
	out := make([]models.ProbabilitySnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ProbabilitySnapshot{MarketID: id, Timestamp: time.Now()})
	}
	return out
}

func TestPipelineForwardsToSink(t *testing.T) {
	sink := &flakySink{}
	p := NewRealtimePipeline(sink, nopMetrics{}, WithMaxRPS(0))
	if err := p.Process(context.Background(), snaps("a", "b", "a")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if sink.storedLen() != 3 {
		t.Fatalf("stored = %d, want 3", sink.storedLen())
	}
}

func TestPipelineThrottlesPerMarket(t *testing.T) {
	sink := &flakySink{}
	p := NewRealtimePipeline(sink, nopMetrics{}, WithMaxRPS(2))
	if err := p.Process(context.Background(), snaps("a", "a", "a", "a", "b")); err != nil {
		t.Fatalf("process: %v", err)
	}
	// bucket capacity 2 for a, b untouched
	if got := sink.storedLen(); got != 3 {
		t.Fatalf("stored = %d, want 3", got)
	}
}

func TestPipelineRetriesBufferedBatch(t *testing.T) {
	sink := &flakySink{fails: 2}
	p := NewRealtimePipeline(sink, nopMetrics{},
		WithMaxRPS(0),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithMaxRetries(5),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, snaps("a", "b")); err == nil {
		t.Fatal("expected downstream error on first write")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.storedLen() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.storedLen() != 2 {
		t.Fatalf("stored = %d, want 2 after retry", sink.storedLen())
	}
}

func TestPipelineDropsAfterMaxRetries(t *testing.T) {
	sink := &flakySink{fails: 100}
	p := NewRealtimePipeline(sink, nopMetrics{},
		WithMaxRPS(0),
		WithBackoff(time.Millisecond, time.Millisecond),
		WithMaxRetries(3),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	_ = p.Process(ctx, snaps("a"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		calls := sink.calls
		sink.mu.Unlock()
		if calls >= 3 && p.Buffered() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	sink.mu.Lock()
	calls := sink.calls
	sink.mu.Unlock()
	if calls != 3 {
		t.Fatalf("sink calls = %d, want 3", calls)
	}
}
