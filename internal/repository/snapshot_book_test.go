package repository

import (
	"sync"
	"testing"
	"time"

	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/services/divergence"
)

func TestSnapshotBookKeepsLatest(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewMemorySnapshotBook(divergence.MergeLatestTimestamp)
	b.Put(
		models.ProbabilitySnapshot{MarketID: "B", Timestamp: t0, AIProbability: 0.2},
		models.ProbabilitySnapshot{MarketID: "A", Timestamp: t0.Add(time.Minute), AIProbability: 0.9},
		models.ProbabilitySnapshot{MarketID: "A", Timestamp: t0, AIProbability: 0.1},
		models.ProbabilitySnapshot{MarketID: ""},
	)

	snap := b.Snapshot()
	if len(snap) != 2 || snap[0].MarketID != "A" || snap[1].MarketID != "B" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap[0].AIProbability != 0.9 {
		t.Fatalf("stale snapshot replaced newer one: %v", snap[0].AIProbability)
	}

	snap[0].AIProbability = 0
	if got, _ := b.Get("A"); got.AIProbability != 0.9 {
		t.Fatalf("Snapshot must return a copy")
	}
}

func TestSnapshotBookConcurrentReaders(t *testing.T) {
	b := NewMemorySnapshotBook("")
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Put(models.ProbabilitySnapshot{MarketID: string(rune('A' + w)), Timestamp: time.Unix(int64(i), 0)})
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = b.Snapshot()
			}
		}()
	}
	wg.Wait()
	if b.Len() != 4 {
		t.Fatalf("expected 4 markets, got %d", b.Len())
	}
}
