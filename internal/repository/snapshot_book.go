package repository

import (
	"sort"
	"sync"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"
	"ProbDesk/internal/services/divergence"
)

// MemorySnapshotBook keeps the latest snapshot per market.
// Readers get a point-in-time copy and never observe a partial update.
type MemorySnapshotBook struct {
	mu    sync.RWMutex
	merge divergence.MergeStrategy
	m     map[string]models.ProbabilitySnapshot
}

func NewMemorySnapshotBook(merge divergence.MergeStrategy) domrepo.SnapshotBook {
	if merge == "" {
		merge = divergence.MergeLatestTimestamp
	}
	return &MemorySnapshotBook{merge: merge, m: make(map[string]models.ProbabilitySnapshot)}
}

func (b *MemorySnapshotBook) Put(snapshots ...models.ProbabilitySnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range snapshots {
		if s.MarketID == "" {
			continue
		}
		if cur, ok := b.m[s.MarketID]; ok && !b.merge.Prefer(cur, s) {
			continue
		}
		b.m[s.MarketID] = s
	}
}

func (b *MemorySnapshotBook) Snapshot() []models.ProbabilitySnapshot {
	b.mu.RLock()
	out := make([]models.ProbabilitySnapshot, 0, len(b.m))
	for _, s := range b.m {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

func (b *MemorySnapshotBook) Get(marketID string) (models.ProbabilitySnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.m[marketID]
	return s, ok
}

func (b *MemorySnapshotBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}
