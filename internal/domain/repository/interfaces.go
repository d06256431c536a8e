package repository

import (
	"context"
	"time"

	"ProbDesk/internal/domain/models"
)

// SampleStream is a live feed of raw samples (collector side).
type SampleStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.RawSample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// SnapshotSink receives computed snapshots. Implementations: archive or publisher.
type SnapshotSink interface {
	StoreBatch(ctx context.Context, snapshots []models.ProbabilitySnapshot) error
	Close() error
}

// SnapshotArchive is a queryable snapshot store used for history backfill.
type SnapshotArchive interface {
	SnapshotSink
	Init(ctx context.Context) error // ensure tables
	Query(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.ProbabilitySnapshot, error)
	Health(ctx context.Context) error
}

type AlertPublisher interface {
	PublishAlerts(ctx context.Context, alerts []models.DivergenceAlert) error
	Close() error
}

// SnapshotBook holds the latest snapshot per market.
type SnapshotBook interface {
	Put(snapshots ...models.ProbabilitySnapshot)
	Snapshot() []models.ProbabilitySnapshot // point-in-time copy
	Get(marketID string) (models.ProbabilitySnapshot, bool)
	Len() int
}

type Metrics interface {
	RecordSampleIngested(source string)
	RecordSampleRejected(source, reason string)
	RecordAlert(severity models.Severity)
	RecordDivergence(marketID string, divergence float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
