package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"ProbDesk/internal/domain/models"
	drepo "ProbDesk/internal/domain/repository"
	domsvc "ProbDesk/internal/domain/service"
	mid "ProbDesk/internal/middleware"
	applogger "ProbDesk/pkg/logger"

	"github.com/google/uuid"
)

// Monitor runs raw samples through ingestion and fans the snapshots out to
// the latest-snapshot book, history, the optional sink and the alert publisher.
type Monitor struct {
	ingestor   domsvc.Ingestor
	classifier domsvc.Classifier
	book       drepo.SnapshotBook
	tracker    domsvc.HistoryTracker
	pipe       *mid.RealtimePipeline
	alerts     drepo.AlertPublisher
	metrics    drepo.Metrics
	logger     *applogger.Logger
	newID      func() string
}

type MonitorOption func(*Monitor)

// WithSinkPipeline forwards accepted snapshots to a sink through the pipeline.
func WithSinkPipeline(p *mid.RealtimePipeline) MonitorOption {
	return func(m *Monitor) { m.pipe = p }
}

// WithAlertPublisher publishes the alerts produced by each pass.
func WithAlertPublisher(p drepo.AlertPublisher) MonitorOption {
	return func(m *Monitor) { m.alerts = p }
}

func WithMonitorLogger(l *applogger.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithBatchIDs(fn func() string) MonitorOption {
	return func(m *Monitor) { m.newID = fn }
}

func NewMonitor(
	ingestor domsvc.Ingestor,
	classifier domsvc.Classifier,
	book drepo.SnapshotBook,
	tracker domsvc.HistoryTracker,
	metrics drepo.Metrics,
	opts ...MonitorOption,
) *Monitor {
	m := &Monitor{
		ingestor:   ingestor,
		classifier: classifier,
		book:       book,
		tracker:    tracker,
		metrics:    metrics,
		logger:     applogger.Nop(),
		newID:      func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ingest processes one batch from source. Per-sample failures end up in
// Rejected and never abort the batch; sink and publisher failures are logged.
func (m *Monitor) Ingest(ctx context.Context, source string, raws []models.RawSample) models.IngestResult {
	return m.ingest(ctx, source, raws, nil, nil)
}

// IngestEncoded decodes every element on its own. An element that does not
// decode as a sample is rejected at its index and the rest still ingest.
func (m *Monitor) IngestEncoded(ctx context.Context, source string, items []json.RawMessage) models.IngestResult {
	raws := make([]models.RawSample, 0, len(items))
	positions := make([]int, 0, len(items))
	var malformed []models.Rejection
	for idx, item := range items {
		raw, err := models.DecodeRawSample(item)
		if err != nil {
			m.logger.Debug("sample decode failed",
				applogger.String("source", source),
				applogger.Int("index", idx),
				applogger.Error(err))
			malformed = append(malformed, models.Rejection{Index: idx, MarketID: raw.MarketID, Reason: errMalformedSample.Error()})
			continue
		}
		raws = append(raws, raw)
		positions = append(positions, idx)
	}
	return m.ingest(ctx, source, raws, positions, malformed)
}

var errMalformedSample = models.NewValidationError("sample", "is not a valid sample object")

// ingest runs the pipeline. positions maps raws back to the caller's
// indexes when some elements were dropped before ingestion; malformed
// carries those drops.
func (m *Monitor) ingest(ctx context.Context, source string, raws []models.RawSample, positions []int, malformed []models.Rejection) models.IngestResult {
	start := time.Now()
	res := models.IngestResult{BatchID: m.newID()}

	snapshots, rejected := m.ingestor.IngestBatch(raws)
	if positions != nil {
		for i := range rejected {
			rejected[i].Index = positions[rejected[i].Index]
		}
	}
	if len(malformed) > 0 {
		rejected = append(rejected, malformed...)
		sort.Slice(rejected, func(i, j int) bool { return rejected[i].Index < rejected[j].Index })
	}
	res.Accepted = len(snapshots)
	res.Rejected = rejected
	if res.Rejected == nil {
		res.Rejected = []models.Rejection{}
	}
	for _, r := range rejected {
		m.metrics.RecordSampleRejected(source, r.Reason)
		m.logger.Warn("sample rejected",
			applogger.String("source", source),
			applogger.String("batch_id", res.BatchID),
			applogger.Int("index", r.Index),
			applogger.String("reason", r.Reason))
	}
	if len(snapshots) == 0 {
		res.Alerts = []models.DivergenceAlert{}
		return res
	}

	m.book.Put(snapshots...)
	for _, s := range snapshots {
		m.tracker.Record(s)
		m.metrics.RecordSampleIngested(source)
		m.metrics.RecordDivergence(s.MarketID, s.Divergence)
	}
	res.Snapshots = snapshots

	if m.pipe != nil {
		if err := m.pipe.Process(ctx, snapshots); err != nil {
			m.logger.Warn("snapshot sink unavailable, batch buffered",
				applogger.String("batch_id", res.BatchID),
				applogger.Error(err))
		}
	}

	res.Alerts = m.classifier.ClassifyAll(snapshots)
	for _, a := range res.Alerts {
		m.metrics.RecordAlert(a.Severity)
	}
	if m.alerts != nil && len(res.Alerts) > 0 {
		if err := m.alerts.PublishAlerts(ctx, res.Alerts); err != nil {
			m.metrics.RecordError("alerts_publish")
			m.logger.Error("publish alerts failed",
				applogger.String("batch_id", res.BatchID),
				applogger.Int("alerts", len(res.Alerts)),
				applogger.Error(err))
		}
	}

	m.metrics.RecordLatency("ingest_batch", time.Since(start).Seconds())
	return res
}

// Shutdown stops the sink pipeline.
func (m *Monitor) Shutdown() {
	if m.pipe != nil {
		m.pipe.Stop()
	}
}
