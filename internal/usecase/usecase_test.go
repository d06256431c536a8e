package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ProbDesk/internal/domain/models"
	drepo "ProbDesk/internal/domain/repository"
	mid "ProbDesk/internal/middleware"
	"ProbDesk/internal/repository"
	"ProbDesk/internal/service/cache"
	"ProbDesk/internal/services/divergence"
	"ProbDesk/internal/services/history"
)

type recMetrics struct {
	mu       sync.Mutex
	ingested int
	rejected int
	alerts   map[models.Severity]int
	errs     map[string]int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{alerts: map[models.Severity]int{}, errs: map[string]int{}}
}

func (m *recMetrics) RecordSampleIngested(string) { m.mu.Lock(); m.ingested++; m.mu.Unlock() }
func (m *recMetrics) RecordSampleRejected(string, string) {
	m.mu.Lock()
	m.rejected++
	m.mu.Unlock()
}
func (m *recMetrics) RecordAlert(s models.Severity)    { m.mu.Lock(); m.alerts[s]++; m.mu.Unlock() }
func (m *recMetrics) RecordDivergence(string, float64) {}
func (m *recMetrics) RecordError(kind string)          { m.mu.Lock(); m.errs[kind]++; m.mu.Unlock() }
func (m *recMetrics) RecordLatency(string, float64)    {}

type memAlerts struct {
	mu   sync.Mutex
	got  []models.DivergenceAlert
	fail error
}

func (p *memAlerts) PublishAlerts(_ context.Context, a []models.DivergenceAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, a...)
	return nil
}

func (p *memAlerts) Close() error { return nil }

type fixture struct {
	calc    *divergence.Calculator
	book    drepo.SnapshotBook
	tracker *history.Tracker
	class   *divergence.Classifier
	metrics *recMetrics
	monitor *Monitor
}

func newFixture(t *testing.T, opts ...MonitorOption) *fixture {
	t.Helper()
	calc := divergence.NewCalculator()
	class, err := divergence.NewClassifier(models.AlertThresholds{Low: 5, Medium: 15, High: 30})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	f := &fixture{
		calc:    calc,
		book:    repository.NewMemorySnapshotBook(divergence.MergeLatestTimestamp),
		tracker: history.NewTracker(),
		class:   class,
		metrics: newRecMetrics(),
	}
	opts = append([]MonitorOption{WithBatchIDs(func() string { return "batch-1" })}, opts...)
	f.monitor = NewMonitor(divergence.NewIngestor(calc), class, f.book, f.tracker, f.metrics, opts...)
	return f
}

func (f *fixture) dashboard(opts ...DashboardOption) *Dashboard {
	return NewDashboard(f.book, divergence.NewAggregator(f.calc, divergence.MergeLatestTimestamp), f.class, f.tracker, opts...)
}

func sample(id string, price, ai float64, ts time.Time) models.RawSample {
	return models.RawSample{
		MarketID:       id,
		MarketQuestion: "Will " + id + " happen?",
		MarketPrice:    price,
		AIProbability:  ai,
		Timestamp:      models.SampleTime{Time: ts},
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMonitorIngestFansOut(t *testing.T) {
	pub := &memAlerts{}
	f := newFixture(t, WithAlertPublisher(pub))

	res := f.monitor.Ingest(context.Background(), "http", []models.RawSample{
		sample("m1", 0.40, 0.55, t0), // +37.5% HIGH bullish
		{MarketQuestion: "no id"},
		sample("m2", 0.50, 0.51, t0), // +2% no alert
	})

	if res.BatchID != "batch-1" {
		t.Fatalf("batch id = %q", res.BatchID)
	}
	if res.Accepted != 2 || len(res.Rejected) != 1 || res.Rejected[0].Index != 1 {
		t.Fatalf("accepted=%d rejected=%+v", res.Accepted, res.Rejected)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].MarketID != "m1" || res.Alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("alerts = %+v", res.Alerts)
	}
	if res.Alerts[0].Direction != models.DirectionBullish {
		t.Fatalf("direction = %s", res.Alerts[0].Direction)
	}
	if f.book.Len() != 2 {
		t.Fatalf("book len = %d", f.book.Len())
	}
	if h, ok := f.tracker.Get("m1", drepo.TFAll); !ok || len(h.Points) != 1 {
		t.Fatalf("history = %+v ok=%v", h, ok)
	}
	if len(pub.got) != 1 {
		t.Fatalf("published = %d", len(pub.got))
	}
	if f.metrics.ingested != 2 || f.metrics.rejected != 1 || f.metrics.alerts[models.SeverityHigh] != 1 {
		t.Fatalf("metrics = %+v", f.metrics)
	}
}

func TestMonitorIngestEmptyBatch(t *testing.T) {
	f := newFixture(t)
	res := f.monitor.Ingest(context.Background(), "http", []models.RawSample{{}})
	if res.Accepted != 0 || len(res.Rejected) != 1 {
		t.Fatalf("res = %+v", res)
	}
	if res.Alerts == nil {
		t.Fatal("alerts should be an empty slice")
	}
}

func TestMonitorPublishFailureIsNotFatal(t *testing.T) {
	pub := &memAlerts{fail: errors.New("broker down")}
	f := newFixture(t, WithAlertPublisher(pub))
	res := f.monitor.Ingest(context.Background(), "kafka", []models.RawSample{sample("m1", 0.2, 0.6, t0)})
	if res.Accepted != 1 || len(res.Alerts) != 1 {
		t.Fatalf("res = %+v", res)
	}
	if f.metrics.errs["alerts_publish"] != 1 {
		t.Fatalf("errs = %+v", f.metrics.errs)
	}
}

func TestMonitorForwardsToSink(t *testing.T) {
	archive, err := repository.NewSQLiteSnapshotArchive(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer archive.Close()
	if err := archive.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	metrics := newRecMetrics()
	pipe := mid.NewRealtimePipeline(archive, metrics, mid.WithMaxRPS(0))
	f := newFixture(t, WithSinkPipeline(pipe))

	f.monitor.Ingest(context.Background(), "http", []models.RawSample{
		sample("m1", 0.4, 0.5, t0),
		sample("m1", 0.45, 0.5, t0.Add(time.Minute)),
	})

	rows, err := archive.Query(context.Background(), "m1", time.Unix(0, 0), t0.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("archived rows = %d, want 2", len(rows))
	}
}

func TestDashboardHeatmapCached(t *testing.T) {
	f := newFixture(t)
	ttl := cache.NewTTLCache()
	d := f.dashboard(WithHeatmapCache(ttl, time.Minute))

	f.monitor.Ingest(context.Background(), "http", []models.RawSample{sample("b", 0.5, 0.6, t0), sample("a", 0.5, 0.4, t0)})
	first, err := d.Heatmap(context.Background())
	if err != nil {
		t.Fatalf("heatmap: %v", err)
	}
	if first.TotalMarkets != 2 || first.Cells[0].MarketID != "a" {
		t.Fatalf("heatmap = %+v", first)
	}

	f.monitor.Ingest(context.Background(), "http", []models.RawSample{sample("c", 0.5, 0.6, t0)})
	second, _ := d.Heatmap(context.Background())
	if second.TotalMarkets != 2 {
		t.Fatalf("cached heatmap should still hold 2 markets, got %d", second.TotalMarkets)
	}

	uncached := f.dashboard()
	fresh, _ := uncached.Heatmap(context.Background())
	if fresh.TotalMarkets != 3 {
		t.Fatalf("fresh heatmap markets = %d", fresh.TotalMarkets)
	}
}

func TestDashboardAlertsOverride(t *testing.T) {
	f := newFixture(t)
	d := f.dashboard()
	f.monitor.Ingest(context.Background(), "http", []models.RawSample{sample("m1", 0.50, 0.55, t0)}) // +10%

	alerts, used, err := d.Alerts(context.Background(), d.DefaultThresholds())
	if err != nil || len(alerts) != 1 || alerts[0].Severity != models.SeverityLow {
		t.Fatalf("default alerts = %+v err=%v", alerts, err)
	}
	if used != d.DefaultThresholds() {
		t.Fatalf("used = %+v", used)
	}

	alerts, _, err = d.Alerts(context.Background(), models.AlertThresholds{Low: 1, Medium: 2, High: 3})
	if err != nil || len(alerts) != 1 || alerts[0].Severity != models.SeverityHigh {
		t.Fatalf("override alerts = %+v err=%v", alerts, err)
	}

	_, _, err = d.Alerts(context.Background(), models.AlertThresholds{Low: 20, Medium: 10, High: 30})
	var cerr *models.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
}

func TestDashboardHistoryBackfill(t *testing.T) {
	archive, err := repository.NewSQLiteSnapshotArchive(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer archive.Close()
	ctx := context.Background()
	if err := archive.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	calc := divergence.NewCalculator()
	var rows []models.ProbabilitySnapshot
	for i := 0; i < 3; i++ {
		rows = append(rows, calc.Compute(models.ProbabilitySnapshot{
			MarketID:           "old",
			MarketQuestion:     "Archived?",
			Timestamp:          t0.Add(time.Duration(i) * time.Hour),
			MarketPrice:        0.3,
			ImpliedProbability: 0.3,
			AIProbability:      0.4,
		}))
	}
	if err := archive.StoreBatch(ctx, rows); err != nil {
		t.Fatalf("store: %v", err)
	}

	f := newFixture(t)
	d := f.dashboard(WithArchive(archive, 100))

	h, err := d.History(ctx, "old", drepo.TFAll)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h.Points) != 3 || h.MarketQuestion != "Archived?" {
		t.Fatalf("history = %+v", h)
	}
	if !h.Points[0].Timestamp.Equal(t0) {
		t.Fatalf("first point = %v", h.Points[0].Timestamp)
	}

	h, _ = d.History(ctx, "old", drepo.TF1h)
	if len(h.Points) != 2 {
		t.Fatalf("1h window points = %d, want 2", len(h.Points))
	}

	if _, err := d.History(ctx, "missing", drepo.TF24h); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("want ErrMarketNotFound, got %v", err)
	}
}

func TestDashboardHistoryWithoutArchive(t *testing.T) {
	f := newFixture(t)
	d := f.dashboard()
	if _, err := d.History(context.Background(), "nope", drepo.TF24h); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("want ErrMarketNotFound, got %v", err)
	}
}

func TestMonitorIngestEncodedKeepsIndexes(t *testing.T) {
	f := newFixture(t)
	items := []json.RawMessage{
		json.RawMessage(`{"market_question":"no id","market_price":0.3}`),
		json.RawMessage(`{"market_id":"m1","market_price":0.4,"ai_probability":0.5}`),
		json.RawMessage(`{"market_id":"m2","market_price":[0.4]}`),
		json.RawMessage(`"not an object"`),
		json.RawMessage(`{"market_id":"m3","market_price":0.6,"ai_probability":0.6,"timestamp":-5}`),
	}
	res := f.monitor.IngestEncoded(context.Background(), "http", items)
	if res.Accepted != 2 {
		t.Fatalf("accepted = %d, want 2", res.Accepted)
	}
	want := []int{0, 2, 3}
	if len(res.Rejected) != len(want) {
		t.Fatalf("rejected = %+v", res.Rejected)
	}
	for i, r := range res.Rejected {
		if r.Index != want[i] {
			t.Fatalf("rejection %d index = %d, want %d", i, r.Index, want[i])
		}
	}
	if res.Rejected[1].MarketID != "m2" {
		t.Fatalf("undecodable sample should keep its market id: %+v", res.Rejected[1])
	}
}
