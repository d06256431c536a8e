package divergence

import (
	"errors"
	"math"
	"testing"
	"time"

	"ProbDesk/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIngestor() *Ingestor {
	return NewIngestor(NewCalculator(), WithClock(func() time.Time { return fixedNow }))
}

func ptr(v float64) *float64 { return &v }

func TestIngestScenarioM1(t *testing.T) {
	snap, err := newTestIngestor().Ingest(models.RawSample{MarketID: "M1", MarketPrice: 0.40, AIProbability: 0.70})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.ImpliedProbability != 0.40 {
		t.Fatalf("implied should default to market price, got %v", snap.ImpliedProbability)
	}
	if math.Abs(snap.Divergence-0.30) > tolerance {
		t.Fatalf("divergence = %v, want 0.30", snap.Divergence)
	}
	if math.Abs(snap.DivergencePercent-75) > 1e-6 {
		t.Fatalf("percent = %v, want 75", snap.DivergencePercent)
	}

	cls, err := NewClassifier(models.AlertThresholds{Low: 5, Medium: 15, High: 30})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	alert, ok := cls.Classify(snap)
	if !ok || alert.Severity != models.SeverityHigh {
		t.Fatalf("expected HIGH alert, got %+v ok=%v", alert, ok)
	}
	if alert.Direction != models.DirectionBullish {
		t.Fatalf("expected bullish, got %s", alert.Direction)
	}
}

func TestIngestDefaultsTimestamp(t *testing.T) {
	snap, err := newTestIngestor().Ingest(models.RawSample{MarketID: "M1", MarketPrice: 0.5, AIProbability: 0.5})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !snap.Timestamp.Equal(fixedNow) {
		t.Fatalf("timestamp = %v, want %v", snap.Timestamp, fixedNow)
	}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snap, _ = newTestIngestor().Ingest(models.RawSample{MarketID: "M1", Timestamp: models.SampleTime{Time: ts}})
	if !snap.Timestamp.Equal(ts) {
		t.Fatalf("upstream timestamp not kept: %v", snap.Timestamp)
	}
}

func TestIngestClampsNoise(t *testing.T) {
	snap, err := newTestIngestor().Ingest(models.RawSample{
		MarketID:           " M2 ",
		MarketPrice:        1.4,
		ImpliedProbability: ptr(math.NaN()),
		AIProbability:      math.Inf(-1),
		Volume24h:          ptr(-10),
		ConfidenceScore:    ptr(2),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.MarketID != "M2" {
		t.Fatalf("market id not trimmed: %q", snap.MarketID)
	}
	if snap.MarketPrice != 1 || snap.ImpliedProbability != 0 || snap.AIProbability != 0 {
		t.Fatalf("unexpected clamp result %+v", snap)
	}
	if *snap.Volume24h != 0 || *snap.ConfidenceScore != 1 {
		t.Fatalf("optional fields not normalized: vol=%v conf=%v", *snap.Volume24h, *snap.ConfidenceScore)
	}
}

func TestIngestRequiresMarketID(t *testing.T) {
	for _, id := range []string{"", "   "} {
		_, err := newTestIngestor().Ingest(models.RawSample{MarketID: id, MarketPrice: 0.5})
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %q, got %v", id, err)
		}
		if verr.Field != "market_id" {
			t.Fatalf("unexpected field %q", verr.Field)
		}
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	snaps, rejected := newTestIngestor().IngestBatch([]models.RawSample{
		{MarketID: "A", MarketPrice: 0.2, AIProbability: 0.3},
		{MarketID: "", MarketPrice: 0.2, AIProbability: 0.3},
		{MarketID: "B", MarketPrice: 0.6, AIProbability: 0.1},
	})
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if len(rejected) != 1 || rejected[0].Index != 1 {
		t.Fatalf("unexpected rejections %+v", rejected)
	}
}
