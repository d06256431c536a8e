package divergence

import (
	"math"
	"strings"
	"time"

	"ProbDesk/internal/domain/models"
)

// Ingestor turns raw samples into computed snapshots. Pure apart from the clock.
type Ingestor struct {
	calc *Calculator
	now  func() time.Time
}

type IngestorOption func(*Ingestor)

// WithClock overrides the ingestion instant used for missing timestamps.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

func NewIngestor(calc *Calculator, opts ...IngestorOption) *Ingestor {
	if calc == nil {
		calc = NewCalculator()
	}
	i := &Ingestor{calc: calc, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Ingestor) Ingest(raw models.RawSample) (models.ProbabilitySnapshot, error) {
	marketID := strings.TrimSpace(raw.MarketID)
	if marketID == "" {
		return models.ProbabilitySnapshot{}, models.NewValidationError("market_id", "is required")
	}

	ts := raw.Timestamp.Time
	if ts.IsZero() {
		ts = i.now()
	}

	price := Clamp(raw.MarketPrice)
	implied := price
	if raw.ImpliedProbability != nil {
		implied = Clamp(*raw.ImpliedProbability)
	}

	snap := models.ProbabilitySnapshot{
		MarketID:           marketID,
		MarketQuestion:     raw.MarketQuestion,
		Category:           raw.Category,
		Timestamp:          ts.UTC(),
		MarketPrice:        price,
		ImpliedProbability: implied,
		AIProbability:      Clamp(raw.AIProbability),
		Volume24h:          nonNegative(raw.Volume24h),
		LiquidityDepth:     nonNegative(raw.LiquidityDepth),
		ConfidenceScore:    clampPtr(raw.ConfidenceScore),
	}
	return i.calc.Compute(snap), nil
}

// IngestBatch isolates per-sample failures; rejections keep the input index.
func (i *Ingestor) IngestBatch(raws []models.RawSample) ([]models.ProbabilitySnapshot, []models.Rejection) {
	out := make([]models.ProbabilitySnapshot, 0, len(raws))
	var rejected []models.Rejection
	for idx, raw := range raws {
		snap, err := i.Ingest(raw)
		if err != nil {
			rejected = append(rejected, models.Rejection{Index: idx, MarketID: raw.MarketID, Reason: err.Error()})
			continue
		}
		out = append(out, snap)
	}
	return out, rejected
}

func nonNegative(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	x := math.Max(0, *v)
	return &x
}

func clampPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := Clamp(*v)
	return &x
}
