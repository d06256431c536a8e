package service

import (
	"ProbDesk/internal/domain/models"
	"ProbDesk/internal/domain/repository"
)

// Ingestor normalizes raw collector samples into snapshots.
type Ingestor interface {
	Ingest(raw models.RawSample) (models.ProbabilitySnapshot, error)
	IngestBatch(raws []models.RawSample) ([]models.ProbabilitySnapshot, []models.Rejection)
}

// Calculator derives divergence for a snapshot.
type Calculator interface {
	Compute(s models.ProbabilitySnapshot) models.ProbabilitySnapshot
	ColorIntensity(divergence float64) float64
}

// Classifier maps a snapshot to an alert, or reports none.
type Classifier interface {
	Classify(s models.ProbabilitySnapshot) (models.DivergenceAlert, bool)
	ClassifyAll(snapshots []models.ProbabilitySnapshot) []models.DivergenceAlert
	Thresholds() models.AlertThresholds
}

// Aggregator builds the heatmap grid from a snapshot set.
type Aggregator interface {
	Aggregate(snapshots []models.ProbabilitySnapshot) models.HeatmapData
}

// HistoryTracker owns the per-market bounded series.
type HistoryTracker interface {
	Append(marketID string, point models.ProbabilityHistoryPoint)
	Record(s models.ProbabilitySnapshot)
	Get(marketID string, tf repository.Timeframe) (models.MarketProbabilityHistory, bool)
	Markets() []string
}
