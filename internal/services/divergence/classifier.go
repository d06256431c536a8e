package divergence

import (
	"math"

	"ProbDesk/internal/domain/models"
)

type recommendationKey struct {
	severity  models.Severity
	direction models.Direction
}

var recommendations = map[recommendationKey]string{
	{models.SeverityLow, models.DirectionBullish}:    "Monitor: AI slightly above market",
	{models.SeverityLow, models.DirectionBearish}:    "Monitor: AI slightly below market",
	{models.SeverityMedium, models.DirectionBullish}: "Consider position review: market may be underpricing",
	{models.SeverityMedium, models.DirectionBearish}: "Consider position review: market may be overpricing",
	{models.SeverityHigh, models.DirectionBullish}:   "Immediate review recommended: strong bullish divergence",
	{models.SeverityHigh, models.DirectionBearish}:   "Immediate review recommended: strong bearish divergence",
}

// Recommendation returns the fixed directive for a severity and direction.
func Recommendation(sev models.Severity, dir models.Direction) string {
	return recommendations[recommendationKey{sev, dir}]
}

type Classifier struct {
	thresholds models.AlertThresholds
}

// NewClassifier fails with a ConfigurationError unless 0 < low < medium < high.
func NewClassifier(t models.AlertThresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: t}, nil
}

func (c *Classifier) Thresholds() models.AlertThresholds { return c.thresholds }

// Severity buckets |pct| against the thresholds.
func (c *Classifier) Severity(pct float64) (models.Severity, bool) {
	abs := math.Abs(pct)
	switch {
	case math.IsNaN(abs) || abs < c.thresholds.Low:
		return "", false
	case abs < c.thresholds.Medium:
		return models.SeverityLow, true
	case abs < c.thresholds.High:
		return models.SeverityMedium, true
	default:
		return models.SeverityHigh, true
	}
}

func (c *Classifier) Classify(s models.ProbabilitySnapshot) (models.DivergenceAlert, bool) {
	sev, ok := c.Severity(s.DivergencePercent)
	if !ok {
		return models.DivergenceAlert{}, false
	}
	dir := models.DirectionBullish
	if s.Divergence < 0 {
		dir = models.DirectionBearish
	}
	return models.DivergenceAlert{
		MarketID:          s.MarketID,
		MarketQuestion:    s.MarketQuestion,
		Category:          s.Category,
		Timestamp:         s.Timestamp,
		Severity:          sev,
		Direction:         dir,
		Divergence:        s.Divergence,
		DivergencePercent: s.DivergencePercent,
		Recommendation:    Recommendation(sev, dir),
	}, true
}

// ClassifyAll runs a fresh pass; nothing is remembered between calls.
func (c *Classifier) ClassifyAll(snapshots []models.ProbabilitySnapshot) []models.DivergenceAlert {
	alerts := make([]models.DivergenceAlert, 0)
	for _, s := range snapshots {
		if a, ok := c.Classify(s); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}
