package models

import "time"

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

type Direction string

const (
	DirectionBullish Direction = "bullish" // AI above market
	DirectionBearish Direction = "bearish"
)

// DivergenceAlert is regenerated on every evaluation pass and never stored as state.
type DivergenceAlert struct {
	MarketID          string    `json:"market_id"`
	MarketQuestion    string    `json:"market_question"`
	Category          string    `json:"category"`
	Timestamp         time.Time `json:"timestamp"`
	Severity          Severity  `json:"severity"`
	Direction         Direction `json:"direction"`
	Divergence        float64   `json:"divergence"`
	DivergencePercent float64   `json:"divergence_percent"`
	Recommendation    string    `json:"recommendation"`
}

// AlertThresholds are absolute divergence_percent cutoffs.
type AlertThresholds struct {
	Low    float64 `yaml:"low" json:"low" default:"5"`
	Medium float64 `yaml:"medium" json:"medium" default:"15"`
	High   float64 `yaml:"high" json:"high" default:"30"`
}

// Validate enforces 0 < low < medium < high.
func (t AlertThresholds) Validate() error {
	switch {
	case !(t.Low > 0):
		return NewConfigurationError("alerts.low", "must be greater than 0")
	case !(t.Medium > t.Low):
		return NewConfigurationError("alerts.medium", "must be greater than alerts.low")
	case !(t.High > t.Medium):
		return NewConfigurationError("alerts.high", "must be greater than alerts.medium")
	}
	return nil
}
