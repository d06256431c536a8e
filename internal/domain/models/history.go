package models

import "time"

type ProbabilityHistoryPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	MarketPrice        float64   `json:"market_price"`
	ImpliedProbability float64   `json:"implied_probability"`
	AIProbability      float64   `json:"ai_probability"`
	Divergence         float64   `json:"divergence"`
}

// MarketProbabilityHistory is ordered oldest to newest.
type MarketProbabilityHistory struct {
	MarketID       string                    `json:"market_id"`
	MarketQuestion string                    `json:"market_question"`
	Points         []ProbabilityHistoryPoint `json:"points"`
	Timeframe      string                    `json:"timeframe"`
}

// PointFromSnapshot projects a computed snapshot into a history point.
func PointFromSnapshot(s ProbabilitySnapshot) ProbabilityHistoryPoint {
	return ProbabilityHistoryPoint{
		Timestamp:          s.Timestamp,
		MarketPrice:        s.MarketPrice,
		ImpliedProbability: s.ImpliedProbability,
		AIProbability:      s.AIProbability,
		Divergence:         s.Divergence,
	}
}
