package models

import "time"

// HeatmapCell is the rendering projection of the latest snapshot of a market.
type HeatmapCell struct {
	MarketID          string    `json:"market_id"`
	MarketQuestion    string    `json:"market_question"`
	Category          string    `json:"category"`
	Timestamp         time.Time `json:"timestamp"`
	MarketPrice       float64   `json:"market_price"`
	AIProbability     float64   `json:"ai_probability"`
	Divergence        float64   `json:"divergence"`
	DivergencePercent float64   `json:"divergence_percent"`
	ColorIntensity    float64   `json:"color_intensity"` // [-1, 1]
	ConfidenceScore   *float64  `json:"confidence_score,omitempty"`
}

type HeatmapData struct {
	Cells         []HeatmapCell `json:"cells"`
	TotalMarkets  int           `json:"total_markets"`
	AvgDivergence float64       `json:"avg_divergence"`
	MaxDivergence float64       `json:"max_divergence"`
	MinDivergence float64       `json:"min_divergence"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
