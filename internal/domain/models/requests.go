package models

import "encoding/json"

// Requests for dashboard HTTP endpoints. Defined in domain for consistency and reuse.

type HistoryRequest struct {
	MarketID string `param:"market_id" json:"market_id" validate:"required"`
	TF       string `query:"tf" json:"tf" validate:"omitempty,oneof=1h 6h 24h 7d all"` // empty: configured default
}

// AlertsRequest carries the optional sensitivity override. Zero means "use configured".
type AlertsRequest struct {
	Low    float64 `query:"low" json:"low" validate:"gte=0"`
	Medium float64 `query:"medium" json:"medium" validate:"gte=0"`
	High   float64 `query:"high" json:"high" validate:"gte=0"`
}

// Overrides merges the request onto the configured thresholds.
func (r AlertsRequest) Overrides(base AlertThresholds) AlertThresholds {
	if r.Low > 0 {
		base.Low = r.Low
	}
	if r.Medium > 0 {
		base.Medium = r.Medium
	}
	if r.High > 0 {
		base.High = r.High
	}
	return base
}

// SamplesRequest keeps samples encoded so each one decodes on its own and a
// malformed element is rejected alone.
type SamplesRequest struct {
	Samples []json.RawMessage `json:"samples" validate:"required,min=1,max=5000"`
}

// Rejection reports one sample excluded from a batch.
type Rejection struct {
	Index    int    `json:"index"`
	MarketID string `json:"market_id,omitempty"`
	Reason   string `json:"reason"`
}

type IngestResult struct {
	BatchID   string                `json:"batch_id"`
	Accepted  int                   `json:"accepted"`
	Rejected  []Rejection           `json:"rejected"`
	Snapshots []ProbabilitySnapshot `json:"snapshots,omitempty"`
	Alerts    []DivergenceAlert     `json:"alerts"`
}

// AlertsResponse is one alert pass together with the thresholds it used.
type AlertsResponse struct {
	Thresholds AlertThresholds   `json:"thresholds"`
	Count      int               `json:"count"`
	Alerts     []DivergenceAlert `json:"alerts"`
}
