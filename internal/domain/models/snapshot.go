package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ProbDesk/pkg/util"
)

// RawSample is an unnormalized probability reading from a collector.
// Only MarketID is required; every other field is normalized on ingest.
type RawSample struct {
	MarketID           string     `json:"market_id"`
	MarketQuestion     string     `json:"market_question,omitempty"`
	Category           string     `json:"category,omitempty"`
	Timestamp          SampleTime `json:"timestamp,omitempty"`
	MarketPrice        float64    `json:"market_price"`
	ImpliedProbability *float64   `json:"implied_probability,omitempty"`
	AIProbability      float64    `json:"ai_probability"`
	Volume24h          *float64   `json:"volume_24h,omitempty"`
	LiquidityDepth     *float64   `json:"liquidity_depth,omitempty"`
	ConfidenceScore    *float64   `json:"confidence_score,omitempty"`
}

// ProbabilitySnapshot is a normalized reading for one market at one instant.
// Divergence and DivergencePercent are written by the calculator only.
type ProbabilitySnapshot struct {
	MarketID           string    `json:"market_id"`
	MarketQuestion     string    `json:"market_question"`
	Category           string    `json:"category"`
	Timestamp          time.Time `json:"timestamp"`
	MarketPrice        float64   `json:"market_price"`
	ImpliedProbability float64   `json:"implied_probability"`
	AIProbability      float64   `json:"ai_probability"`
	Divergence         float64   `json:"divergence"`
	DivergencePercent  float64   `json:"divergence_percent"`
	Volume24h          *float64  `json:"volume_24h,omitempty"`
	LiquidityDepth     *float64  `json:"liquidity_depth,omitempty"`
	ConfidenceScore    *float64  `json:"confidence_score,omitempty"`
}

// SampleTime accepts RFC3339 strings or unix seconds/milliseconds.
// The zero value means no usable timestamp: absent, null, empty, not a time,
// or a unix value of 0 or below. The ingestor stamps those with the
// ingestion instant, so a bad timestamp never rejects a sample.
type SampleTime struct {
	time.Time
}

func (t *SampleTime) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	if parsed, ok := util.ParseTime(s); ok {
		t.Time = parsed
	}
	return nil
}

func (t SampleTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// DecodeRawSample decodes one encoded sample. On failure the returned sample
// still carries market_id when it could be read, for the rejection report.
func DecodeRawSample(b []byte) (RawSample, error) {
	var raw RawSample
	if err := json.Unmarshal(b, &raw); err != nil {
		var id struct {
			MarketID string `json:"market_id"`
		}
		_ = json.Unmarshal(b, &id)
		return RawSample{MarketID: id.MarketID}, fmt.Errorf("decode sample: %w", err)
	}
	return raw, nil
}
