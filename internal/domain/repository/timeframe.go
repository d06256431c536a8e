package repository

import "time"

// Timeframe is a history display window.
type Timeframe string

const (
	TF1h  Timeframe = "1h"
	TF6h  Timeframe = "6h"
	TF24h Timeframe = "24h"
	TF7d  Timeframe = "7d"
	TFAll Timeframe = "all"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1h, TF6h, TF24h, TF7d, TFAll:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF24h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Window returns the lookback of tf; 0 means unbounded.
func (tf Timeframe) Window() time.Duration {
	switch tf {
	case TF1h:
		return time.Hour
	case TF6h:
		return 6 * time.Hour
	case TF24h:
		return 24 * time.Hour
	case TF7d:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}
