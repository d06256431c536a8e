package divergence

import (
	"math"

	"ProbDesk/internal/domain/models"
)

const (
	DefaultEpsilon    = 1e-6
	DefaultSaturation = 0.25
)

// Clamp maps p into [0,1]. NaN becomes 0, infinities go to the nearest bound.
func Clamp(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Calculator is the only place divergence is derived.
type Calculator struct {
	epsilon    float64
	saturation float64
}

type CalculatorOption func(*Calculator)

func WithEpsilon(eps float64) CalculatorOption {
	return func(c *Calculator) {
		if eps > 0 {
			c.epsilon = eps
		}
	}
}

func WithSaturation(sat float64) CalculatorOption {
	return func(c *Calculator) {
		if sat > 0 {
			c.saturation = sat
		}
	}
}

func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{epsilon: DefaultEpsilon, saturation: DefaultSaturation}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute clamps the probabilities and sets divergence fields.
func (c *Calculator) Compute(s models.ProbabilitySnapshot) models.ProbabilitySnapshot {
	s.MarketPrice = Clamp(s.MarketPrice)
	s.ImpliedProbability = Clamp(s.ImpliedProbability)
	s.AIProbability = Clamp(s.AIProbability)

	s.Divergence = s.AIProbability - s.ImpliedProbability
	s.DivergencePercent = s.Divergence / math.Max(s.ImpliedProbability, c.epsilon) * 100
	return s
}

// ColorIntensity is divergence scaled by saturation and clamped to [-1,1].
func (c *Calculator) ColorIntensity(divergence float64) float64 {
	if math.IsNaN(divergence) {
		return 0
	}
	return math.Max(-1, math.Min(1, divergence/c.saturation))
}
