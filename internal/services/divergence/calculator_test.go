package divergence

import (
	"math"
	"testing"

	"ProbDesk/internal/domain/models"
)

const tolerance = 1e-9

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside", 0.42, 0.42},
		{"below", -0.3, 0},
		{"above", 1.7, 1},
		{"nan", math.NaN(), 0},
		{"pos inf", math.Inf(1), 1},
		{"neg inf", math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.in)
			if got != tt.want {
				t.Fatalf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if again := Clamp(got); again != got {
				t.Fatalf("clamp not idempotent: %v then %v", got, again)
			}
		})
	}
}

func TestComputeSignedDivergence(t *testing.T) {
	c := NewCalculator()
	inputs := []models.ProbabilitySnapshot{
		{ImpliedProbability: 0.40, AIProbability: 0.70},
		{ImpliedProbability: 0.80, AIProbability: 0.20},
		{ImpliedProbability: 1.30, AIProbability: -0.10},
		{ImpliedProbability: 0, AIProbability: 0.5},
	}
	for _, in := range inputs {
		out := c.Compute(in)
		if out.Divergence != out.AIProbability-out.ImpliedProbability {
			t.Fatalf("divergence %v != %v - %v", out.Divergence, out.AIProbability, out.ImpliedProbability)
		}
		if out.ImpliedProbability < 0 || out.ImpliedProbability > 1 || out.AIProbability < 0 || out.AIProbability > 1 {
			t.Fatalf("probabilities not clamped: %+v", out)
		}
		if math.IsInf(out.DivergencePercent, 0) || math.IsNaN(out.DivergencePercent) {
			t.Fatalf("percent blew up: %v", out.DivergencePercent)
		}
		if again := c.Compute(out); again != out {
			t.Fatalf("compute not idempotent: %+v vs %+v", out, again)
		}
	}
}

func TestComputeEpsilonFloor(t *testing.T) {
	out := NewCalculator().Compute(models.ProbabilitySnapshot{ImpliedProbability: 0, AIProbability: 0.5})
	want := 0.5 / DefaultEpsilon * 100
	if math.Abs(out.DivergencePercent-want) > 1e-3 {
		t.Fatalf("percent = %v, want %v", out.DivergencePercent, want)
	}
}

func TestColorIntensityBounded(t *testing.T) {
	c := NewCalculator(WithSaturation(0.25))
	for _, d := range []float64{-1, -0.3, -0.25, -0.1, 0, 0.1, 0.25, 0.9, 1} {
		ci := c.ColorIntensity(d)
		if math.Abs(ci) > 1 {
			t.Fatalf("ColorIntensity(%v) = %v out of range", d, ci)
		}
	}
	if got := c.ColorIntensity(0.125); math.Abs(got-0.5) > tolerance {
		t.Fatalf("ColorIntensity(0.125) = %v, want 0.5", got)
	}
	if got := c.ColorIntensity(-0.5); got != -1 {
		t.Fatalf("ColorIntensity(-0.5) = %v, want -1", got)
	}
}
