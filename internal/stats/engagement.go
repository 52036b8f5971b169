package stats

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Mean returns the arithmetic mean and false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m, err := stats.Mean(values)
	if err != nil || math.IsNaN(m) {
		return 0, false
	}
	return m, true
}

// MeanPtr is Mean returning nil for "no data" so callers can keep
// undefined distinct from zero.
func MeanPtr(values []float64) *float64 {
	m, ok := Mean(values)
	if !ok {
		return nil
	}
	return &m
}

// Percent converts a 0-1 fraction to a rounded whole percentage.
func Percent(fraction float64) int {
	return int(math.Round(fraction * 100))
}

// PercentPtr is Percent for an optional fraction.
func PercentPtr(fraction *float64) *int {
	if fraction == nil {
		return nil
	}
	p := Percent(*fraction)
	return &p
}

// Ratio returns num/den as a pointer, or nil if either is missing or den <= 0.
func Ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den <= 0 {
		return nil
	}
	r := *num / *den
	return &r
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round2 rounds to two decimals, for display values.
func Round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}
