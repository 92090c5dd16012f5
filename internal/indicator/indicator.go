// Package indicator provides technical indicator calculations over daily
// price series.
//
// Every function is pure: it reads an ordered series (oldest first), never
// mutates it, and returns freshly allocated output. Degenerate input resolves
// to a documented fallback rather than NaN or Inf.
package indicator

import "math"

// Point is one indicator output aligned to an input index. Ready is false
// while the trailing window is still incomplete.
type Point struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// SafeNumber returns v, or fallback when v is NaN or ±Inf.
func SafeNumber(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Clamp bounds v to [lo, hi]. Non-finite input collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	v = SafeNumber(v, lo)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Last returns the final point's value if it is ready.
func Last(points []Point) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	p := points[len(points)-1]
	return p.Value, p.Ready
}
