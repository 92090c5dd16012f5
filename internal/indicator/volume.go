package indicator

import (
	"math"

	"marketwatch/internal/model"
)

// VWAP returns the volume-weighted average price of the intraday points, or
// fallback when no volume has traded yet.
func VWAP(points []model.MinutePoint, fallback float64) float64 {
	pv, vol := 0.0, 0.0
	for _, p := range points {
		v := SafeNumber(p.Volume, 0)
		price := SafeNumber(p.Price, 0)
		if v <= 0 || price <= 0 {
			continue
		}
		pv += price * v
		vol += v
	}
	if vol <= 0 {
		return fallback
	}
	return SafeNumber(pv/vol, fallback)
}

// VolumeRatio compares the summed volume of the last window bars against the
// window before it. Returns 1 when either window is incomplete or empty.
func VolumeRatio(series []model.PricePoint, window int) float64 {
	if window < 1 {
		window = 5
	}
	n := len(series)
	if n < 2*window {
		return 1
	}
	recent, prior := 0.0, 0.0
	for i := n - window; i < n; i++ {
		recent += SafeNumber(series[i].Volume, 0)
	}
	for i := n - 2*window; i < n-window; i++ {
		prior += SafeNumber(series[i].Volume, 0)
	}
	if prior <= 0 {
		return 1
	}
	return SafeNumber(recent/prior, 1)
}

// Amplitude returns (highest high - lowest low) / lowest low × 100 over the
// last window bars (or fewer if the series is shorter). Returns 0 on empty
// input or a non-positive low.
func Amplitude(series []model.PricePoint, window int) float64 {
	if window < 1 {
		window = 5
	}
	n := len(series)
	if n == 0 {
		return 0
	}
	start := n - window
	if start < 0 {
		start = 0
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range series[start:] {
		if h := SafeNumber(p.High, hi); h > hi {
			hi = h
		}
		if l := SafeNumber(p.Low, lo); l < lo {
			lo = l
		}
	}
	if math.IsInf(hi, 0) || math.IsInf(lo, 0) || lo <= 0 {
		return 0
	}
	return SafeNumber((hi-lo)/lo*100, 0)
}
