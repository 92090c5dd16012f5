package indicator

import (
	"math"

	"marketwatch/internal/model"
)

const (
	DefaultStopPeriod     = 22
	DefaultStopMultiplier = 3.0
)

// TrueRange returns the per-bar true range: high-low for the first bar,
// otherwise the largest of high-low and the gaps against the prior close.
func TrueRange(series []model.PricePoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		tr := p.High - p.Low
		if i > 0 {
			prev := series[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(p.High-prev), math.Abs(p.Low-prev)))
		}
		out[i] = math.Max(SafeNumber(tr, 0), 0)
	}
	return out
}

// TrailingStop computes a chandelier exit: the highest high of the trailing
// period bars minus multiplier × the simple-average true range over the same
// window. The result has one entry per bar; entries before index period-1
// are not ready.
func TrailingStop(series []model.PricePoint, period int, multiplier float64) []Point {
	if period < 1 {
		period = DefaultStopPeriod
	}
	if multiplier < 0 || SafeNumber(multiplier, -1) < 0 {
		multiplier = DefaultStopMultiplier
	}

	out := make([]Point, len(series))
	if len(series) < period {
		return out
	}

	tr := TrueRange(series)
	for i := period - 1; i < len(series); i++ {
		sumTR := 0.0
		highest := math.Inf(-1)
		for j := i - period + 1; j <= i; j++ {
			sumTR += tr[j]
			if h := SafeNumber(series[j].High, highest); h > highest {
				highest = h
			}
		}
		if math.IsInf(highest, -1) {
			continue
		}
		atr := sumTR / float64(period)
		out[i] = Point{Value: SafeNumber(highest-atr*multiplier, highest), Ready: true}
	}
	return out
}
