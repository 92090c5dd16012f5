package indicator

import (
	"math"

	"marketwatch/internal/model"
)

// DefaultRangePeriod is the look-back for range positioning.
const DefaultRangePeriod = 20

// RangePosition returns where the last close sits inside the trailing
// window's low..high range, as a percentage. Returns 50 when the series is
// shorter than period or the window is flat.
func RangePosition(series []model.PricePoint, period int) float64 {
	if period < 1 {
		period = DefaultRangePeriod
	}
	n := len(series)
	if n < period {
		return 50
	}

	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range series[n-period:] {
		if h := SafeNumber(p.High, hi); h > hi {
			hi = h
		}
		if l := SafeNumber(p.Low, lo); l < lo {
			lo = l
		}
	}
	if math.IsInf(hi, 0) || math.IsInf(lo, 0) || hi == lo {
		return 50
	}

	pos := (series[n-1].Close - lo) / (hi - lo) * 100
	return Clamp(SafeNumber(pos, 50), 0, 100)
}
