package indicator

import "marketwatch/internal/model"

// MovingAverage returns the simple moving average of close over a trailing
// window of period bars. Entries before index period-1 are not ready.
// Returns an empty slice if period < 1 or the series is shorter than period.
func MovingAverage(series []model.PricePoint, period int) []Point {
	if period < 1 || len(series) < period {
		return []Point{}
	}

	out := make([]Point, len(series))
	for i := period - 1; i < len(series); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += SafeNumber(series[j].Close, 0)
		}
		out[i] = Point{Value: sum / float64(period), Ready: true}
	}
	return out
}
