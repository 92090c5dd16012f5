package indicator

import "marketwatch/internal/model"

// DefaultRSIPeriod is the short RSI window used across the dashboard.
const DefaultRSIPeriod = 6

// RSI calculates the Relative Strength Index of the last bar from plain
// (unsmoothed) mean gain and mean loss over the trailing period deltas.
// A bar with no predecessor contributes close - open.
//
// Returns 50 when len(series) <= period, and 100 when the mean loss is zero.
func RSI(series []model.PricePoint, period int) float64 {
	if period < 1 {
		period = DefaultRSIPeriod
	}
	n := len(series)
	if n <= period {
		return 50
	}

	gain, loss := 0.0, 0.0
	for i := n - period; i < n; i++ {
		var delta float64
		if i == 0 {
			delta = series[i].Close - series[i].Open
		} else {
			delta = series[i].Close - series[i-1].Close
		}
		delta = SafeNumber(delta, 0)
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}

	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return Clamp(100-100/(1+rs), 0, 100)
}
