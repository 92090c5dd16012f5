package indicator

import "marketwatch/internal/model"

// MACDResult holds the three MACD lines, one entry per input bar.
type MACDResult struct {
	DIF []float64 `json:"dif"`
	DEA []float64 `json:"dea"`
	Bar []float64 `json:"bar"`
}

// Last returns the final dif, dea and bar values, or zeros if empty.
func (m MACDResult) Last() (dif, dea, bar float64) {
	n := len(m.DIF)
	if n == 0 {
		return 0, 0, 0
	}
	return m.DIF[n-1], m.DEA[n-1], m.Bar[n-1]
}

// emaStep advances an exponential average by one observation.
// EMA = (price * k) + (prev * (1 - k)), k = 2/(period+1).
func emaStep(prev, price float64, period int) float64 {
	k := 2.0 / float64(period+1)
	return price*k + prev*(1-k)
}

// MACD computes dif/dea/bar for the given short, long and signal periods.
// Both averages are seeded with the first close instead of an SMA warm-up, so
// early values are an approximation that downstream thresholds were tuned
// against. Returns empty slices if the series is shorter than long.
func MACD(series []model.PricePoint, short, long, mid int) MACDResult {
	if short < 1 {
		short = 12
	}
	if long < 1 {
		long = 26
	}
	if mid < 1 {
		mid = 9
	}
	n := len(series)
	if n < long {
		return MACDResult{DIF: []float64{}, DEA: []float64{}, Bar: []float64{}}
	}

	res := MACDResult{
		DIF: make([]float64, n),
		DEA: make([]float64, n),
		Bar: make([]float64, n),
	}

	first := SafeNumber(series[0].Close, 0)
	emaShort, emaLong := first, first
	dea := 0.0
	for i := 0; i < n; i++ {
		c := SafeNumber(series[i].Close, emaLong)
		if i > 0 {
			emaShort = emaStep(emaShort, c, short)
			emaLong = emaStep(emaLong, c, long)
		}
		dif := emaShort - emaLong
		if i == 0 {
			dea = dif
		} else {
			dea = emaStep(dea, dif, mid)
		}
		res.DIF[i] = SafeNumber(dif, 0)
		res.DEA[i] = SafeNumber(dea, 0)
		res.Bar[i] = SafeNumber(2*(dif-dea), 0)
	}
	return res
}
