package indicator

import "marketwatch/internal/model"

// Params configures an IndicatorSet computation. Zero fields take defaults.
type Params struct {
	MAPeriods      []int
	RSIPeriod      int
	MACDShort      int
	MACDLong       int
	MACDMid        int
	StopPeriod     int
	StopMultiplier float64
	RangePeriod    int
}

// DefaultParams returns the dashboard's standard indicator configuration.
func DefaultParams() Params {
	return Params{
		MAPeriods:      []int{5, 10, 20},
		RSIPeriod:      DefaultRSIPeriod,
		MACDShort:      12,
		MACDLong:       26,
		MACDMid:        9,
		StopPeriod:     DefaultStopPeriod,
		StopMultiplier: DefaultStopMultiplier,
		RangePeriod:    DefaultRangePeriod,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if len(p.MAPeriods) == 0 {
		p.MAPeriods = d.MAPeriods
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.MACDShort <= 0 {
		p.MACDShort = d.MACDShort
	}
	if p.MACDLong <= 0 {
		p.MACDLong = d.MACDLong
	}
	if p.MACDMid <= 0 {
		p.MACDMid = d.MACDMid
	}
	if p.StopPeriod <= 0 {
		p.StopPeriod = d.StopPeriod
	}
	if p.StopMultiplier <= 0 {
		p.StopMultiplier = d.StopMultiplier
	}
	if p.RangePeriod <= 0 {
		p.RangePeriod = d.RangePeriod
	}
	return p
}

// Set is the full indicator output for one daily series. It is derived and
// ephemeral: recompute it from scratch whenever the series changes.
type Set struct {
	MA            map[int][]Point `json:"ma"`
	RSI           float64         `json:"rsi"`
	MACD          MACDResult      `json:"macd"`
	TrailingStop  []Point         `json:"trailing_stop"`
	RangePosition float64         `json:"range_position"`
	VolumeRatio   float64         `json:"volume_ratio"`
	Amplitude5    float64         `json:"amplitude5"`
}

// Compute runs every indicator over the series.
func Compute(series []model.PricePoint, p Params) Set {
	p = p.withDefaults()
	ma := make(map[int][]Point, len(p.MAPeriods))
	for _, period := range p.MAPeriods {
		ma[period] = MovingAverage(series, period)
	}
	return Set{
		MA:            ma,
		RSI:           RSI(series, p.RSIPeriod),
		MACD:          MACD(series, p.MACDShort, p.MACDLong, p.MACDMid),
		TrailingStop:  TrailingStop(series, p.StopPeriod, p.StopMultiplier),
		RangePosition: RangePosition(series, p.RangePeriod),
		VolumeRatio:   VolumeRatio(series, 5),
		Amplitude5:    Amplitude(series, 5),
	}
}

// Stop returns the latest trailing-stop level, or 0 if not ready.
func (s Set) Stop() float64 {
	v, ok := Last(s.TrailingStop)
	if !ok {
		return 0
	}
	return v
}

// LastMA returns the latest moving average for period, if computed and ready.
func (s Set) LastMA(period int) (float64, bool) {
	return Last(s.MA[period])
}
