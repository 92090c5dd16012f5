package signal

import (
	"math"

	"marketwatch/internal/indicator"
	"marketwatch/internal/model"
)

// Range positioning buckets.
const (
	PositionLow  = "low"
	PositionMid  = "mid"
	PositionHigh = "high"
)

// Trend directions. Flat is used when MA20 is not yet available.
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionFlat    = "flat"
)

// Canonical trend advice.
const (
	TrendAdviceHoldThrough = "Low in the 20-day range: hold through the pullback"
	TrendAdviceExit        = "High in the range and below MA20: exit"
	TrendAdviceRide        = "Above MA20: ride the trend"
	TrendAdviceRangeBound  = "Range-bound: wait for a breakout"
)

// TrendReport is the multi-day positioning sub-report.
type TrendReport struct {
	Position      string  `json:"position"`
	Direction     string  `json:"direction"`
	Strength      float64 `json:"strength"`
	RangePosition float64 `json:"range_position"`
	MA20          float64 `json:"ma20"`
	Advice        string  `json:"advice"`
}

// Trend classifies 20-day positioning and direction for price.
func Trend(price float64, daily []model.PricePoint, set indicator.Set) TrendReport {
	rp := set.RangePosition
	if len(set.MA) == 0 {
		rp = indicator.RangePosition(daily, indicator.DefaultRangePeriod)
	}

	t := TrendReport{Position: PositionMid, Direction: DirectionFlat, RangePosition: rp}
	switch {
	case rp <= 20:
		t.Position = PositionLow
	case rp >= 80:
		t.Position = PositionHigh
	}
	extreme := t.Position != PositionMid

	ma20, ok := set.LastMA(20)
	if !ok {
		ma20, ok = indicator.Last(indicator.MovingAverage(daily, 20))
	}
	if ok && ma20 > 0 && price > 0 {
		t.MA20 = ma20
		if price >= ma20 {
			t.Direction = DirectionBullish
		} else {
			t.Direction = DirectionBearish
		}
		t.Strength = math.Abs(price-ma20) / ma20 * 1000
	}
	if extreme {
		t.Strength += 30
	}
	t.Strength = indicator.Clamp(t.Strength, 0, 100)

	switch {
	case t.Position == PositionLow:
		t.Advice = TrendAdviceHoldThrough
	case t.Position == PositionHigh && t.Direction == DirectionBearish:
		t.Advice = TrendAdviceExit
	case t.Direction == DirectionBullish:
		t.Advice = TrendAdviceRide
	default:
		t.Advice = TrendAdviceRangeBound
	}
	return t
}
