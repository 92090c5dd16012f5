package signal

import (
	"fmt"
	"math"

	"marketwatch/internal/indicator"
)

const (
	minBandWidth      = 0.015
	bandAmplitudeMult = 0.6
	fallbackAmplitude = 0.02
)

// BandModel is the intraday deviation-band ("t0") model. Price below the
// lower band around session VWAP is an opportunity, above the upper band a
// risk, anything inside neutral with resting levels at both bands.
type BandModel struct {
	params indicator.Params
}

// NewBandModel returns the t0 model with default indicator parameters.
func NewBandModel() *BandModel {
	return &BandModel{params: indicator.DefaultParams()}
}

func (m *BandModel) Name() string { return "t0" }

func (m *BandModel) Evaluate(in Input) Report {
	set := indicator.Compute(in.Daily, m.params)
	r := base(m.Name(), in, set)
	q := in.Quote
	price := r.Price

	prevClose := indicator.SafeNumber(q.PrevClose, 0)
	vwap := indicator.VWAP(in.Minute, prevClose)
	if vwap <= 0 {
		vwap = price
	}

	amplitude := fallbackAmplitude
	if open := indicator.SafeNumber(q.Open, 0); open > 0 {
		amplitude = indicator.SafeNumber((q.High-q.Low)/open, fallbackAmplitude)
	}
	width := math.Max(minBandWidth, amplitude*bandAmplitudeMult)
	band := &Band{
		VWAP:  vwap,
		Width: width,
		Upper: vwap * (1 + width),
		Lower: vwap * (1 - width),
	}
	r.Band = band

	liquidity := Liquidity(q.TurnoverRate, q.AmountTraded)
	strength := DeviationStrength(price, vwap, width)

	switch {
	case price > 0 && price < band.Lower:
		r.Phase = PhaseOpportunity
		r.Advice = AdviceBuy
		r.BuyPoint = price
		r.Confidence = 50 + oversoldBoost(set.RSI) + 0.3*strength
		r.Reason = fmt.Sprintf("price %.2f below lower band %.2f (VWAP %.2f)", price, band.Lower, vwap)
	case price > band.Upper && band.Upper > 0:
		r.Phase = PhaseRisk
		r.Advice = AdviceSell
		r.SellPoint = price
		r.Confidence = 50 + overboughtBoost(set.RSI) + 0.3*strength
		r.Reason = fmt.Sprintf("price %.2f above upper band %.2f (VWAP %.2f)", price, band.Upper, vwap)
	default:
		r.Phase = PhaseNeutral
		r.Advice = AdviceWait
		r.BuyPoint = band.Lower
		r.SellPoint = band.Upper
		strength = math.Max(strength, 10)
		r.Confidence = 40 + 0.2*liquidity
		r.Reason = fmt.Sprintf("price inside band %.2f-%.2f; rest buy at lower, sell at upper", band.Lower, band.Upper)
	}

	r.Axes = Axes{
		Volume: liquidity,
		Price:  strength,
		Time:   in.SessionProgress * 100,
		Space:  set.RangePosition,
	}
	sanitize(&r)
	return r
}

// Liquidity scores turnover and traded amount into [20, 100].
func Liquidity(turnoverRate, amountTraded float64) float64 {
	v := indicator.SafeNumber(turnoverRate, 0)/3*60 + indicator.SafeNumber(amountTraded, 0)/1e8*10
	return indicator.Clamp(v, 20, 100)
}

// DeviationStrength scores how far price sits from vwap relative to the band
// width, capped at 100.
func DeviationStrength(price, vwap, width float64) float64 {
	denom := vwap * width * 1.5
	if denom <= 0 || price <= 0 {
		return 0
	}
	return indicator.Clamp(math.Abs(price-vwap)/denom*100, 0, 100)
}

func oversoldBoost(rsi float64) float64 {
	switch {
	case rsi < 30:
		return 30
	case rsi < 45:
		return 10
	}
	return 0
}

func overboughtBoost(rsi float64) float64 {
	switch {
	case rsi > 70:
		return 30
	case rsi > 55:
		return 10
	}
	return 0
}
