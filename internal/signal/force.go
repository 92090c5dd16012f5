package signal

import (
	"fmt"

	"marketwatch/internal/indicator"
)

// ForceModel is the five-phase model keyed on the trailing stop, RSI, the
// 5-day volume ratio and the 5-day amplitude. Rules are evaluated in order;
// distribution is checked first.
type ForceModel struct {
	params indicator.Params
}

// NewForceModel returns the force model with default indicator parameters.
func NewForceModel() *ForceModel {
	return &ForceModel{params: indicator.DefaultParams()}
}

func (m *ForceModel) Name() string { return "force" }

func (m *ForceModel) Evaluate(in Input) Report {
	set := indicator.Compute(in.Daily, m.params)
	r := base(m.Name(), in, set)
	q := in.Quote
	price := r.Price
	change := dayChange(q)
	rsi := set.RSI
	vr := set.VolumeRatio
	amp5 := set.Amplitude5
	above := r.IsAboveStop
	prevClose := indicator.SafeNumber(q.PrevClose, 0)

	switch {
	case !above && rsi > 35:
		r.Phase, r.Confidence, r.Advice = PhaseDistribution, 90, AdviceSell
		r.SellPoint = price
		r.Reason = fmt.Sprintf("broke trailing stop %.2f with RSI %.1f", r.StopLossPrice, rsi)
	case change < 2 && vr > 2.2 && prevClose > 0 && price > prevClose*1.1:
		r.Phase, r.Confidence, r.Advice = PhaseDistribution, 90, AdviceSell
		r.SellPoint = price
		r.Reason = fmt.Sprintf("heavy volume (%.2fx) without follow-through", vr)
	case above && change > 3 && vr > 1.5:
		r.Phase, r.Confidence, r.Advice = PhaseLifting, 88, AdviceBuy
		r.BuyPoint = price
		r.Reason = fmt.Sprintf("up %.2f%% on %.2fx volume above the stop", change, vr)
	case above && change > -5 && change < -1.5 && vr < 0.8 && rsi > 38:
		r.Phase, r.Confidence, r.Advice = PhaseShakeout, 78, AdviceHold
		r.Reason = fmt.Sprintf("down %.2f%% on light volume (%.2fx), stop holds", change, vr)
	case above && amp5 < 5 && vr > 1.1 && vr < 1.8:
		r.Phase, r.Confidence, r.Advice = PhaseAccumulation, 70, AdviceHold
		r.Reason = fmt.Sprintf("tight 5-day range (%.2f%%) with rising volume (%.2fx)", amp5, vr)
	default:
		r.Phase, r.Confidence, r.Advice = PhaseChaos, 35, AdviceWait
		r.Reason = "no clear force pattern"
	}

	r.Axes = Axes{
		Volume: vr / 2.2 * 100,
		Price:  rsi,
		Time:   float64(len(in.Daily)) / float64(indicator.DefaultStopPeriod) * 100,
		Space:  amp5 / 5 * 50,
	}
	sanitize(&r)
	return r
}
