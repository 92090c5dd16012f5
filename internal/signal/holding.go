package signal

import (
	"marketwatch/internal/indicator"
	"marketwatch/internal/model"
)

// Canonical holding advice.
const (
	HoldingAdviceProtect = "Up more than 5%: raise the stop and protect gains"
	HoldingAdviceT0      = "Down more than 5% near range lows: day-trade to lower the cost basis"
	HoldingAdviceDerisk  = "Down more than 5%: reduce the position"
	HoldingAdviceHold    = "Within ±5%: hold"
)

// HoldingReport evaluates an open position against the current price.
type HoldingReport struct {
	AverageCost float64 `json:"avg_cost"`
	Quantity    int64   `json:"qty"`
	PnL         float64 `json:"pnl"`
	PnLPercent  float64 `json:"pnl_percent"`
	Advice      string  `json:"advice"`
}

// Holding computes P&L for h at price and picks advice by fixed thresholds.
func Holding(price float64, h model.Holding, trend TrendReport) HoldingReport {
	shares := float64(h.Quantity)
	pnl := indicator.SafeNumber((price-h.AverageCost)*shares, 0)
	basis := h.AverageCost * shares
	pct := 0.0
	if basis > 0 {
		pct = indicator.SafeNumber(pnl/basis*100, 0)
	}

	r := HoldingReport{AverageCost: h.AverageCost, Quantity: h.Quantity, PnL: pnl, PnLPercent: pct}
	switch {
	case pct > 5:
		r.Advice = HoldingAdviceProtect
	case pct < -5 && trend.Position == PositionLow:
		r.Advice = HoldingAdviceT0
	case pct < -5:
		r.Advice = HoldingAdviceDerisk
	default:
		r.Advice = HoldingAdviceHold
	}
	return r
}
