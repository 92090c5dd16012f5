package model

// Holding is the caller's current stake in a symbol, as fed to the signal
// engine. A zero Quantity means "no position".
type Holding struct {
	AverageCost float64 `json:"avg_cost"`
	Quantity    int64   `json:"qty"`
}

// Held reports whether the holding describes a real position.
func (h *Holding) Held() bool {
	return h != nil && h.Quantity > 0 && h.AverageCost > 0
}

// UnrealizedPnL computes (price - cost) × quantity.
func (h *Holding) UnrealizedPnL(price float64) float64 {
	return (price - h.AverageCost) * float64(h.Quantity)
}
