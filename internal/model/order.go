package model

import "time"

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order is a resting limit order. It lives until it is filled or cancelled
// and is never reinstated afterwards.
type Order struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	LimitPrice  float64   `json:"price"`
	Quantity    int64     `json:"qty"`
	SubmittedAt time.Time `json:"time"`
}

// Notional returns LimitPrice × Quantity.
func (o *Order) Notional() float64 {
	return o.LimitPrice * float64(o.Quantity)
}

// Trade is an immutable fill record.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id,omitempty"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	FillPrice float64   `json:"price"`
	Quantity  int64     `json:"qty"`
	FilledAt  time.Time `json:"time"`
	Notional  float64   `json:"amount"`
}
