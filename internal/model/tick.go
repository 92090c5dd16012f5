package model

import "time"

// Quote is a point-in-time snapshot for one symbol. Each poll supersedes the
// previous snapshot entirely; fields missing upstream are left at zero.
type Quote struct {
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	Price            float64   `json:"price"`
	PrevClose        float64   `json:"prev_close"`
	Open             float64   `json:"open"`
	High             float64   `json:"high"`
	Low              float64   `json:"low"`
	DayChangePercent float64   `json:"day_change_percent"`
	Volume           float64   `json:"volume"`
	TurnoverRate     float64   `json:"turnover_rate"` // percent of float
	AmountTraded     float64   `json:"amount_traded"`
	TS               time.Time `json:"ts"`
}
