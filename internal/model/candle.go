package model

import "time"

// PricePoint is one daily bar. Series are ordered oldest first and replaced
// wholesale on refetch.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the bar satisfies the OHLC envelope invariant.
func (p *PricePoint) Valid() bool {
	return p.High >= p.Open && p.High >= p.Close &&
		p.Low <= p.Open && p.Low <= p.Close &&
		p.Volume >= 0
}

// MinutePoint is one intraday sample. Volume is incremental since the prior
// point, never cumulative.
type MinutePoint struct {
	Time   time.Time `json:"time"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// Series bundles the historical data fetched for one symbol.
type Series struct {
	Symbol string        `json:"symbol"`
	Daily  []PricePoint  `json:"daily"`
	Minute []MinutePoint `json:"minute"`
}
