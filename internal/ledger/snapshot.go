package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"marketwatch/internal/model"
)

// State is the persisted shape of the account.
type State struct {
	Cash           float64              `json:"cash"`
	InitialCapital float64              `json:"initialCapital"`
	Positions      map[string]*Position `json:"positions"`
}

// Snapshot returns a deep copy of the account state.
func (l *Ledger) Snapshot() State {
	s := State{
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		Positions:      make(map[string]*Position, len(l.positions)),
	}
	for sym, p := range l.positions {
		s.Positions[sym] = p.clone()
	}
	return s
}

// MarshalJSON encodes the snapshot.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

// wireState tolerates snapshots written before cash, trades, pending or
// realizedPnl existed.
type wireState struct {
	Cash           *float64                 `json:"cash"`
	InitialCapital float64                  `json:"initialCapital"`
	Positions      map[string]*wirePosition `json:"positions"`
}

type wirePosition struct {
	Holding     int64         `json:"holding"`
	AvgCost     float64       `json:"avgCost"`
	RealizedPnL float64       `json:"realizedPnl"`
	Trades      []model.Trade `json:"trades"`
	Pending     []model.Order `json:"pending"`
}

// Restore decodes a persisted snapshot into a ledger. Missing arrays come
// back empty, missing numbers as zero, a missing initial capital as the
// default and missing cash as the initial capital. Negative or non-finite
// holdings and costs are clamped to zero.
func Restore(data []byte, opts ...Option) (*Ledger, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ledger: decode snapshot: %w", err)
	}

	l := New(w.InitialCapital, opts...)
	if w.Cash != nil && !isNaNOrInf(*w.Cash) {
		l.cash = *w.Cash
	}
	for sym, wp := range w.Positions {
		sym = normalize(sym)
		if wp == nil || sym == "" {
			continue
		}
		p := &Position{
			Holding:     wp.Holding,
			AvgCost:     wp.AvgCost,
			RealizedPnL: wp.RealizedPnL,
			Trades:      wp.Trades,
			Pending:     wp.Pending,
		}
		if p.Holding < 0 || p.AvgCost < 0 || isNaNOrInf(p.AvgCost) {
			slog.Warn("[ledger] clamping corrupt position",
				slog.String("symbol", sym),
				slog.Int64("holding", p.Holding),
				slog.Float64("avgCost", p.AvgCost))
			p.Holding = max(p.Holding, 0)
			if p.AvgCost < 0 || isNaNOrInf(p.AvgCost) {
				p.AvgCost = 0
			}
		}
		if isNaNOrInf(p.RealizedPnL) {
			p.RealizedPnL = 0
		}
		if p.Trades == nil {
			p.Trades = []model.Trade{}
		}
		if p.Pending == nil {
			p.Pending = []model.Order{}
		}
		for i := range p.Pending {
			if p.Pending[i].Symbol == "" {
				p.Pending[i].Symbol = sym
			}
		}
		l.positions[sym] = p
	}
	return l, nil
}

// PositionView is one row of the account summary.
type PositionView struct {
	Symbol        string  `json:"symbol"`
	Holding       int64   `json:"holding"`
	Reserved      int64   `json:"reserved"`
	AvgCost       float64 `json:"avgCost"`
	Mark          float64 `json:"mark"`
	MarketValue   float64 `json:"marketValue"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	RealizedPnL   float64 `json:"realizedPnl"`
	PendingOrders int     `json:"pendingOrders"`
	TradeCount    int     `json:"tradeCount"`
}

// Summary is the read model served to clients.
type Summary struct {
	Cash           float64        `json:"cash"`
	InitialCapital float64        `json:"initialCapital"`
	Equity         float64        `json:"equity"`
	RealizedPnL    float64        `json:"realizedPnl"`
	UnrealizedPnL  float64        `json:"unrealizedPnl"`
	TotalReturnPct float64        `json:"totalReturnPct"`
	Positions      []PositionView `json:"positions"`
	Orders         []model.Order  `json:"orders"`
	Trades         []model.Trade  `json:"trades"`
}

// Summarize builds the account summary with holdings marked at marks.
func (l *Ledger) Summarize(marks map[string]float64) Summary {
	s := Summary{
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		Equity:         l.Equity(marks),
		Positions:      make([]PositionView, 0, len(l.positions)),
		Orders:         l.RestingOrders(),
		Trades:         []model.Trade{},
	}
	if s.Orders == nil {
		s.Orders = []model.Order{}
	}
	for _, sym := range l.Symbols() {
		p := l.positions[sym]
		mark := markFor(marks, sym, p.AvgCost)
		h := model.Holding{AverageCost: p.AvgCost, Quantity: p.Holding}
		v := PositionView{
			Symbol:        sym,
			Holding:       p.Holding,
			AvgCost:       p.AvgCost,
			Mark:          mark,
			MarketValue:   float64(p.Holding) * mark,
			UnrealizedPnL: h.UnrealizedPnL(mark),
			RealizedPnL:   p.RealizedPnL,
			PendingOrders: len(p.Pending),
			TradeCount:    len(p.Trades),
		}
		for _, o := range p.Pending {
			if o.Side == model.SideSell {
				v.Reserved += o.Quantity
			}
		}
		s.RealizedPnL += v.RealizedPnL
		s.UnrealizedPnL += v.UnrealizedPnL
		s.Positions = append(s.Positions, v)
		s.Trades = append(s.Trades, p.Trades...)
	}
	sort.SliceStable(s.Trades, func(i, j int) bool { return s.Trades[i].FilledAt.After(s.Trades[j].FilledAt) })
	if l.initialCapital > 0 {
		s.TotalReturnPct = (s.Equity - l.initialCapital) / l.initialCapital * 100
	}
	return s
}
