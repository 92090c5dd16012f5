// Package ledger is the paper-trading account: cash, per-symbol positions,
// resting limit orders and the fill history, plus the price-triggered
// matching sweep.
//
// Orders reserve their resources at submission. A BUY deducts its notional
// from cash immediately and a SELL removes its quantity from the holding, so
// a fill only moves the other side of the trade. Cancelling reverses the
// reservation exactly.
//
// A Ledger is not safe for concurrent use. In the server it is owned by the
// watch loop, which serialises every event.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketwatch/internal/model"
)

// DefaultInitialCapital seeds a fresh account.
const DefaultInitialCapital = 100000.0

// cashEpsilon absorbs float noise when comparing cash against a notional.
const cashEpsilon = 1e-9

// Declined operations. The ledger is left untouched when any is returned.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrOrderNotFound        = errors.New("order not found")
	ErrTradeNotFound        = errors.New("trade not found")
	ErrUnknownSymbol        = errors.New("unknown symbol")
)

// Position is one symbol's slice of the account. Holding excludes shares
// reserved by resting SELL orders.
type Position struct {
	Holding     int64         `json:"holding"`
	AvgCost     float64       `json:"avgCost"`
	RealizedPnL float64       `json:"realizedPnl"`
	Trades      []model.Trade `json:"trades"`
	Pending     []model.Order `json:"pending"`
}

func (p *Position) empty() bool {
	return p.Holding == 0 && len(p.Pending) == 0 && len(p.Trades) == 0 && p.RealizedPnL == 0
}

func (p *Position) clone() *Position {
	cp := *p
	cp.Trades = append(make([]model.Trade, 0, len(p.Trades)), p.Trades...)
	cp.Pending = append(make([]model.Order, 0, len(p.Pending)), p.Pending...)
	return &cp
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now for order and trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides the uuid generator for order and trade IDs.
func WithIDs(next func() string) Option {
	return func(l *Ledger) { l.newID = next }
}

// OnChange registers the save-on-mutation callback. It receives a detached
// copy of the state after every successful mutation.
func OnChange(fn func(State)) Option {
	return func(l *Ledger) { l.onChange = fn }
}

// Ledger holds the account state.
type Ledger struct {
	cash           float64
	initialCapital float64
	positions      map[string]*Position

	now      func() time.Time
	newID    func() string
	onChange func(State)
}

// New creates an account funded with initialCapital. Non-positive or
// non-finite capital falls back to DefaultInitialCapital.
func New(initialCapital float64, opts ...Option) *Ledger {
	if !positive(initialCapital) {
		initialCapital = DefaultInitialCapital
	}
	l := &Ledger{
		cash:           initialCapital,
		initialCapital: initialCapital,
		positions:      make(map[string]*Position),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Cash returns the free cash balance.
func (l *Ledger) Cash() float64 { return l.cash }

// InitialCapital returns the configured starting capital.
func (l *Ledger) InitialCapital() float64 { return l.initialCapital }

// Position returns a copy of symbol's position.
func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.positions[normalize(symbol)]
	if !ok {
		return Position{}, false
	}
	return *p.clone(), true
}

// Holding returns the position as signal-engine input, or nil when flat.
func (l *Ledger) Holding(symbol string) *model.Holding {
	p, ok := l.positions[normalize(symbol)]
	if !ok {
		return nil
	}
	h := &model.Holding{AverageCost: p.AvgCost, Quantity: p.Holding}
	if !h.Held() {
		return nil
	}
	return h
}

// Symbols returns the symbols with a position entry, sorted.
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RestingOrders returns every resting order across symbols, oldest first.
func (l *Ledger) RestingOrders() []model.Order {
	var out []model.Order
	for _, p := range l.positions {
		out = append(out, p.Pending...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// SubmitOrder validates and reserves a limit order.
func (l *Ledger) SubmitOrder(symbol string, side model.Side, limitPrice float64, quantity int64) (model.Order, error) {
	symbol = normalize(symbol)
	switch {
	case symbol == "":
		return model.Order{}, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	case !side.Valid():
		return model.Order{}, fmt.Errorf("%w: side %q", ErrInvalidInput, side)
	case !positive(limitPrice):
		return model.Order{}, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	case quantity <= 0:
		return model.Order{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	o := model.Order{
		Symbol:     symbol,
		Side:       side,
		LimitPrice: limitPrice,
		Quantity:   quantity,
	}
	notional := o.Notional()
	pos := l.positions[symbol]

	switch side {
	case model.SideBuy:
		if l.cash+cashEpsilon < notional {
			return model.Order{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, notional, l.cash)
		}
		if pos == nil {
			pos = &Position{}
			l.positions[symbol] = pos
		}
		l.cash -= notional
	case model.SideSell:
		if pos == nil || pos.Holding < quantity {
			held := int64(0)
			if pos != nil {
				held = pos.Holding
			}
			return model.Order{}, fmt.Errorf("%w: want %d, hold %d", ErrInsufficientQuantity, quantity, held)
		}
		pos.Holding -= quantity
	}

	o.ID = l.newID()
	o.SubmittedAt = l.now()
	pos.Pending = append(pos.Pending, o)
	l.changed()
	return o, nil
}

// CancelOrder removes a resting order and releases its reservation.
func (l *Ledger) CancelOrder(orderID string) (model.Order, error) {
	for symbol, pos := range l.positions {
		for i, o := range pos.Pending {
			if o.ID != orderID {
				continue
			}
			pos.Pending = append(pos.Pending[:i:i], pos.Pending[i+1:]...)
			if o.Side == model.SideBuy {
				l.cash += o.Notional()
			} else {
				pos.Holding += o.Quantity
			}
			if pos.empty() {
				delete(l.positions, symbol)
			}
			l.changed()
			return o, nil
		}
	}
	return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}

// MatchTick sweeps symbol's resting orders against price, oldest first.
// BUY fills when price <= limit, SELL when price >= limit; fills execute at
// the limit price. All fills for the tick are applied before it returns.
func (l *Ledger) MatchTick(symbol string, price float64) []model.Trade {
	pos, ok := l.positions[normalize(symbol)]
	if !ok || len(pos.Pending) == 0 || !positive(price) {
		return nil
	}

	var fills []model.Trade
	remaining := pos.Pending[:0:0]
	for _, o := range pos.Pending {
		crossed := (o.Side == model.SideBuy && price <= o.LimitPrice) ||
			(o.Side == model.SideSell && price >= o.LimitPrice)
		if !crossed {
			remaining = append(remaining, o)
			continue
		}

		q := float64(o.Quantity)
		switch o.Side {
		case model.SideBuy:
			held := float64(pos.Holding)
			pos.AvgCost = (held*pos.AvgCost + o.LimitPrice*q) / (held + q)
			pos.Holding += o.Quantity
		case model.SideSell:
			l.cash += o.LimitPrice * q
			pos.RealizedPnL += (o.LimitPrice - pos.AvgCost) * q
		}

		tr := model.Trade{
			ID:        l.newID(),
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			FillPrice: o.LimitPrice,
			Quantity:  o.Quantity,
			FilledAt:  l.now(),
			Notional:  o.Notional(),
		}
		pos.Trades = append(pos.Trades, tr)
		fills = append(fills, tr)
	}
	if len(fills) == 0 {
		return nil
	}
	pos.Pending = remaining
	l.changed()
	return fills
}

// DeleteTrade drops a trade from the history. Cash, holding and realized
// P&L keep the effects of the fill.
func (l *Ledger) DeleteTrade(tradeID string) error {
	for _, pos := range l.positions {
		for i, tr := range pos.Trades {
			if tr.ID == tradeID {
				pos.Trades = append(pos.Trades[:i:i], pos.Trades[i+1:]...)
				l.changed()
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
}

// ResetAccount clears every position and restores cash to the initial capital.
func (l *Ledger) ResetAccount() {
	l.positions = make(map[string]*Position)
	l.cash = l.initialCapital
	l.changed()
}

// ClearSymbol rolls a symbol back at cost: the holding is refunded at its
// average cost along with any cash reserved by resting BUY orders, then the
// position is removed. Shares reserved by resting SELL orders are dropped.
func (l *Ledger) ClearSymbol(symbol string) (float64, error) {
	symbol = normalize(symbol)
	pos, ok := l.positions[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	refund := float64(pos.Holding) * pos.AvgCost
	for _, o := range pos.Pending {
		if o.Side == model.SideBuy {
			refund += o.Notional()
		}
	}
	l.cash += refund
	delete(l.positions, symbol)
	l.changed()
	return refund, nil
}

// SetInitialCapital sets both the initial capital and the cash balance to
// amount. Positions are left as they are.
func (l *Ledger) SetInitialCapital(amount float64) error {
	if !positive(amount) {
		return fmt.Errorf("%w: capital must be positive", ErrInvalidInput)
	}
	l.initialCapital = amount
	l.cash = amount
	l.changed()
	return nil
}

// Equity is cash plus every holding marked at marks[symbol], or at average
// cost when no mark is known.
func (l *Ledger) Equity(marks map[string]float64) float64 {
	eq := l.cash
	for symbol, p := range l.positions {
		eq += float64(p.Holding) * markFor(marks, symbol, p.AvgCost)
	}
	return eq
}

func markFor(marks map[string]float64, symbol string, fallback float64) float64 {
	if m, ok := marks[symbol]; ok && positive(m) {
		return m
	}
	return fallback
}

func (l *Ledger) changed() {
	if l.onChange != nil {
		l.onChange(l.Snapshot())
	}
}

func positive(v float64) bool {
	return v > 0 && !isNaNOrInf(v)
}

func isNaNOrInf(v float64) bool {
	return math.IsInf(v, 0) || math.IsNaN(v)
}

func normalize(symbol string) string {
	return strings.TrimSpace(symbol)
}
