package watch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"marketwatch/internal/anomaly"
	"marketwatch/internal/ledger"
	"marketwatch/internal/logger"
	"marketwatch/internal/model"
	"marketwatch/internal/signal"
)

// ErrEmptySymbol is returned by Select for a blank symbol.
var ErrEmptySymbol = errors.New("watch: empty symbol")

// View is a consistent read of the loop state.
type View struct {
	Symbols   []string               `json:"symbols"`
	Active    string                 `json:"active"`
	Model     string                 `json:"model"`
	Quotes    map[string]model.Quote `json:"quotes"`
	Report    *signal.Report         `json:"report"`
	Anomalies []anomaly.Result       `json:"anomalies"`
	Ledger    ledger.Summary         `json:"ledger"`
	Marks     map[string]float64     `json:"marks"`
}

// do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) do(ctx context.Context, fn func(context.Context)) error {
	done := make(chan struct{})
	cmd := func(lctx context.Context) {
		defer close(done)
		fn(lctx)
	}
	select {
	case l.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (l *Loop) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := l.do(ctx, func(context.Context) {
		v = View{
			Symbols:   append([]string(nil), l.symbols...),
			Active:    l.active,
			Model:     l.cfg.Model.Name(),
			Quotes:    make(map[string]model.Quote, len(l.quotes)),
			Marks:     make(map[string]float64, len(l.marks)),
			Anomalies: make([]anomaly.Result, 0, len(l.anomalies)),
			Ledger:    l.cfg.Ledger.Summarize(l.marks),
		}
		for k, q := range l.quotes {
			v.Quotes[k] = q
		}
		for k, m := range l.marks {
			v.Marks[k] = m
		}
		for _, s := range l.symbols {
			if r, ok := l.anomalies[s]; ok {
				v.Anomalies = append(v.Anomalies, r)
			}
		}
		if l.report != nil {
			r := *l.report
			v.Report = &r
		}
	})
	return v, err
}

// Select makes symbol active, adding it to the watch list if needed, and
// starts a series fetch for it. The previous symbol's series and report are
// discarded at once.
func (l *Loop) Select(ctx context.Context, symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	return l.do(ctx, func(lctx context.Context) {
		added := l.addSymbol(symbol)
		if symbol == l.active && !added {
			return
		}
		l.active = symbol
		l.shareSymbols()
		l.daily, l.minute, l.report = nil, nil, nil
		l.cfg.Health.SetActive(symbol, l.cfg.Model.Name())
		slog.Info("[watch] symbol selected", append(logger.LogWithTrace(ctx), slog.String("symbol", symbol))...)

		if l.cfg.OnWatchList != nil {
			l.cfg.OnWatchList(append([]string(nil), l.symbols...), l.active)
		}
		l.requestSeries(lctx, symbol)
		l.evaluate(lctx)
	})
}

// SubmitOrder places a resting limit order. It fills on a later quote.
func (l *Loop) SubmitOrder(ctx context.Context, symbol string, side model.Side, price float64, qty int64) (model.Order, error) {
	var (
		o   model.Order
		err error
	)
	if derr := l.do(ctx, func(lctx context.Context) {
		o, err = l.cfg.Ledger.SubmitOrder(symbol, side, price, qty)
		l.cfg.Metrics.Order(err == nil)
		if err != nil {
			slog.Info("[watch] order declined", append(logger.LogWithTrace(ctx), slog.Any("err", err))...)
			return
		}
		slog.Info("[watch] order accepted", append(logger.LogWithTrace(ctx),
			slog.String("id", o.ID),
			slog.String("symbol", o.Symbol),
			slog.String("side", string(o.Side)),
			slog.Float64("price", o.LimitPrice),
			slog.Int64("qty", o.Quantity))...)
		l.publishLedger()
		if o.Symbol == l.active {
			l.evaluate(lctx)
		}
	}); derr != nil {
		return model.Order{}, derr
	}
	return o, err
}

// CancelOrder removes a resting order and releases its reservation.
func (l *Loop) CancelOrder(ctx context.Context, orderID string) (model.Order, error) {
	var (
		o   model.Order
		err error
	)
	if derr := l.do(ctx, func(context.Context) {
		o, err = l.cfg.Ledger.CancelOrder(orderID)
		if err == nil {
			l.publishLedger()
		}
	}); derr != nil {
		return model.Order{}, derr
	}
	return o, err
}

// DeleteTrade removes a trade from the history without touching balances.
func (l *Loop) DeleteTrade(ctx context.Context, tradeID string) error {
	var err error
	if derr := l.do(ctx, func(context.Context) {
		err = l.cfg.Ledger.DeleteTrade(tradeID)
		if err == nil {
			l.publishLedger()
		}
	}); derr != nil {
		return derr
	}
	return err
}

// ResetAccount wipes all positions and restores the initial capital.
func (l *Loop) ResetAccount(ctx context.Context) error {
	return l.do(ctx, func(lctx context.Context) {
		l.cfg.Ledger.ResetAccount()
		slog.Info("[watch] account reset", logger.LogWithTrace(ctx)...)
		l.publishLedger()
		l.evaluate(lctx)
	})
}

// ClearSymbol rolls a symbol back at cost and returns the refund.
func (l *Loop) ClearSymbol(ctx context.Context, symbol string) (float64, error) {
	var (
		refund float64
		err    error
	)
	if derr := l.do(ctx, func(lctx context.Context) {
		refund, err = l.cfg.Ledger.ClearSymbol(symbol)
		if err != nil {
			return
		}
		l.publishLedger()
		if strings.TrimSpace(symbol) == l.active {
			l.evaluate(lctx)
		}
	}); derr != nil {
		return 0, derr
	}
	return refund, err
}

// SetInitialCapital resets cash and initial capital to amount.
func (l *Loop) SetInitialCapital(ctx context.Context, amount float64) error {
	var err error
	if derr := l.do(ctx, func(context.Context) {
		err = l.cfg.Ledger.SetInitialCapital(amount)
		if err == nil {
			l.publishLedger()
		}
	}); derr != nil {
		return derr
	}
	return err
}
