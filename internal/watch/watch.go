// Package watch runs the single event loop that owns the watch list, the
// active symbol's series, the latest report and the paper-trading ledger.
//
// Every state transition (quote batch, series arrival, user command) runs to
// completion on the loop goroutine before the next one starts, so readers
// never observe a half-applied tick.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"marketwatch/internal/anomaly"
	"marketwatch/internal/feed"
	"marketwatch/internal/ledger"
	"marketwatch/internal/markethours"
	"marketwatch/internal/metrics"
	"marketwatch/internal/model"
	"marketwatch/internal/notification"
	"marketwatch/internal/signal"
)

// Broadcast channels.
const (
	ChannelQuote   = "quote"
	ChannelReport  = "report"
	ChannelAnomaly = "anomaly"
	ChannelLedger  = "ledger"
	ChannelSeries  = "series"
	ChannelFill    = "fill"
)

const (
	defaultSeriesDays    = 120
	defaultSeriesRefresh = time.Minute
	alertQueueSize       = 64
)

// Publisher fans a JSON payload out on a named channel.
type Publisher interface {
	Broadcast(channel string, data []byte)
}

// Config wires the loop's collaborators. Source, Ledger and Model are
// required; everything else is optional.
type Config struct {
	Source feed.Source
	Ledger *ledger.Ledger
	Model  signal.Model

	Symbols []string
	Active  string

	SeriesDays    int
	SeriesRefresh time.Duration

	Publisher Publisher
	Reports   model.ReportPublisher
	Journal   model.TradeJournal
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus

	// OnWatchList is called on the loop goroutine after the watch list or
	// active symbol changes.
	OnWatchList func(symbols []string, active string)
}

type seriesResult struct {
	series model.Series
	err    error
}

// Loop is the event loop. Create it with New and start it with Run.
type Loop struct {
	cfg    Config
	cmds   chan func(context.Context)
	series chan seriesResult
	alerts chan notification.Alert
	now    func() time.Time

	// loop-owned
	symbols   []string
	active    string
	quotes    map[string]model.Quote
	marks     map[string]float64
	daily     []model.PricePoint
	minute    []model.MinutePoint
	report    *signal.Report
	anomalies map[string]anomaly.Result

	// copies read from other goroutines
	symMu        sync.RWMutex
	symShared    []string
	activeShared string
}

// New creates a loop. The active symbol defaults to the first watched one.
func New(cfg Config) (*Loop, error) {
	if cfg.Source == nil || cfg.Ledger == nil || cfg.Model == nil {
		return nil, fmt.Errorf("watch: source, ledger and model are required")
	}
	if cfg.SeriesDays <= 0 {
		cfg.SeriesDays = defaultSeriesDays
	}
	if cfg.SeriesRefresh <= 0 {
		cfg.SeriesRefresh = defaultSeriesRefresh
	}

	l := &Loop{
		cfg:       cfg,
		cmds:      make(chan func(context.Context)),
		series:    make(chan seriesResult, 4),
		alerts:    make(chan notification.Alert, alertQueueSize),
		now:       time.Now,
		quotes:    make(map[string]model.Quote),
		marks:     make(map[string]float64),
		anomalies: make(map[string]anomaly.Result),
	}
	for _, s := range cfg.Symbols {
		l.addSymbol(s)
	}
	active := strings.TrimSpace(cfg.Active)
	if active == "" && len(l.symbols) > 0 {
		active = l.symbols[0]
	}
	if active == "" {
		return nil, fmt.Errorf("watch: empty watch list")
	}
	l.addSymbol(active)
	l.active = active
	l.shareSymbols()
	return l, nil
}

// Symbols returns the watch list. Safe to call from any goroutine.
func (l *Loop) Symbols() []string {
	l.symMu.RLock()
	defer l.symMu.RUnlock()
	return append([]string(nil), l.symShared...)
}

// Active returns the active symbol. Safe to call from any goroutine.
func (l *Loop) Active() string {
	l.symMu.RLock()
	defer l.symMu.RUnlock()
	return l.activeShared
}

// Run processes events until ctx is cancelled. batches carries stamped
// quote polls and current reports the newest issued stamp.
func (l *Loop) Run(ctx context.Context, batches <-chan feed.QuoteBatch, current func() uint64) {
	slog.Info("[watch] loop started", slog.String("active", l.active), slog.String("model", l.cfg.Model.Name()))
	l.cfg.Health.SetActive(l.active, l.cfg.Model.Name())
	go l.deliverAlerts(ctx)
	l.requestSeries(ctx, l.active)

	refresh := time.NewTicker(l.cfg.SeriesRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[watch] loop stopped")
			return

		case b, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			l.applyBatch(ctx, b, current())

		case res := <-l.series:
			l.applySeries(ctx, res)

		case fn := <-l.cmds:
			fn(ctx)

		case <-refresh.C:
			l.requestSeries(ctx, l.active)
		}
	}
}

// applyBatch handles one quote poll: stale batches are dropped, otherwise
// marks are updated, resting orders are matched, anomalies are scanned and
// the active report is rebuilt.
func (l *Loop) applyBatch(ctx context.Context, b feed.QuoteBatch, current uint64) {
	if !feed.Accept(b.Seq, current) {
		l.cfg.Metrics.Stale("quote")
		slog.Debug("[watch] stale quote batch dropped", slog.Uint64("seq", b.Seq), slog.Uint64("current", current))
		return
	}
	l.cfg.Metrics.QuoteApplied()

	var fills []model.Trade
	for _, q := range b.Quotes {
		if q.Symbol == "" {
			continue
		}
		l.quotes[q.Symbol] = q
		if q.Price > 0 {
			l.marks[q.Symbol] = q.Price
			fills = append(fills, l.cfg.Ledger.MatchTick(q.Symbol, q.Price)...)
		}
		l.scanAnomaly(ctx, q)
	}

	l.publishJSON(ChannelQuote, b.Quotes)
	if len(fills) > 0 {
		l.handleFills(ctx, fills)
	}

	m := markethours.MarketOf(l.active)
	l.cfg.Metrics.SetMarketOpen(string(m.Code), m.IsOpen(l.now()))
	l.cfg.Metrics.SetEquity(l.cfg.Ledger.Equity(l.marks))

	l.evaluate(ctx)
}

func (l *Loop) scanAnomaly(ctx context.Context, q model.Quote) {
	var minutes []model.MinutePoint
	if q.Symbol == l.active {
		minutes = l.minute
	}
	r, ok := anomaly.Detect(q, minutes)
	prev, had := l.anomalies[q.Symbol]
	if !ok {
		delete(l.anomalies, q.Symbol)
		return
	}
	l.anomalies[q.Symbol] = r
	if had && prev.Label == r.Label {
		return
	}

	l.cfg.Metrics.Anomaly(string(r.Label))
	slog.Info("[watch] anomaly", slog.String("symbol", r.Symbol), slog.String("label", string(r.Label)))
	l.publishJSON(ChannelAnomaly, r)
	l.notify(notification.AnomalyAlert(r, l.now()))
}

func (l *Loop) handleFills(ctx context.Context, fills []model.Trade) {
	for _, tr := range fills {
		l.cfg.Metrics.Fill(string(tr.Side))
		slog.Info("[watch] order filled",
			slog.String("symbol", tr.Symbol),
			slog.String("side", string(tr.Side)),
			slog.Float64("price", tr.FillPrice),
			slog.Int64("qty", tr.Quantity))
		l.publishJSON(ChannelFill, tr)
		l.notify(notification.FillAlert(tr))
	}
	if l.cfg.Journal != nil {
		if err := l.cfg.Journal.RecordTrades(ctx, fills); err != nil {
			slog.Warn("[watch] journal write failed", slog.Any("err", err))
		}
	}
	l.publishLedger()
}

// evaluate rebuilds the active symbol's report from the latest quote and
// series. Without a quote there is nothing to report.
func (l *Loop) evaluate(ctx context.Context) {
	q, ok := l.quotes[l.active]
	if !ok {
		return
	}
	start := time.Now()
	now := l.now()
	in := signal.Input{
		Quote:           q,
		Daily:           l.daily,
		Minute:          l.minute,
		Holding:         l.cfg.Ledger.Holding(l.active),
		SessionProgress: markethours.MarketOf(l.active).SessionProgress(now),
	}
	r := l.cfg.Model.Evaluate(in)
	r.GeneratedAt = now
	l.report = &r
	l.cfg.Metrics.ObserveReport(time.Since(start))

	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("[watch] marshal report", slog.Any("err", err))
		return
	}
	l.publish(ChannelReport, data)
	if l.cfg.Reports != nil {
		if err := l.cfg.Reports.PublishReport(ctx, l.active, data); err != nil {
			slog.Debug("[watch] report publish failed", slog.Any("err", err))
		}
	}
}

func (l *Loop) requestSeries(ctx context.Context, symbol string) {
	src, days := l.cfg.Source, l.cfg.SeriesDays
	go func() {
		s, err := feed.FetchSeries(ctx, src, symbol, days)
		s.Symbol = symbol
		select {
		case l.series <- seriesResult{series: s, err: err}:
		case <-ctx.Done():
		}
	}()
}

// applySeries installs a fetched series unless the selection moved on while
// it was in flight.
func (l *Loop) applySeries(ctx context.Context, res seriesResult) {
	if !feed.AcceptSeries(res.series.Symbol, l.active) {
		l.cfg.Metrics.Stale("series")
		slog.Debug("[watch] stale series dropped", slog.String("symbol", res.series.Symbol), slog.String("active", l.active))
		return
	}
	if res.err != nil {
		slog.Warn("[watch] series fetch failed", slog.String("symbol", res.series.Symbol), slog.Any("err", res.err))
		return
	}
	l.daily = res.series.Daily
	l.minute = res.series.Minute
	l.publishJSON(ChannelSeries, res.series)
	l.evaluate(ctx)
}

// notify queues an alert for deliverAlerts. It never blocks the loop; when
// the queue is full the alert is dropped.
func (l *Loop) notify(a notification.Alert) {
	if l.cfg.Notifier == nil {
		return
	}
	select {
	case l.alerts <- a:
	default:
		slog.Warn("[watch] alert queue full, dropping", slog.String("title", a.Title))
	}
}

// deliverAlerts sends queued alerts until ctx is cancelled.
func (l *Loop) deliverAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-l.alerts:
			l.send(ctx, a)
		}
	}
}

func (l *Loop) send(ctx context.Context, a notification.Alert) {
	if err := l.cfg.Notifier.Send(ctx, a); err != nil {
		slog.Warn("[watch] notify failed", slog.String("title", a.Title), slog.Any("err", err))
	}
}

func (l *Loop) publishLedger() {
	l.publishJSON(ChannelLedger, l.cfg.Ledger.Summarize(l.marks))
}

func (l *Loop) publishJSON(channel string, v any) {
	if l.cfg.Publisher == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("[watch] marshal", slog.String("channel", channel), slog.Any("err", err))
		return
	}
	l.publish(channel, data)
}

func (l *Loop) publish(channel string, data []byte) {
	if l.cfg.Publisher != nil {
		l.cfg.Publisher.Broadcast(channel, data)
	}
}

func (l *Loop) addSymbol(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, have := range l.symbols {
		if have == s {
			return false
		}
	}
	l.symbols = append(l.symbols, s)
	return true
}

func (l *Loop) shareSymbols() {
	cp := append([]string(nil), l.symbols...)
	l.symMu.Lock()
	l.symShared = cp
	l.activeShared = l.active
	l.symMu.Unlock()
}
