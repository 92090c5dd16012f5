package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"marketwatch/internal/feed"
	"marketwatch/internal/ledger"
	"marketwatch/internal/model"
	"marketwatch/internal/notification"
	"marketwatch/internal/signal"
)

var fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

type fakeSource struct {
	daily []model.PricePoint
}

func (f *fakeSource) Quotes(context.Context, []string) ([]model.Quote, error) { return nil, nil }

func (f *fakeSource) Daily(context.Context, string, int) ([]model.PricePoint, error) {
	return f.daily, nil
}

func (f *fakeSource) Minute(context.Context, string) ([]model.MinutePoint, error) { return nil, nil }

type recorder struct {
	mu   sync.Mutex
	msgs map[string]int
}

func (r *recorder) Broadcast(channel string, _ []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[string]int)
	}
	r.msgs[channel]++
}

func (r *recorder) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msgs[channel]
}

type memJournal struct{ trades []model.Trade }

func (j *memJournal) RecordTrades(_ context.Context, t []model.Trade) error {
	j.trades = append(j.trades, t...)
	return nil
}
func (j *memJournal) Close() error { return nil }

type memAlerts struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (m *memAlerts) Send(_ context.Context, a notification.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

// blockingAlerts holds every Send until release is closed.
type blockingAlerts struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAlerts) Send(ctx context.Context, _ notification.Alert) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

type memStore struct {
	data []byte
	err  error
}

func (s *memStore) SaveSnapshotJSON(_ context.Context, d []byte) error {
	s.data = append([]byte(nil), d...)
	return s.err
}
func (s *memStore) ReadLatestSnapshotJSON(context.Context) ([]byte, error) { return s.data, s.err }

type fixture struct {
	loop    *Loop
	ledger  *ledger.Ledger
	pub     *recorder
	journal *memJournal
	alerts  *memAlerts
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	n := 0
	led := ledger.New(100000,
		ledger.WithClock(func() time.Time { return fixedNow }),
		ledger.WithIDs(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
	m, _ := signal.New("t0")
	f := &fixture{ledger: led, pub: &recorder{}, journal: &memJournal{}, alerts: &memAlerts{}}
	loop, err := New(Config{
		Source:    &fakeSource{},
		Ledger:    led,
		Model:     m,
		Symbols:   symbols,
		Publisher: f.pub,
		Journal:   f.journal,
		Notifier:  f.alerts,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	loop.now = func() time.Time { return fixedNow }
	f.loop = loop
	return f
}

// sent delivers the queued alerts the way the sender goroutine does and
// returns everything delivered so far.
func (f *fixture) sent() []notification.Alert {
	for {
		select {
		case a := <-f.loop.alerts:
			f.loop.send(context.Background(), a)
		default:
			f.alerts.mu.Lock()
			defer f.alerts.mu.Unlock()
			return append([]notification.Alert(nil), f.alerts.alerts...)
		}
	}
}

func quote(symbol string, price float64) model.Quote {
	return model.Quote{Symbol: symbol, Price: price, PrevClose: price, Open: price, High: price, Low: price}
}

func TestNew_Validation(t *testing.T) {
	m, _ := signal.New("t0")
	if _, err := New(Config{Source: &fakeSource{}, Ledger: ledger.New(0), Model: m}); err == nil {
		t.Error("empty watch list should fail")
	}
	if _, err := New(Config{Ledger: ledger.New(0), Model: m, Symbols: []string{"sh600519"}}); err == nil {
		t.Error("missing source should fail")
	}

	loop, err := New(Config{Source: &fakeSource{}, Ledger: ledger.New(0), Model: m,
		Symbols: []string{" sh600519", "", "sh600519", "hk00700"}, Active: "usAAPL"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := loop.Symbols()
	want := []string{"sh600519", "hk00700", "usAAPL"}
	if len(got) != len(want) {
		t.Fatalf("Symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestApplyBatch_StaleIsDropped(t *testing.T) {
	f := newFixture(t, "sh600519")
	ctx := context.Background()
	f.loop.applyBatch(ctx, feed.QuoteBatch{Seq: 1, Quotes: []model.Quote{quote("sh600519", 10)}}, 2)

	if len(f.loop.quotes) != 0 || f.loop.report != nil {
		t.Error("stale batch must not touch state")
	}
	if f.pub.count(ChannelQuote) != 0 {
		t.Error("stale batch must not be published")
	}
}

func TestApplyBatch_FillsThenReports(t *testing.T) {
	f := newFixture(t, "sh600519", "hk00700")
	ctx := context.Background()

	if _, err := f.ledger.SubmitOrder("sh600519", model.SideBuy, 10, 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.ledger.SubmitOrder("hk00700", model.SideBuy, 300, 10); err != nil {
		t.Fatalf("submit: %v", err)
	}

	f.loop.applyBatch(ctx, feed.QuoteBatch{Seq: 3, Quotes: []model.Quote{
		quote("sh600519", 9.9),
		quote("hk00700", 310),
	}}, 3)

	pos, ok := f.ledger.Position("sh600519")
	if !ok || pos.Holding != 100 {
		t.Fatalf("expected 100 shares filled, got %+v", pos)
	}
	if p, _ := f.ledger.Position("hk00700"); p.Holding != 0 || len(p.Pending) != 1 {
		t.Errorf("uncrossed order should rest: %+v", p)
	}
	if len(f.journal.trades) != 1 || f.journal.trades[0].FillPrice != 10 {
		t.Errorf("journal = %+v", f.journal.trades)
	}
	if alerts := f.sent(); len(alerts) != 1 || alerts[0].Level != notification.AlertInfo {
		t.Errorf("alerts = %+v", alerts)
	}

	r := f.loop.report
	if r == nil {
		t.Fatal("expected a report for the active symbol")
	}
	if r.Symbol != "sh600519" || r.Price != 9.9 || !r.GeneratedAt.Equal(fixedNow) {
		t.Errorf("report = %+v", r)
	}
	if r.Holding == nil || r.Holding.Quantity != 100 {
		t.Errorf("report should carry the filled holding: %+v", r.Holding)
	}
	for _, ch := range []string{ChannelQuote, ChannelFill, ChannelLedger, ChannelReport} {
		if f.pub.count(ch) == 0 {
			t.Errorf("nothing published on %s", ch)
		}
	}
}

func TestScanAnomaly_AlertsOnChange(t *testing.T) {
	f := newFixture(t, "sh600519", "sz000001")
	ctx := context.Background()

	hot := model.Quote{Symbol: "sz000001", Price: 11, PrevClose: 10, DayChangePercent: 10, TurnoverRate: 20}
	calm := model.Quote{Symbol: "sz000001", Price: 10.1, PrevClose: 10, DayChangePercent: 1, TurnoverRate: 2}

	steps := []struct {
		q      model.Quote
		alerts int
	}{
		{hot, 1},
		{hot, 1},
		{calm, 1},
		{hot, 2},
	}
	for i, s := range steps {
		seq := uint64(i + 1)
		f.loop.applyBatch(ctx, feed.QuoteBatch{Seq: seq, Quotes: []model.Quote{s.q}}, seq)
		if got := len(f.sent()); got != s.alerts {
			t.Errorf("step %d: %d alerts, want %d", i, got, s.alerts)
		}
	}
	if _, ok := f.loop.anomalies["sz000001"]; !ok {
		t.Error("latest anomaly should be kept")
	}
}

func TestApplySeries_GuardsSelection(t *testing.T) {
	f := newFixture(t, "sh600519", "hk00700")
	ctx := context.Background()
	f.loop.active = "hk00700"

	daily := []model.PricePoint{{Open: 1, Close: 1, High: 1, Low: 1}}
	f.loop.applySeries(ctx, seriesResult{series: model.Series{Symbol: "sh600519", Daily: daily}})
	if f.loop.daily != nil {
		t.Error("series for a deselected symbol must be dropped")
	}

	f.loop.applySeries(ctx, seriesResult{series: model.Series{Symbol: "hk00700"}, err: errors.New("boom")})
	if f.loop.daily != nil {
		t.Error("failed fetch must not install a series")
	}

	f.loop.applySeries(ctx, seriesResult{series: model.Series{Symbol: "hk00700", Daily: daily}})
	if len(f.loop.daily) != 1 {
		t.Error("series for the active symbol should be installed")
	}
}

func TestRun_CommandsGoThroughLoop(t *testing.T) {
	f := newFixture(t, "sh600519")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan feed.QuoteBatch)
	var seq uint64
	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx, batches, func() uint64 { return seq })
		close(done)
	}()

	o, err := f.loop.SubmitOrder(ctx, "sh600519", model.SideBuy, 10, 100)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if _, err := f.loop.SubmitOrder(ctx, "sh600519", model.SideBuy, 10, 1_000_000); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	seq = 1
	batches <- feed.QuoteBatch{Seq: 1, Quotes: []model.Quote{quote("sh600519", 12)}}

	v, err := f.loop.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(v.Ledger.Orders) != 1 || v.Ledger.Orders[0].ID != o.ID {
		t.Errorf("order should still rest above the market: %+v", v.Ledger.Orders)
	}
	if v.Quotes["sh600519"].Price != 12 || v.Marks["sh600519"] != 12 {
		t.Errorf("quote not applied: %+v", v.Quotes)
	}

	if _, err := f.loop.CancelOrder(ctx, o.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if _, err := f.loop.CancelOrder(ctx, o.ID); !errors.Is(err, ledger.ErrOrderNotFound) {
		t.Errorf("second cancel: %v", err)
	}
	if err := f.loop.SetInitialCapital(ctx, 5000); err != nil {
		t.Fatalf("SetInitialCapital: %v", err)
	}
	if err := f.loop.Select(ctx, " hk00700 "); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := f.loop.Select(ctx, "  "); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("blank select: %v", err)
	}

	v, err = f.loop.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if v.Active != "hk00700" || v.Report != nil || v.Ledger.Cash != 5000 {
		t.Errorf("unexpected view: active=%s report=%v cash=%v", v.Active, v.Report, v.Ledger.Cash)
	}
	if f.loop.Active() != "hk00700" {
		t.Errorf("Active = %q", f.loop.Active())
	}
	if got := f.loop.Symbols(); len(got) != 2 {
		t.Errorf("Symbols = %v", got)
	}

	cancel()
	<-done

	cctx, ccancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer ccancel()
	if _, err := f.loop.Snapshot(cctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("stopped loop should time out, got %v", err)
	}
}

func TestPersisterAndRestore(t *testing.T) {
	good := &memStore{}
	broken := &memStore{err: errors.New("down")}

	led := ledger.New(1000, ledger.OnChange(Persister(broken, good)))
	if _, err := led.SubmitOrder("sh600519", model.SideBuy, 5, 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if good.data == nil {
		t.Fatal("snapshot not saved to the healthy store")
	}

	restored := RestoreLedger(context.Background(), 1000, []model.SnapshotStore{broken, good})
	if restored.Cash() != 500 || len(restored.RestingOrders()) != 1 {
		t.Errorf("restored cash=%v orders=%d", restored.Cash(), len(restored.RestingOrders()))
	}

	fresh := RestoreLedger(context.Background(), 2500, []model.SnapshotStore{&memStore{}})
	if fresh.Cash() != 2500 {
		t.Errorf("fresh ledger cash = %v, want 2500", fresh.Cash())
	}
}

func TestRun_SlowNotifierDoesNotStallLoop(t *testing.T) {
	notifier := &blockingAlerts{entered: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(notifier.release)

	led := ledger.New(100000)
	m, _ := signal.New("t0")
	loop, err := New(Config{
		Source:   &fakeSource{},
		Ledger:   led,
		Model:    m,
		Symbols:  []string{"sh600519"},
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := make(chan feed.QuoteBatch)
	go loop.Run(ctx, batches, func() uint64 { return 1 })

	if _, err := loop.SubmitOrder(ctx, "sh600519", model.SideBuy, 10, 100); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	batches <- feed.QuoteBatch{Seq: 1, Quotes: []model.Quote{quote("sh600519", 9.5)}}

	select {
	case <-notifier.entered:
	case <-time.After(time.Second):
		t.Fatal("fill alert was never delivered")
	}

	// the notifier is still blocked; commands must keep completing
	cctx, ccancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer ccancel()
	v, err := loop.Snapshot(cctx)
	if err != nil {
		t.Fatalf("Snapshot while notifier blocks: %v", err)
	}
	if len(v.Ledger.Positions) != 1 {
		t.Errorf("expected the filled position, got %+v", v.Ledger.Positions)
	}
	if _, err := loop.SubmitOrder(cctx, "sh600519", model.SideBuy, 9, 10); err != nil {
		t.Errorf("SubmitOrder while notifier blocks: %v", err)
	}
}

func TestNotify_DropsWhenQueueFull(t *testing.T) {
	f := newFixture(t, "sh600519")
	for i := 0; i < alertQueueSize+5; i++ {
		f.loop.notify(notification.Alert{Title: fmt.Sprintf("a%d", i)})
	}
	if got := len(f.sent()); got != alertQueueSize {
		t.Errorf("delivered %d alerts, want %d", got, alertQueueSize)
	}
}
