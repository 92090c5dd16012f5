package feed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketwatch/internal/metrics"
	"marketwatch/internal/model"
)

// DefaultPollInterval is the quote refresh cadence.
const DefaultPollInterval = 3 * time.Second

// QuoteBatch is one poll's result stamped with its request generation.
type QuoteBatch struct {
	Seq       uint64
	Quotes    []model.Quote
	FetchedAt time.Time
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration

	// Symbols returns the watch list at the moment a poll fires.
	Symbols func() []string

	// Gate, when set, skips polls for which it returns false (closed market).
	Gate func(time.Time) bool

	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
}

// Poller issues a stamped quote fetch on every tick. Fetches may overlap;
// a slow response is still delivered and the consumer discards it with
// Accept when a newer request has been issued since.
type Poller struct {
	src Source
	cfg PollerConfig
	gen Generation
	out chan QuoteBatch
	now func() time.Time
}

// NewPoller creates a poller over src.
func NewPoller(src Source, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Symbols == nil {
		cfg.Symbols = func() []string { return nil }
	}
	return &Poller{
		src: src,
		cfg: cfg,
		out: make(chan QuoteBatch, 16),
		now: time.Now,
	}
}

// Batches delivers fetched quote batches in arrival order.
func (p *Poller) Batches() <-chan QuoteBatch { return p.out }

// Current returns the newest issued stamp.
func (p *Poller) Current() uint64 { return p.gen.Current() }

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("[feed] poller started", slog.Duration("interval", p.cfg.Interval))
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("[feed] poller stopped")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce stamps a new request and fetches it in the background. It
// returns the stamp, or 0 when the poll was skipped.
func (p *Poller) PollOnce(ctx context.Context) uint64 {
	now := p.now()
	if p.cfg.Gate != nil && !p.cfg.Gate(now) {
		p.cfg.Metrics.ObservePoll("skipped", 0)
		return 0
	}
	symbols := p.cfg.Symbols()
	if len(symbols) == 0 {
		return 0
	}
	seq := p.gen.Next()
	go p.fetch(ctx, seq, symbols)
	return seq
}

func (p *Poller) fetch(ctx context.Context, seq uint64, symbols []string) {
	start := time.Now()
	quotes, err := p.src.Quotes(ctx, symbols)
	took := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.cfg.Metrics.ObservePoll("error", took)
		if p.cfg.Health != nil {
			p.cfg.Health.SetFeed(false, time.Time{})
		}
		slog.Warn("[feed] quote poll failed", slog.Uint64("seq", seq), slog.Any("err", err))
		return
	}
	p.cfg.Metrics.ObservePoll("ok", took)
	fetched := p.now()
	if p.cfg.Health != nil {
		p.cfg.Health.SetFeed(true, fetched)
	}

	select {
	case p.out <- QuoteBatch{Seq: seq, Quotes: quotes, FetchedAt: fetched}:
	case <-ctx.Done():
	}
}

// FetchSeries loads the daily and minute series for symbol concurrently.
func FetchSeries(ctx context.Context, src Source, symbol string, days int) (model.Series, error) {
	s := model.Series{Symbol: symbol}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		daily, err := src.Daily(gctx, symbol, days)
		s.Daily = daily
		return err
	})
	g.Go(func() error {
		minute, err := src.Minute(gctx, symbol)
		s.Minute = minute
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Series{Symbol: symbol}, err
	}
	return s, nil
}
