package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"marketwatch/config"
	"marketwatch/internal/feed"
	"marketwatch/internal/gateway"
	"marketwatch/internal/ledger"
	"marketwatch/internal/markethours"
	"marketwatch/internal/metrics"
	"marketwatch/internal/model"
	"marketwatch/internal/notification"
	"marketwatch/internal/signal"
	redisstore "marketwatch/internal/store/redis"
	"marketwatch/internal/store/sqlite"
	"marketwatch/internal/watch"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

const (
	livenessInterval = 10 * time.Second
	statusInterval   = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func serveCmd() *cobra.Command {
	var modelName string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll quotes, run the watch loop and serve the HTTP/WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelName != "" {
				cfg.SignalModel = modelName
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "Signal model for a new watch list: t0 or force (defaults to SIGNAL_MODEL)")
	return cmd
}

// stores holds the opened persistence backends. redis is nil when disabled
// or unreachable at startup.
type stores struct {
	sqlite *sqlite.Store
	redis  *redisstore.Store
}

func (s *stores) snapshotStores() []model.SnapshotStore {
	out := []model.SnapshotStore{s.sqlite}
	if s.redis != nil {
		out = append(out, s.redis)
	}
	return out
}

func (s *stores) redisClient() *goredis.Client {
	if s.redis == nil {
		return nil
	}
	return s.redis.Client()
}

func (s *stores) reports() model.ReportPublisher {
	if s.redis == nil {
		return nil
	}
	return s.redis
}

func (s *stores) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.sqlite.Close()
}

func openStores(cfg *config.Config, m *metrics.Metrics, health *metrics.HealthStatus) (*stores, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	sq, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath, Metrics: m})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	health.SetSQLiteOK(true)
	st := &stores{sqlite: sq}

	health.SetRedisEnabled(cfg.RedisEnabled())
	if cfg.RedisEnabled() {
		rs, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Metrics:  m,
		})
		if err != nil {
			slog.Warn("[serve] redis unavailable, continuing with sqlite only", slog.String("addr", cfg.RedisAddr), slog.Any("err", err))
		} else {
			health.SetRedisConnected(true)
			st.redis = rs
		}
	}
	return st, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(nil)}
	if cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	return n
}

func newProvider(cfg *config.Config) *feed.TencentProvider {
	return feed.NewTencentProvider(feed.Options{
		QuoteURL:  cfg.QuoteBaseURL,
		KlineURL:  cfg.KlineBaseURL,
		MinuteURL: cfg.MinuteBaseURL,
	})
}

func runServe(ctx context.Context, cfg *config.Config) error {
	start := time.Now()
	slog.Info("[serve] starting", slog.String("version", version))

	wl, err := config.LoadWatchList(cfg.WatchListPath, cfg.Symbols, cfg.SignalModel)
	if err != nil {
		return fmt.Errorf("watch list: %w", err)
	}
	sigModel, err := signal.New(wl.Model)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	st, err := openStores(cfg, m, health)
	if err != nil {
		return err
	}
	defer st.Close()

	led := watch.RestoreLedger(ctx, cfg.InitialCapital, st.snapshotStores(),
		ledger.OnChange(watch.Persister(st.snapshotStores()...)))

	src := newProvider(cfg)
	hub := gateway.NewHub(m)

	loop, err := watch.New(watch.Config{
		Source:    src,
		Ledger:    led,
		Model:     sigModel,
		Symbols:   wl.Symbols,
		Active:    wl.Active,
		Publisher: hub,
		Reports:   st.reports(),
		Journal:   st.sqlite,
		Notifier:  buildNotifier(cfg),
		Metrics:   m,
		Health:    health,
		OnWatchList: func(symbols []string, active string) {
			wl.Symbols, wl.Active = symbols, active
			if err := config.SaveWatchList(cfg.WatchListPath, wl); err != nil {
				slog.Error("[serve] save watch list", slog.Any("err", err))
			}
		},
	})
	if err != nil {
		return err
	}

	pollCfg := feed.PollerConfig{
		Interval: cfg.PollInterval,
		Symbols:  loop.Symbols,
		Metrics:  m,
		Health:   health,
	}
	if cfg.MarketHoursOnly {
		pollCfg.Gate = func(t time.Time) bool {
			for _, s := range loop.Symbols() {
				if markethours.MarketOf(s).IsOpen(t) {
					return true
				}
			}
			return false
		}
	}
	poller := feed.NewPoller(src, pollCfg)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, st.redisClient(), st.sqlite.DB(), livenessInterval)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, loop, start)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("[serve] gateway listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("[serve] gateway server error", slog.Any("err", err))
		}
	}()

	go poller.Run(ctx)
	go hub.RunStatus(ctx, statusInterval, loop.Active, start)

	slog.Info("[serve] running",
		slog.Any("symbols", wl.Symbols),
		slog.String("active", wl.Active),
		slog.String("model", sigModel.Name()),
		slog.Bool("redis", st.redis != nil),
	)

	loop.Run(ctx, poller.Batches(), poller.Current)

	slog.Info("[serve] shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("[serve] gateway shutdown", slog.Any("err", err))
	}
	metricsSrv.Stop(shutdownCtx)
	slog.Info("[serve] stopped")
	return nil
}
