package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketwatch/internal/gateway"
	"marketwatch/internal/metrics"
	redisstore "marketwatch/internal/store/redis"

	"github.com/spf13/cobra"
)

// relayCmd serves the report stream of another process from Redis, so
// read-only dashboards can scale apart from the process that owns the
// ledger.
func relayCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Rebroadcast reports published to Redis over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.RedisEnabled() {
				return errors.New("relay needs REDIS_ADDR")
			}
			ctx := cmd.Context()

			m := metrics.NewMetrics()
			rs, err := redisstore.New(redisstore.Config{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				Metrics:  m,
			})
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer rs.Close()

			hub := gateway.NewHub(m)
			go gateway.RunRelay(ctx, rs.Client(), hub)

			mux := http.NewServeMux()
			gateway.RegisterStreamRoutes(mux, hub)
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			slog.Info("[relay] listening", slog.String("addr", addr), slog.String("redis", cfg.RedisAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Listen address")
	return cmd
}
