package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketwatch/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
)

const (
	snapshotKey       = "ledger:snapshot"
	reportChanPrefix  = "report:"
	reportLatestKey   = "report:latest:"
	defaultLatestTTL  = 30 * time.Minute
	defaultMaxFailure = 5
	defaultResetAfter = 10 * time.Second
)

// Config configures the Redis store.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Metrics  *metrics.Metrics
}

// Store keeps the ledger snapshot and publishes reports. Every call goes
// through a circuit breaker; while it is open the newest snapshot is held
// locally and written once the breaker closes, and reports are dropped.
type Store struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	metrics *metrics.Metrics

	// wmu serializes snapshot writes so an older snapshot never lands
	// after a newer one.
	wmu sync.Mutex

	mu         sync.Mutex
	pending    []byte
	pendingVer uint64
	writtenVer uint64
	nextVer    uint64
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker exposes the circuit breaker.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// New connects and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("[redis] connected", slog.String("addr", cfg.Addr))
	return newStore(client, NewCircuitBreaker(defaultMaxFailure, defaultResetAfter), cfg.Metrics), nil
}

func newStore(client *goredis.Client, cb *CircuitBreaker, m *metrics.Metrics) *Store {
	s := &Store{client: client, cb: cb, metrics: m}
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		m.SetBreakerState(int(to), to == StateOpen)
		slog.Warn("[redis] circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
		if to == StateClosed {
			go s.flushPending()
		}
	}
	return s
}

// SaveSnapshotJSON writes the snapshot. An open breaker is not an error: the
// snapshot is kept and replayed later.
func (s *Store) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	ver := s.hold(data)
	start := time.Now()
	err := s.cb.Execute(func() error {
		return s.client.Set(ctx, snapshotKey, data, 0).Err()
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis SET %s: %w", snapshotKey, err)
	}
	s.metrics.ObserveRedisWrite(time.Since(start))
	s.markWritten(ver)
	return nil
}

// ReadLatestSnapshotJSON returns the stored snapshot, or nil when none exists.
func (s *Store) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", snapshotKey, err)
	}
	return data, nil
}

// PublishReport stores the latest report for a symbol and publishes it on
// report:{symbol}.
func (s *Store) PublishReport(ctx context.Context, symbol string, data []byte) error {
	start := time.Now()
	err := s.cb.Execute(func() error {
		pipe := s.client.Pipeline()
		pipe.Set(ctx, reportLatestKey+symbol, data, defaultLatestTTL)
		pipe.Publish(ctx, reportChanPrefix+symbol, data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis publish report %s: %w", symbol, err)
	}
	s.metrics.ObserveRedisWrite(time.Since(start))
	return nil
}

// LatestReport returns the last published report for a symbol, or nil.
func (s *Store) LatestReport(ctx context.Context, symbol string) ([]byte, error) {
	data, err := s.client.Get(ctx, reportLatestKey+symbol).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET report %s: %w", symbol, err)
	}
	return data, nil
}

// SubscribeReports subscribes to report:{symbol}. The caller closes the
// returned PubSub.
func (s *Store) SubscribeReports(ctx context.Context, symbol string) *goredis.PubSub {
	return s.client.Subscribe(ctx, reportChanPrefix+symbol)
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
