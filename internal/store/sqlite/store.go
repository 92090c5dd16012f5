package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"marketwatch/internal/metrics"

	_ "github.com/mattn/go-sqlite3"
)

// keepSnapshots bounds the ledger_snapshots table.
const keepSnapshots = 10

// Config configures the SQLite store.
type Config struct {
	DBPath  string
	Metrics *metrics.Metrics
}

// Store persists ledger snapshots and the trade journal in one SQLite file.
type Store struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened database", slog.String("path", cfg.DBPath))
	return &Store{db: db, metrics: cfg.Metrics}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trades (
			id         TEXT    PRIMARY KEY,
			order_id   TEXT,
			symbol     TEXT    NOT NULL,
			side       TEXT    NOT NULL,
			price      REAL    NOT NULL,
			qty        INTEGER NOT NULL,
			amount     REAL    NOT NULL,
			filled_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades (symbol, filled_at);
	`)
	return err
}

// SaveSnapshotJSON appends a snapshot and prunes all but the newest few.
func (s *Store) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_snapshots (data, created_at) VALUES (?, ?)`,
		string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM ledger_snapshots
		WHERE id NOT IN (SELECT id FROM ledger_snapshots ORDER BY id DESC LIMIT ?)
	`, keepSnapshots)
	if err != nil {
		slog.Warn("[sqlite] prune snapshots failed", slog.Any("err", err))
	}

	s.metrics.ObserveSQLiteCommit(time.Since(start))
	return nil
}

// ReadLatestSnapshotJSON returns the newest snapshot, or nil when none exists.
func (s *Store) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM ledger_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
