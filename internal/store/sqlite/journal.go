package sqlite

import (
	"context"
	"fmt"
	"time"

	"marketwatch/internal/model"
)

// RecordTrades inserts fills in a single transaction. Re-recording a trade id
// is a no-op.
func (s *Store) RecordTrades(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO trades (id, order_id, symbol, side, price, qty, amount, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare trades: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx, t.ID, t.OrderID, t.Symbol, string(t.Side),
			t.FillPrice, t.Quantity, t.Notional, t.FilledAt.UnixMilli())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert trade %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit trades: %w", err)
	}
	s.metrics.ObserveSQLiteCommit(time.Since(start))
	return nil
}

// Trades returns journaled fills oldest first. An empty symbol matches all;
// limit <= 0 means no limit.
func (s *Store) Trades(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, price, qty, amount, filled_at
		FROM trades
		WHERE ? = '' OR symbol = ?
		ORDER BY filled_at ASC, rowid ASC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t      model.Trade
			side   string
			filled int64
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &t.FillPrice, &t.Quantity, &t.Notional, &filled); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.FilledAt = time.UnixMilli(filled)
		out = append(out, t)
	}
	return out, rows.Err()
}
