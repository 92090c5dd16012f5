package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketwatch/internal/ledger"
	"marketwatch/internal/model"
)

const persistTimeout = 5 * time.Second

// Persister returns a ledger change callback that writes every state to
// each store. Failures are logged; the in-memory ledger stays authoritative.
func Persister(stores ...model.SnapshotStore) func(ledger.State) {
	return func(s ledger.State) {
		data, err := json.Marshal(s)
		if err != nil {
			slog.Error("[ledger] marshal snapshot", slog.Any("err", err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		for _, st := range stores {
			if err := st.SaveSnapshotJSON(ctx, data); err != nil {
				slog.Warn("[ledger] snapshot save failed", slog.Any("err", err))
			}
		}
	}
}

// RestoreLedger loads the ledger from the first store holding a snapshot.
// With no snapshot anywhere a fresh account funded with capital is returned.
func RestoreLedger(ctx context.Context, capital float64, stores []model.SnapshotStore, opts ...ledger.Option) *ledger.Ledger {
	for _, st := range stores {
		data, err := st.ReadLatestSnapshotJSON(ctx)
		if err != nil {
			slog.Warn("[ledger] snapshot read failed", slog.Any("err", err))
			continue
		}
		if data == nil {
			continue
		}
		l, err := ledger.Restore(data, opts...)
		if err != nil {
			slog.Warn("[ledger] snapshot discarded", slog.Any("err", err))
			continue
		}
		slog.Info("[ledger] restored snapshot",
			slog.Float64("cash", l.Cash()),
			slog.Int("positions", len(l.Symbols())))
		return l
	}
	return ledger.New(capital, opts...)
}
