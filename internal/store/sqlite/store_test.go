package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketwatch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshot_EmptyReturnsNil(t *testing.T) {
	s := openTestStore(t)
	data, err := s.ReadLatestSnapshotJSON(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil snapshot, got %s", data)
	}
}

func TestSnapshot_LatestWinsAndPrunes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < keepSnapshots+5; i++ {
		payload := []byte(`{"cash":` + string(rune('0'+i%10)) + `}`)
		if err := s.SaveSnapshotJSON(ctx, payload); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := s.SaveSnapshotJSON(ctx, []byte(`{"cash":42}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := s.ReadLatestSnapshotJSON(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"cash":42}` {
		t.Errorf("latest = %s, want {\"cash\":42}", data)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM ledger_snapshots`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != keepSnapshots {
		t.Errorf("kept %d snapshots, want %d", n, keepSnapshots)
	}
}

func TestRecordTrades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	trades := []model.Trade{
		{ID: "t1", OrderID: "o1", Symbol: "sh600519", Side: model.SideBuy, FillPrice: 10, Quantity: 100, Notional: 1000, FilledAt: base},
		{ID: "t2", OrderID: "o2", Symbol: "hk00700", Side: model.SideSell, FillPrice: 300, Quantity: 10, Notional: 3000, FilledAt: base.Add(time.Minute)},
		{ID: "t3", OrderID: "o3", Symbol: "sh600519", Side: model.SideSell, FillPrice: 11, Quantity: 50, Notional: 550, FilledAt: base.Add(2 * time.Minute)},
	}
	if err := s.RecordTrades(ctx, trades); err != nil {
		t.Fatalf("record: %v", err)
	}
	// duplicates are ignored
	if err := s.RecordTrades(ctx, trades[:1]); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	all, err := s.Trades(ctx, "", 0)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(all))
	}
	if all[0].ID != "t1" || all[2].ID != "t3" {
		t.Errorf("order = %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[1].Side != model.SideSell || all[1].Notional != 3000 || !all[1].FilledAt.Equal(base.Add(time.Minute)) {
		t.Errorf("round trip mismatch: %+v", all[1])
	}

	mine, err := s.Trades(ctx, "sh600519", 1)
	if err != nil {
		t.Fatalf("trades by symbol: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "t1" {
		t.Errorf("filtered = %+v", mine)
	}
}

func TestRecordTrades_Empty(t *testing.T) {
	s := openTestStore(t)
	if err := s.RecordTrades(context.Background(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}
