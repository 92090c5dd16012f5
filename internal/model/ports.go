package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the ledger and watch loop from concrete storage
// implementations (SQLite, Redis). Each implementation satisfies one or more.

// SnapshotStore reads and writes the ledger snapshot as raw JSON.
// Using []byte avoids a model→ledger import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded ledger snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}

// TradeJournal appends fills to an audit log. Deleting a trade from the
// ledger history does not touch the journal.
type TradeJournal interface {
	// RecordTrades appends a batch of fills in one transaction.
	RecordTrades(ctx context.Context, trades []Trade) error

	// Close releases underlying resources.
	Close() error
}

// ReportPublisher pushes a JSON-encoded payload for a symbol to downstream
// consumers (e.g. Redis PubSub).
type ReportPublisher interface {
	PublishReport(ctx context.Context, symbol string, data []byte) error
}
