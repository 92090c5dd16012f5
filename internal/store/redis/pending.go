package redis

import (
	"context"
	"log/slog"
	"time"
)

// hold makes data the snapshot to replay and returns its version. Only the
// newest one matters.
func (s *Store) hold(data []byte) uint64 {
	cp := append([]byte(nil), data...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVer++
	s.pending = cp
	s.pendingVer = s.nextVer
	return s.nextVer
}

// markWritten records that version ver reached Redis and drops the held
// snapshot if it is not newer.
func (s *Store) markWritten(ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ver > s.writtenVer {
		s.writtenVer = ver
	}
	if s.pendingVer <= s.writtenVer {
		s.pending = nil
	}
}

// HasPending reports whether a snapshot is waiting to be written.
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// flushPending writes the held snapshot straight to the client. It runs from
// the breaker callback, so it must not call back into the breaker. A snapshot
// already superseded by a successful write is dropped.
func (s *Store) flushPending() {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	data, ver := s.pending, s.pendingVer
	if data != nil && ver <= s.writtenVer {
		s.pending, data = nil, nil
	}
	s.mu.Unlock()
	if data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		slog.Warn("[redis] pending snapshot flush failed", slog.Any("err", err))
		return
	}
	s.markWritten(ver)
	slog.Info("[redis] flushed pending snapshot", slog.Int("bytes", len(data)))
}
