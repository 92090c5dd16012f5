package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"marketwatch/internal/markethours"
	"marketwatch/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	replayDepth   = 200 // envelopes kept per channel
	clientSendBuf = 256
)

// Hub fans watch-loop payloads out to WebSocket clients. It remembers the
// latest payload per channel for replay on connect and a short envelope
// history per channel for gap backfill.
type Hub struct {
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replay      map[string]*ReplayBuffer
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		metrics:     m,
		now:         time.Now,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replay:      make(map[string]*ReplayBuffer),
	}
}

// Attach registers an upgraded connection and starts its pumps. Clients
// passing lastTS only get latest entries newer than it.
func (h *Hub) Attach(conn *websocket.Conn, lastTS string) {
	c := newClient(h, conn)
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWSClients(n)
	slog.Info("[gateway] ws client connected", slog.Int("clients", n))

	c.sendInitialState(lastTS)
	go c.writePump()
	go c.readPump()
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.metrics.SetWSClients(n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the newest payload of every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Data
	}
	return out
}

// ReplayRange returns buffered envelopes of channel with channel_seq in
// [from, to].
func (h *Hub) ReplayRange(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	rb := h.replay[channel]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	return rb.Range(from, to)
}

// ChannelSeq returns the last sequence number issued on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// RunStatus pushes a market status envelope every interval until ctx ends.
func (h *Hub) RunStatus(ctx context.Context, interval time.Duration, active func() string, start time.Time) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			data, err := json.Marshal(CollectStatus(start, active(), h.ClientCount(), h.now()))
			if err != nil {
				continue
			}
			h.Broadcast(ChannelStatus, data)
		}
	}
}

// ChannelStatus carries process and market status.
const ChannelStatus = "status"

func marketStatus(symbol string, now time.Time) (bool, string) {
	m := markethours.MarketOf(symbol)
	return m.IsOpen(now), m.StatusString(now)
}
