package gateway

import (
	"strconv"
	"time"
)

// Broadcast wraps data in an envelope and queues it for every client
// subscribed to channel. Slow clients drop messages rather than block.
//
// Envelope: {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.channelSeqs[channel]++
	chSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: append([]byte(nil), data...), TS: now, Seq: chSeq}
	rb := h.replay[channel]
	if rb == nil {
		rb = NewReplayBuffer(replayDepth)
		h.replay[channel] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, chSeq, false)
	rb.Push(chSeq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.metrics.WSDrop()
		}
	}
}

// buildEnvelope appends the envelope by hand; data is already JSON.
func buildEnvelope(channel string, data []byte, ts time.Time, seq, chSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, chSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
