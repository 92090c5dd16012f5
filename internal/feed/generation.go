package feed

import "sync/atomic"

// Generation stamps outgoing requests with a monotonically increasing
// sequence number. Only a response carrying the latest stamp may be applied.
type Generation struct {
	seq atomic.Uint64
}

// Next issues the stamp for a new request.
func (g *Generation) Next() uint64 { return g.seq.Add(1) }

// Current returns the stamp of the latest issued request.
func (g *Generation) Current() uint64 { return g.seq.Load() }

// Accept reports whether a response stamped respSeq is still the latest
// when currentSeq is the newest issued stamp.
func Accept(respSeq, currentSeq uint64) bool {
	return respSeq == currentSeq
}

// AcceptSeries reports whether a historical-series response for respSymbol
// may be applied while selected is the selected symbol at arrival time.
func AcceptSeries(respSymbol, selected string) bool {
	return respSymbol != "" && respSymbol == selected
}
