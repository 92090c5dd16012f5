// Package feed fetches quotes and price series from the upstream provider
// and guards state against stale responses.
package feed

import (
	"context"
	"errors"
	"math"

	"marketwatch/internal/model"
)

// ErrHTMLResponse is returned when the provider answers with an HTML page
// (rate limit, maintenance, captcha) instead of data.
var ErrHTMLResponse = errors.New("feed: provider returned an HTML page")

// Source is the quote/series collaborator.
type Source interface {
	// Quotes fetches snapshots for symbols. Symbols the provider does not
	// know are left out of the result.
	Quotes(ctx context.Context, symbols []string) ([]model.Quote, error)

	// Daily fetches up to n daily bars, oldest first.
	Daily(ctx context.Context, symbol string, n int) ([]model.PricePoint, error)

	// Minute fetches today's intraday series with incremental volume.
	Minute(ctx context.Context, symbol string) ([]model.MinutePoint, error)
}

// DiffVolumes converts cumulative volumes into per-point increments. A
// decrease (provider reset or correction) yields 0 for that point and
// non-finite samples are skipped.
func DiffVolumes(cumulative []float64) []float64 {
	out := make([]float64, len(cumulative))
	prev := 0.0
	for i, c := range cumulative {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		if d := c - prev; d > 0 {
			out[i] = d
		}
		prev = c
	}
	return out
}
