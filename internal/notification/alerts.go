package notification

import (
	"fmt"
	"time"

	"marketwatch/internal/anomaly"
	"marketwatch/internal/model"
)

// AnomalyAlert turns a detection into an alert. Panic selloffs are critical,
// everything else a warning.
func AnomalyAlert(r anomaly.Result, now time.Time) Alert {
	level := AlertWarning
	if r.Label == anomaly.PanicSelloff {
		level = AlertCritical
	}
	return Alert{
		Level:   level,
		Symbol:  r.Symbol,
		Title:   fmt.Sprintf("%s %s", r.Symbol, r.Label),
		Message: fmt.Sprintf("%s (historical win rate %.0f%%)", r.Description, r.WinRate*100),
		TS:      now,
	}
}

// FillAlert reports a paper-trading fill.
func FillAlert(tr model.Trade) Alert {
	return Alert{
		Level:   AlertInfo,
		Symbol:  tr.Symbol,
		Title:   fmt.Sprintf("%s %s filled", tr.Symbol, tr.Side),
		Message: fmt.Sprintf("%d @ %.3f (amount %.2f)", tr.Quantity, tr.FillPrice, tr.Notional),
		TS:      tr.FilledAt,
	}
}
