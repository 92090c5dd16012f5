// Package anomaly flags unusual intraday behaviour from a quote and its
// minute series. It is independent of the signal engine.
package anomaly

import (
	"fmt"
	"math"

	"marketwatch/internal/markethours"
	"marketwatch/internal/model"
)

// Label names a detected pattern.
type Label string

const (
	PanicSelloff  Label = "panic_selloff"
	VolumeSpike   Label = "volume_spike"
	StagnantRally Label = "stagnant_rally"
	HotMoney      Label = "hot_money"
)

// Result is a single detection. WinRate is an informational historical tag,
// not a prediction.
type Result struct {
	Symbol      string  `json:"symbol"`
	Label       Label   `json:"label"`
	WinRate     float64 `json:"win_rate"`
	Description string  `json:"description"`
	DayChange   float64 `json:"day_change"`
	Turnover    float64 `json:"turnover"`
	VolumeRatio float64 `json:"volume_ratio"`
}

// Thresholds parameterise the rules for one market convention.
type Thresholds struct {
	PanicChange   float64 // day change at or below
	PanicRatio    float64
	SpikeRatio    float64
	SpikeChange   float64
	StagnantTurn  float64
	StagnantBand  float64 // |day change| below
	HotMoneyTurn  float64
	HotMoneyMinUp float64
}

var (
	// DefaultThresholds apply to CN and HK listings.
	DefaultThresholds = Thresholds{
		PanicChange: -5, PanicRatio: 3,
		SpikeRatio: 5, SpikeChange: 2,
		StagnantTurn: 10, StagnantBand: 1,
		HotMoneyTurn: 15, HotMoneyMinUp: 5,
	}
	// USThresholds use lower turnover baselines.
	USThresholds = Thresholds{
		PanicChange: -5, PanicRatio: 3,
		SpikeRatio: 4, SpikeChange: 2,
		StagnantTurn: 3, StagnantBand: 1,
		HotMoneyTurn: 5, HotMoneyMinUp: 5,
	}
)

// ThresholdsFor selects the rule set by symbol prefix.
func ThresholdsFor(symbol string) Thresholds {
	if markethours.IsUS(symbol) {
		return USThresholds
	}
	return DefaultThresholds
}

// Detect applies the ordered rules to q and minutes and returns the first
// match. ok is false when nothing fires.
func Detect(q model.Quote, minutes []model.MinutePoint) (Result, bool) {
	th := ThresholdsFor(q.Symbol)
	change := finite(q.DayChangePercent)
	if change == 0 && q.PrevClose > 0 && q.Price > 0 {
		change = finite((q.Price - q.PrevClose) / q.PrevClose * 100)
	}
	turnover := finite(q.TurnoverRate)
	ratio := LastVolumeRatio(minutes)

	r := Result{Symbol: q.Symbol, DayChange: change, Turnover: turnover, VolumeRatio: ratio}
	switch {
	case change <= th.PanicChange && ratio >= th.PanicRatio:
		r.Label, r.WinRate = PanicSelloff, 0.35
		r.Description = fmt.Sprintf("down %.2f%% with last-minute volume %.1fx average", change, ratio)
	case ratio >= th.SpikeRatio && change >= th.SpikeChange:
		r.Label, r.WinRate = VolumeSpike, 0.62
		r.Description = fmt.Sprintf("volume burst %.1fx average while up %.2f%%", ratio, change)
	case turnover >= th.StagnantTurn && math.Abs(change) < th.StagnantBand:
		r.Label, r.WinRate = StagnantRally, 0.30
		r.Description = fmt.Sprintf("turnover %.2f%% with price flat (%.2f%%)", turnover, change)
	case turnover >= th.HotMoneyTurn && change >= th.HotMoneyMinUp:
		r.Label, r.WinRate = HotMoney, 0.55
		r.Description = fmt.Sprintf("turnover %.2f%% on a %.2f%% gain", turnover, change)
	default:
		return Result{}, false
	}
	return r, true
}

// LastVolumeRatio compares the latest minute's volume with the session
// average. Returns 0 without usable volume.
func LastVolumeRatio(minutes []model.MinutePoint) float64 {
	if len(minutes) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range minutes {
		if v := finite(m.Volume); v > 0 {
			sum += v
		}
	}
	avg := sum / float64(len(minutes))
	if avg <= 0 {
		return 0
	}
	last := finite(minutes[len(minutes)-1].Volume)
	if last < 0 {
		last = 0
	}
	return finite(last / avg)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
