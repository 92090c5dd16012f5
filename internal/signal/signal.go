// Package signal derives discrete market-phase reports from a quote, its
// daily series and its intraday series.
//
// Two heuristics are provided as interchangeable Models: the intraday
// deviation-band ("t0") model and the five-phase "force" model. They encode
// different rules and are not meant to agree with each other.
package signal

import (
	"fmt"
	"strings"
	"time"

	"marketwatch/internal/indicator"
	"marketwatch/internal/model"
)

// Phase is the discrete classification a model assigns.
type Phase string

const (
	// t0 model
	PhaseOpportunity Phase = "opportunity"
	PhaseRisk        Phase = "risk"
	PhaseNeutral     Phase = "neutral"

	// force model
	PhaseAccumulation Phase = "accumulation"
	PhaseShakeout     Phase = "shakeout"
	PhaseLifting      Phase = "lifting"
	PhaseDistribution Phase = "distribution"
	PhaseChaos        Phase = "chaos"
)

// Advice is the action a report recommends.
type Advice string

const (
	AdviceBuy  Advice = "BUY"
	AdviceSell Advice = "SELL"
	AdviceHold Advice = "HOLD"
	AdviceWait Advice = "WAIT"
)

// Axes scores the four dimensions of a report, each in [0, 100].
type Axes struct {
	Volume float64 `json:"volume"`
	Price  float64 `json:"price"`
	Time   float64 `json:"time"`
	Space  float64 `json:"space"`
}

// Band holds the intraday deviation-band levels.
type Band struct {
	VWAP  float64 `json:"vwap"`
	Width float64 `json:"width"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

// Input is everything a model may look at. Holding is optional.
type Input struct {
	Quote   model.Quote
	Daily   []model.PricePoint
	Minute  []model.MinutePoint
	Holding *model.Holding

	// SessionProgress is the elapsed fraction of the trading session (0..1).
	SessionProgress float64
}

// Report is the common output of every model. It is a pure function of its
// Input and carries no identity between evaluations.
type Report struct {
	Model         string         `json:"model"`
	Symbol        string         `json:"symbol"`
	Price         float64        `json:"price"`
	Phase         Phase          `json:"phase"`
	Confidence    float64        `json:"confidence"`
	Axes          Axes           `json:"axes"`
	StopLossPrice float64        `json:"stop_loss_price"`
	IsAboveStop   bool           `json:"is_above_stop"`
	Advice        Advice         `json:"advice"`
	Reason        string         `json:"reason"`
	BuyPoint      float64        `json:"buy_point,omitempty"`
	SellPoint     float64        `json:"sell_point,omitempty"`
	Band          *Band          `json:"band,omitempty"`
	RSI           float64        `json:"rsi"`
	VolumeRatio   float64        `json:"volume_ratio"`
	Amplitude5    float64        `json:"amplitude5"`
	Trend         TrendReport    `json:"trend"`
	Holding       *HoldingReport `json:"holding,omitempty"`
	HoldingAdvice string         `json:"holding_advice,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"` // stamped by the caller
}

// Model is the interface all signal profiles implement.
type Model interface {
	// Name returns the configuration key of the model ("t0", "force").
	Name() string

	// Evaluate builds a full report. It never fails; missing data falls
	// back to neutral values.
	Evaluate(in Input) Report
}

// New returns the model registered under name.
func New(name string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "t0", "band":
		return NewBandModel(), nil
	case "force", "phase":
		return NewForceModel(), nil
	default:
		return nil, fmt.Errorf("unknown signal model %q", name)
	}
}

// base fills the fields shared by every model: indicators, trend, holding
// and the trailing-stop line.
func base(name string, in Input, set indicator.Set) Report {
	price := indicator.SafeNumber(in.Quote.Price, 0)
	stop := set.Stop()

	r := Report{
		Model:         name,
		Symbol:        in.Quote.Symbol,
		Price:         price,
		StopLossPrice: stop,
		IsAboveStop:   !(stop > 0 && price < stop),
		RSI:           set.RSI,
		VolumeRatio:   set.VolumeRatio,
		Amplitude5:    set.Amplitude5,
	}
	r.Trend = Trend(price, in.Daily, set)
	if in.Holding.Held() {
		h := Holding(price, *in.Holding, r.Trend)
		r.Holding = &h
		r.HoldingAdvice = h.Advice
	}
	return r
}

// dayChange prefers the provider's change percent and derives it from the
// previous close when the provider left it blank.
func dayChange(q model.Quote) float64 {
	if v := indicator.SafeNumber(q.DayChangePercent, 0); v != 0 {
		return v
	}
	if q.PrevClose > 0 && q.Price > 0 {
		return indicator.SafeNumber((q.Price-q.PrevClose)/q.PrevClose*100, 0)
	}
	return 0
}

// sanitize replaces any non-finite float the rules may have produced.
func sanitize(r *Report) {
	r.Price = indicator.SafeNumber(r.Price, 0)
	r.Confidence = indicator.Clamp(r.Confidence, 0, 100)
	r.Axes.Volume = indicator.Clamp(r.Axes.Volume, 0, 100)
	r.Axes.Price = indicator.Clamp(r.Axes.Price, 0, 100)
	r.Axes.Time = indicator.Clamp(r.Axes.Time, 0, 100)
	r.Axes.Space = indicator.Clamp(r.Axes.Space, 0, 100)
	r.StopLossPrice = indicator.SafeNumber(r.StopLossPrice, 0)
	r.BuyPoint = indicator.SafeNumber(r.BuyPoint, 0)
	r.SellPoint = indicator.SafeNumber(r.SellPoint, 0)
	r.RSI = indicator.SafeNumber(r.RSI, 50)
	r.VolumeRatio = indicator.SafeNumber(r.VolumeRatio, 1)
	r.Amplitude5 = indicator.SafeNumber(r.Amplitude5, 0)
	if r.Band != nil {
		r.Band.VWAP = indicator.SafeNumber(r.Band.VWAP, 0)
		r.Band.Width = indicator.SafeNumber(r.Band.Width, 0)
		r.Band.Upper = indicator.SafeNumber(r.Band.Upper, 0)
		r.Band.Lower = indicator.SafeNumber(r.Band.Lower, 0)
	}
}
