package markethours

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York without a system zoneinfo
)

// Code identifies an exchange convention.
type Code string

const (
	CN Code = "CN"
	HK Code = "HK"
	US Code = "US"
)

// Session is one continuous trading window in exchange-local minutes.
type Session struct {
	Open  int // minutes after midnight
	Close int
}

func hm(h, m int) int { return h*60 + m }

// Market describes a listing venue's trading calendar.
type Market struct {
	Code     Code
	Location *time.Location
	Sessions []Session

	// ExpectedPoints is the nominal number of intraday minute samples in a
	// full session, open and close inclusive.
	ExpectedPoints int
}

var (
	// CST is China Standard Time (UTC+8), shared by Shanghai, Shenzhen and Hong Kong.
	CST = time.FixedZone("CST", 8*3600)

	// ET is US Eastern time with daylight saving.
	ET = loadET()
)

func loadET() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

var (
	marketCN = Market{
		Code:           CN,
		Location:       CST,
		Sessions:       []Session{{hm(9, 30), hm(11, 30)}, {hm(13, 0), hm(15, 0)}},
		ExpectedPoints: 241,
	}
	marketHK = Market{
		Code:           HK,
		Location:       CST,
		Sessions:       []Session{{hm(9, 30), hm(12, 0)}, {hm(13, 0), hm(16, 0)}},
		ExpectedPoints: 331,
	}
	marketUS = Market{
		Code:           US,
		Location:       ET,
		Sessions:       []Session{{hm(9, 30), hm(16, 0)}},
		ExpectedPoints: 391,
	}
)

// MarketOf maps a provider symbol to its market by prefix: "us" → US,
// "hk" → HK, anything else (sh/sz/bj) → CN.
func MarketOf(symbol string) Market {
	s := strings.ToLower(strings.TrimSpace(symbol))
	switch {
	case strings.HasPrefix(s, "us"):
		return marketUS
	case strings.HasPrefix(s, "hk"):
		return marketHK
	default:
		return marketCN
	}
}

// IsUS reports whether symbol is US-listed.
func IsUS(symbol string) bool { return MarketOf(symbol).Code == US }

// TradingMinutes is the total length of all sessions.
func (m Market) TradingMinutes() int {
	total := 0
	for _, s := range m.Sessions {
		total += s.Close - s.Open
	}
	return total
}

// IsWeekday returns true if t is Mon–Fri in exchange time.
func (m Market) IsWeekday(t time.Time) bool {
	wd := t.In(m.Location).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (m Market) IsTradingDay(t time.Time) bool {
	return m.IsWeekday(t) && !m.IsHoliday(t)
}

// IsOpen returns true if t falls inside one of the market's sessions on a
// trading day. The lunch break counts as closed.
func (m Market) IsOpen(t time.Time) bool {
	lt := t.In(m.Location)
	if !m.IsTradingDay(lt) {
		return false
	}
	now := lt.Hour()*60 + lt.Minute()
	for _, s := range m.Sessions {
		if now >= s.Open && now < s.Close {
			return true
		}
	}
	return false
}

// SessionProgress returns the elapsed fraction (0..1) of the day's trading
// minutes at t. Before the open it is 0, after the close 1, and it holds
// steady through the lunch break. Non-trading days report 0.
func (m Market) SessionProgress(t time.Time) float64 {
	lt := t.In(m.Location)
	total := m.TradingMinutes()
	if total <= 0 || !m.IsTradingDay(lt) {
		return 0
	}
	now := float64(lt.Hour()*60+lt.Minute()) + float64(lt.Second())/60
	elapsed := 0.0
	for _, s := range m.Sessions {
		switch {
		case now >= float64(s.Close):
			elapsed += float64(s.Close - s.Open)
		case now > float64(s.Open):
			elapsed += now - float64(s.Open)
		}
	}
	return elapsed / float64(total)
}

// NextOpen returns the next session open at or after t.
func (m Market) NextOpen(t time.Time) time.Time {
	lt := t.In(m.Location)
	d := lt
	for i := 0; i < 15; i++ { // long holiday weeks
		if m.IsTradingDay(d) {
			for _, s := range m.Sessions {
				open := time.Date(d.Year(), d.Month(), d.Day(), 0, s.Open, 0, 0, m.Location)
				if !open.Before(lt) {
					return open
				}
			}
		}
		d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, m.Location)
	}
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, m.Sessions[0].Open, 0, 0, m.Location)
}

// TodayClose returns the final close of t's exchange-local day.
func (m Market) TodayClose(t time.Time) time.Time {
	lt := t.In(m.Location)
	last := m.Sessions[len(m.Sessions)-1]
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, last.Close, 0, 0, m.Location)
}

// StatusString returns a human-readable market status.
func (m Market) StatusString(t time.Time) string {
	if m.IsOpen(t) {
		d := m.TodayClose(t).Sub(t)
		return fmt.Sprintf("%s open, closes in %s", m.Code, fmtDur(d))
	}
	next := m.NextOpen(t)
	lt := next.In(m.Location)
	return fmt.Sprintf("%s closed, opens %s %s (%s)",
		m.Code, lt.Weekday().String()[:3], lt.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
