package indicator

import (
	"math"
	"reflect"
	"testing"
	"time"

	"marketwatch/internal/model"
)

const eps = 1e-9

// makeSeries builds a daily series from closes with a fixed ±1 envelope.
func makeSeries(closes ...float64) []model.PricePoint {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			Close:  c,
			High:   c + 1,
			Low:    c - 1,
			Volume: 1000,
		}
	}
	return out
}

func ramp(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

func TestSafeNumber(t *testing.T) {
	tests := []struct {
		in, fallback, want float64
	}{
		{1.5, 0, 1.5},
		{math.NaN(), 7, 7},
		{math.Inf(1), 50, 50},
		{math.Inf(-1), 0, 0},
	}
	for _, tt := range tests {
		if got := SafeNumber(tt.in, tt.fallback); got != tt.want {
			t.Errorf("SafeNumber(%v, %v) = %v, want %v", tt.in, tt.fallback, got, tt.want)
		}
	}
}

func TestMovingAverage_TrailingMean(t *testing.T) {
	closes := []float64{10, 11, 13, 12, 15, 14, 18, 20, 19, 21}
	series := makeSeries(closes...)

	for k := 1; k <= len(series); k++ {
		ma := MovingAverage(series, k)
		if len(ma) != len(series) {
			t.Fatalf("k=%d: expected %d points, got %d", k, len(series), len(ma))
		}
		for i, p := range ma {
			if i < k-1 {
				if p.Ready {
					t.Errorf("k=%d i=%d: expected not ready", k, i)
				}
				continue
			}
			sum := 0.0
			for j := i - k + 1; j <= i; j++ {
				sum += closes[j]
			}
			want := sum / float64(k)
			if !p.Ready || math.Abs(p.Value-want) > eps {
				t.Errorf("k=%d i=%d: expected %.6f ready, got %.6f ready=%v", k, i, want, p.Value, p.Ready)
			}
		}
	}
}

func TestMovingAverage_ShortSeries(t *testing.T) {
	if got := MovingAverage(makeSeries(1, 2, 3), 5); len(got) != 0 {
		t.Errorf("expected empty result, got %d points", len(got))
	}
	if got := MovingAverage(makeSeries(1, 2, 3), 0); len(got) != 0 {
		t.Errorf("expected empty result for period 0, got %d points", len(got))
	}
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		series []model.PricePoint
		want   float64
	}{
		{"insufficient data", makeSeries(1, 2, 3, 4, 5, 6), 50},
		{"empty", nil, 50},
		{"only gains", makeSeries(ramp(10, 10, 1)...), 100},
		{"flat", makeSeries(5, 5, 5, 5, 5, 5, 5, 5), 100},
		{"only losses", makeSeries(ramp(10, 20, -1)...), 0},
		// last 6 deltas: +2 -1 +2 -1 +2 -1 → gain 6/6, loss 3/6, rs 2
		{"mixed", makeSeries(10, 12, 11, 13, 12, 14, 13), 100 - 100.0/3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RSI(tt.series, 6)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("expected RSI=%.6f, got %.6f", tt.want, got)
			}
			if got < 0 || got > 100 {
				t.Errorf("RSI out of range: %f", got)
			}
		})
	}
}

func TestRSI_BoundedOnNoisySeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)*0.7) + float64(i%3)
	}
	series := makeSeries(closes...)
	for end := 0; end <= len(series); end++ {
		v := RSI(series[:end], 6)
		if v < 0 || v > 100 || math.IsNaN(v) {
			t.Fatalf("end=%d: RSI out of range: %f", end, v)
		}
	}
}

func TestMACD(t *testing.T) {
	if got := MACD(makeSeries(ramp(25, 10, 1)...), 12, 26, 9); len(got.DIF) != 0 || len(got.DEA) != 0 || len(got.Bar) != 0 {
		t.Fatalf("expected empty MACD for short series, got %d points", len(got.DIF))
	}

	flat := MACD(makeSeries(ramp(30, 10, 0)...), 12, 26, 9)
	for i := range flat.DIF {
		if flat.DIF[i] != 0 || flat.DEA[i] != 0 || flat.Bar[i] != 0 {
			t.Fatalf("flat series should produce zero MACD at %d", i)
		}
	}

	series := makeSeries(ramp(40, 10, 0.5)...)
	m := MACD(series, 12, 26, 9)
	if len(m.DIF) != 40 {
		t.Fatalf("expected 40 points, got %d", len(m.DIF))
	}
	// seed = first close, so index 0 is always zero
	if m.DIF[0] != 0 || m.DEA[0] != 0 {
		t.Errorf("expected zero seed values, got dif=%f dea=%f", m.DIF[0], m.DEA[0])
	}
	// hand-computed second step
	c0, c1 := series[0].Close, series[1].Close
	s := c1*2/13 + c0*11/13
	l := c1*2/27 + c0*25/27
	if math.Abs(m.DIF[1]-(s-l)) > eps {
		t.Errorf("expected dif[1]=%f, got %f", s-l, m.DIF[1])
	}
	for i := range m.Bar {
		if math.Abs(m.Bar[i]-2*(m.DIF[i]-m.DEA[i])) > eps {
			t.Fatalf("bar[%d] != 2*(dif-dea)", i)
		}
	}
	dif, _, _ := m.Last()
	if dif <= 0 {
		t.Errorf("rising series should have positive dif, got %f", dif)
	}
}

func TestTrailingStop_BelowWindowHigh(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3)
	}
	series := makeSeries(closes...)
	stops := TrailingStop(series, 22, 3.0)
	if len(stops) != len(series) {
		t.Fatalf("expected %d points, got %d", len(series), len(stops))
	}
	for i, p := range stops {
		if i < 21 {
			if p.Ready {
				t.Errorf("i=%d: expected not ready", i)
			}
			continue
		}
		highest := math.Inf(-1)
		for j := i - 21; j <= i; j++ {
			highest = math.Max(highest, series[j].High)
		}
		if !p.Ready || p.Value >= highest {
			t.Errorf("i=%d: stop %.4f should be below window high %.4f", i, p.Value, highest)
		}
	}
}

func TestTrailingStop_ZeroRange(t *testing.T) {
	series := make([]model.PricePoint, 5)
	for i := range series {
		series[i] = model.PricePoint{Open: 10, Close: 10, High: 10, Low: 10}
	}
	stops := TrailingStop(series, 3, 3.0)
	v, ok := Last(stops)
	if !ok || v != 10 {
		t.Errorf("expected stop equal to high when ATR is zero, got %f ready=%v", v, ok)
	}
}

func TestTrailingStop_KnownValue(t *testing.T) {
	// TR for constant ±1 envelope and flat closes is 2 on every bar.
	series := makeSeries(ramp(5, 10, 0)...)
	v, ok := Last(TrailingStop(series, 3, 2.0))
	if !ok || math.Abs(v-(11-2*2)) > eps {
		t.Errorf("expected 7, got %f ready=%v", v, ok)
	}
}

func TestRangePosition(t *testing.T) {
	tests := []struct {
		name   string
		series []model.PricePoint
		want   float64
	}{
		{"19 bars", makeSeries(ramp(19, 10, 1)...), 50},
		{"flat window", func() []model.PricePoint {
			s := make([]model.PricePoint, 20)
			for i := range s {
				s[i] = model.PricePoint{Open: 5, Close: 5, High: 5, Low: 5}
			}
			return s
		}(), 50},
		// lows 9..28, highs 11..30, last close 29 → (29-9)/(30-9)
		{"rising", makeSeries(ramp(20, 10, 1)...), (29.0 - 9) / (30 - 9) * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RangePosition(tt.series, 20)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("expected %.4f, got %.4f", tt.want, got)
			}
		})
	}
}

func TestVWAP(t *testing.T) {
	pts := []model.MinutePoint{
		{Price: 10, Volume: 100},
		{Price: 12, Volume: 300},
		{Price: 50, Volume: 0},
	}
	if got := VWAP(pts, 1); math.Abs(got-11.5) > eps {
		t.Errorf("expected 11.5, got %f", got)
	}
	if got := VWAP(nil, 9.9); got != 9.9 {
		t.Errorf("expected fallback 9.9, got %f", got)
	}
}

func TestVolumeRatioAndAmplitude(t *testing.T) {
	series := makeSeries(ramp(10, 10, 0)...)
	for i := 5; i < 10; i++ {
		series[i].Volume = 2000
	}
	if got := VolumeRatio(series, 5); math.Abs(got-2) > eps {
		t.Errorf("expected ratio 2, got %f", got)
	}
	if got := VolumeRatio(series[:9], 5); got != 1 {
		t.Errorf("expected neutral ratio for short series, got %f", got)
	}
	// highs 11, lows 9 → 2/9
	if got := Amplitude(series, 5); math.Abs(got-2.0/9*100) > 1e-6 {
		t.Errorf("expected amplitude %.4f, got %.4f", 2.0/9*100, got)
	}
	if got := Amplitude(nil, 5); got != 0 {
		t.Errorf("expected 0 for empty series, got %f", got)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 50 + 3*math.Cos(float64(i)/4) + float64(i)/10
	}
	series := makeSeries(closes...)
	before := make([]model.PricePoint, len(series))
	copy(before, series)

	a := Compute(series, DefaultParams())
	b := Compute(series, DefaultParams())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected bit-identical output for identical input")
	}
	if !reflect.DeepEqual(before, series) {
		t.Fatal("input series was mutated")
	}
	if a.Stop() == 0 {
		t.Error("expected ready trailing stop for 80 bars")
	}
	if _, ok := a.LastMA(20); !ok {
		t.Error("expected ready MA20")
	}
}

func TestCompute_EmptySeries(t *testing.T) {
	s := Compute(nil, Params{})
	if s.RSI != 50 || s.RangePosition != 50 || s.Stop() != 0 {
		t.Errorf("unexpected fallbacks: rsi=%f range=%f stop=%f", s.RSI, s.RangePosition, s.Stop())
	}
	if _, ok := s.LastMA(20); ok {
		t.Error("expected MA20 not ready on empty series")
	}
}
