package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"marketwatch/internal/model"
)

func TestDiffVolumes(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"empty", nil, []float64{}},
		{"monotonic", []float64{100, 150, 150, 400}, []float64{100, 50, 0, 250}},
		{"reset clamps to zero", []float64{100, 90, 120}, []float64{100, 0, 30}},
		{"non-finite skipped", []float64{100, math.NaN(), 130}, []float64{100, 0, 30}},
	}
	for _, tt := range tests {
		got := DiffVolumes(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("%s: len %d, want %d", tt.name, len(got), len(tt.want))
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: [%d] = %v, want %v", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestAccept(t *testing.T) {
	var g Generation
	first := g.Next()
	if !Accept(first, g.Current()) {
		t.Error("latest response must be accepted")
	}
	second := g.Next()
	if Accept(first, g.Current()) {
		t.Error("superseded response must be dropped")
	}
	if !Accept(second, g.Current()) {
		t.Error("newest response must be accepted")
	}

	if !AcceptSeries("sh600519", "sh600519") {
		t.Error("series for the selected symbol must be accepted")
	}
	if AcceptSeries("sh600519", "sz000001") || AcceptSeries("", "") {
		t.Error("series for another symbol must be dropped")
	}
}

// quoteLine builds a Tencent quote line with the fields the parser reads.
func quoteLine(symbol, name string, price, prev, open, change, high, low, vol, amount, turnover float64) string {
	f := make([]string, 50)
	for i := range f {
		f[i] = ""
	}
	f[0] = "1"
	f[1] = name
	f[3] = fmt.Sprint(price)
	f[4] = fmt.Sprint(prev)
	f[5] = fmt.Sprint(open)
	f[30] = "20260310143000"
	f[32] = fmt.Sprint(change)
	f[33] = fmt.Sprint(high)
	f[34] = fmt.Sprint(low)
	f[36] = fmt.Sprint(vol)
	f[37] = fmt.Sprint(amount)
	f[38] = fmt.Sprint(turnover)
	return fmt.Sprintf("v_%s=\"%s\";\n", symbol, strings.Join(f, "~"))
}

func TestParseQuotes(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	body := quoteLine("sh600519", "maotai", 1700, 1680, 1685, 1.19, 1710, 1675, 25000, 42000, 0.2) +
		quoteLine("usAAPL", "Apple", 190, 188, 189, 1.06, 191, 187, 5e7, 9.5e9, 0.33) +
		"v_pv_none_match=\"1\";\n" +
		`v_sz000001="1~short~000001~abc~";` + "\n"

	quotes := ParseQuotes(body, now)
	if len(quotes) != 2 {
		t.Fatalf("quotes = %d, want 2: %+v", len(quotes), quotes)
	}

	cn := quotes[0]
	if cn.Symbol != "sh600519" || cn.Price != 1700 || cn.PrevClose != 1680 || cn.Open != 1685 {
		t.Errorf("cn quote = %+v", cn)
	}
	if cn.High != 1710 || cn.Low != 1675 || cn.DayChangePercent != 1.19 || cn.TurnoverRate != 0.2 {
		t.Errorf("cn quote = %+v", cn)
	}
	if cn.Volume != 2500000 || cn.AmountTraded != 4.2e8 {
		t.Errorf("cn volume/amount = %v/%v, want lots and 1e4 scaling", cn.Volume, cn.AmountTraded)
	}
	if !cn.TS.Equal(time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)) {
		t.Errorf("cn ts = %v", cn.TS)
	}

	us := quotes[1]
	if us.Volume != 5e7 || us.AmountTraded != 9.5e9 {
		t.Errorf("us volume/amount = %v/%v, want unscaled", us.Volume, us.AmountTraded)
	}
}

func TestParseQuotes_TolerantOfShortLines(t *testing.T) {
	quotes := ParseQuotes(`v_sz000001="1~name~000001~12.5~12.0~12.1";`, time.Now())
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	q := quotes[0]
	if q.Price != 12.5 || q.High != 0 || q.TurnoverRate != 0 {
		t.Errorf("short line quote = %+v", q)
	}
}

func TestParseDaily(t *testing.T) {
	body := []byte(`{"code":0,"msg":"","data":{"sh600519":{"qfqday":[
		["2026-03-09","10.0","10.5","10.8","9.9","12000.000"],
		["2026-03-06","9.8","10.0","10.1","9.7","11000.000", {"nd":"2025"}],
		["bad-date","1","1","1","1","1"],
		["2026-03-10","10.5","0","10.6","10.4","9000"],
		["2026-03-11","10.5"],
		["2026-03-12","10.0","10.6","10.4","9.9","8000"],
		["2026-03-13","10.0","10.2","10.4","10.1","8000"],
		["2026-03-16","10.0","10.2","10.4","9.9","-1"]
	],"qt":{}}}}`)
	got, err := ParseDaily(body, "sh600519")
	if err != nil {
		t.Fatalf("ParseDaily: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bars = %d, want 2: %+v", len(got), got)
	}
	if got[0].Date.Day() != 6 || got[1].Date.Day() != 9 {
		t.Errorf("bars not sorted oldest first: %v, %v", got[0].Date, got[1].Date)
	}
	want := model.PricePoint{Date: got[1].Date, Open: 10, Close: 10.5, High: 10.8, Low: 9.9, Volume: 12000}
	if got[1] != want {
		t.Errorf("bar = %+v, want %+v", got[1], want)
	}
}

func TestParseDaily_PlainDayAndUnknownSymbol(t *testing.T) {
	body := []byte(`{"code":0,"data":{"usAAPL":{"day":[["2026-03-09",189,190,191,187,50000000]]}}}`)
	got, err := ParseDaily(body, "usAAPL")
	if err != nil || len(got) != 1 || got[0].Close != 190 {
		t.Fatalf("got %+v err %v", got, err)
	}

	got, err = ParseDaily([]byte(`{"code":0,"data":[]}`), "xx")
	if err != nil || len(got) != 0 {
		t.Errorf("unknown symbol: got %+v err %v", got, err)
	}
	if _, err := ParseDaily([]byte(`{"code":-1,"msg":"bad param"}`), "x"); err == nil {
		t.Error("expected api error")
	}
}

func TestParseMinute(t *testing.T) {
	body := []byte(`{"code":0,"data":{"sh600519":{"data":{"date":"20260310","data":[
		"0930 1700.00 100 170000.00",
		"0931 1701.00 250 425250.00",
		"0932 oops 300",
		"0933 1699.00 240 0",
		"0934 1702.00 400 0"
	]}}}}`)
	got, err := ParseMinute(body, "sh600519")
	if err != nil {
		t.Fatalf("ParseMinute: %v", err)
	}
	wantVol := []float64{100, 150, 0, 160}
	if len(got) != len(wantVol) {
		t.Fatalf("points = %d, want %d", len(got), len(wantVol))
	}
	for i, w := range wantVol {
		if got[i].Volume != w {
			t.Errorf("[%d] volume = %v, want %v", i, got[i].Volume, w)
		}
	}
	if got[1].Time.Hour() != 9 || got[1].Time.Minute() != 31 || got[1].Time.Day() != 10 {
		t.Errorf("time = %v", got[1].Time)
	}
}

func TestTencentProvider_HTTP(t *testing.T) {
	name, _ := simplifiedchinese.GBK.NewEncoder().String("贵州茅台")
	mux := http.NewServeMux()
	mux.HandleFunc("/q", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("s"); got != "sh600519,sz000001" {
			t.Errorf("symbols = %q", got)
		}
		fmt.Fprint(w, quoteLine("sh600519", name, 1700, 1680, 1685, 1.19, 1710, 1675, 1, 1, 0.2))
	})
	mux.HandleFunc("/kline", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("param"); got != "sh600519,day,,,30,qfq" {
			t.Errorf("param = %q", got)
		}
		fmt.Fprint(w, `{"code":0,"data":{"sh600519":{"qfqday":[["2026-03-09","1","2","3","0.5","10"]]}}}`)
	})
	mux.HandleFunc("/minute", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"sh600519":{"data":{"date":"20260310","data":["0930 1700 5"]}}}}`)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "  <html><body>rate limited</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewTencentProvider(Options{
		QuoteURL:  srv.URL + "/q?s=",
		KlineURL:  srv.URL + "/kline",
		MinuteURL: srv.URL + "/minute",
	})
	ctx := context.Background()

	quotes, err := p.Quotes(ctx, []string{"sh600519", "sz000001"})
	if err != nil || len(quotes) != 1 {
		t.Fatalf("Quotes: %+v %v", quotes, err)
	}
	if quotes[0].Name != "贵州茅台" {
		t.Errorf("name = %q, want GBK-decoded", quotes[0].Name)
	}

	series, err := FetchSeries(ctx, p, "sh600519", 30)
	if err != nil {
		t.Fatalf("FetchSeries: %v", err)
	}
	if len(series.Daily) != 1 || len(series.Minute) != 1 || series.Minute[0].Volume != 5 {
		t.Errorf("series = %+v", series)
	}

	blocked := NewTencentProvider(Options{QuoteURL: srv.URL + "/blocked?s="})
	if _, err := blocked.Quotes(ctx, []string{"sh600519"}); !errors.Is(err, ErrHTMLResponse) {
		t.Errorf("err = %v, want ErrHTMLResponse", err)
	}
}

// gatedSource blocks the first Quotes call until release is closed.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (s *gatedSource) Quotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	s.started <- struct{}{}
	if n == 1 {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []model.Quote{{Symbol: symbols[0], Price: float64(n)}}, nil
}

func (s *gatedSource) Daily(context.Context, string, int) ([]model.PricePoint, error) {
	return nil, nil
}

func (s *gatedSource) Minute(context.Context, string) ([]model.MinutePoint, error) {
	return nil, nil
}

func TestPoller_OverlappingFetchesAreStamped(t *testing.T) {
	src := newGatedSource()
	p := NewPoller(src, PollerConfig{Symbols: func() []string { return []string{"sh600519"} }})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := p.PollOnce(ctx)
	<-src.started // the first fetch is in flight before the second is issued
	second := p.PollOnce(ctx)
	if first != 1 || second != 2 {
		t.Fatalf("stamps = %d,%d want 1,2", first, second)
	}

	recv := func() QuoteBatch {
		select {
		case b := <-p.Batches():
			return b
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for batch")
		}
		return QuoteBatch{}
	}

	fresh := recv()
	if fresh.Seq != second || !Accept(fresh.Seq, p.Current()) {
		t.Errorf("fresh batch seq %d not accepted (current %d)", fresh.Seq, p.Current())
	}

	close(src.release)
	late := recv()
	if late.Seq != first || Accept(late.Seq, p.Current()) {
		t.Errorf("late batch seq %d must be rejected (current %d)", late.Seq, p.Current())
	}
}

func TestPoller_GateAndEmptyWatchList(t *testing.T) {
	src := newGatedSource()
	closed := NewPoller(src, PollerConfig{
		Symbols: func() []string { return []string{"sh600519"} },
		Gate:    func(time.Time) bool { return false },
	})
	if seq := closed.PollOnce(context.Background()); seq != 0 {
		t.Errorf("gated poll issued stamp %d", seq)
	}
	empty := NewPoller(src, PollerConfig{})
	if seq := empty.PollOnce(context.Background()); seq != 0 {
		t.Errorf("empty watch list issued stamp %d", seq)
	}
}
