package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"marketwatch/internal/markethours"
	"marketwatch/internal/model"
)

// Tencent Finance endpoints.
const (
	DefaultQuoteURL  = "http://qt.gtimg.cn/q="
	DefaultKlineURL  = "http://web.ifzq.gtimg.cn/appstock/app/fqkline/get"
	DefaultMinuteURL = "http://web.ifzq.gtimg.cn/appstock/app/minute/query"
)

// Options configures a TencentProvider. Empty URLs take the defaults.
type Options struct {
	QuoteURL  string
	KlineURL  string
	MinuteURL string
	Timeout   time.Duration
	Client    *http.Client
}

// TencentProvider provides quotes and series from Tencent Finance.
type TencentProvider struct {
	quoteURL  string
	klineURL  string
	minuteURL string
	client    *http.Client
}

// NewTencentProvider creates a provider.
func NewTencentProvider(opts Options) *TencentProvider {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &TencentProvider{
		quoteURL:  orDefault(opts.QuoteURL, DefaultQuoteURL),
		klineURL:  orDefault(opts.KlineURL, DefaultKlineURL),
		minuteURL: orDefault(opts.MinuteURL, DefaultMinuteURL),
		client:    client,
	}
}

func (t *TencentProvider) Name() string { return "tencent" }

// Quotes fetches snapshots for symbols in one request.
func (t *TencentProvider) Quotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	if len(symbols) == 0 {
		return []model.Quote{}, nil
	}
	body, err := t.get(ctx, t.quoteURL+strings.Join(symbols, ","))
	if err != nil {
		return nil, err
	}
	// The quote endpoint answers in GBK.
	if utf8, err := simplifiedchinese.GBK.NewDecoder().Bytes(body); err == nil {
		body = utf8
	}
	return ParseQuotes(string(body), time.Now()), nil
}

// Daily fetches up to n forward-adjusted daily bars.
func (t *TencentProvider) Daily(ctx context.Context, symbol string, n int) ([]model.PricePoint, error) {
	if n <= 0 {
		n = 120
	}
	q := url.Values{}
	q.Set("param", fmt.Sprintf("%s,day,,,%d,qfq", symbol, n))
	body, err := t.get(ctx, t.klineURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return ParseDaily(body, symbol)
}

// Minute fetches today's minute series.
func (t *TencentProvider) Minute(ctx context.Context, symbol string) ([]model.MinutePoint, error) {
	q := url.Values{}
	q.Set("code", symbol)
	body, err := t.get(ctx, t.minuteURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return ParseMinute(body, symbol)
}

func (t *TencentProvider) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed: read body: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("<")) {
		return nil, ErrHTMLResponse
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// ParseQuotes parses the v_<symbol>="f0~f1~..."; lines of the quote
// endpoint. Missing or non-numeric fields are left at zero; lines without a
// price field are skipped.
func ParseQuotes(body string, now time.Time) []model.Quote {
	var out []model.Quote
	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		eq := strings.Index(line, "=")
		if !strings.HasPrefix(line, "v_") || eq < 0 {
			continue
		}
		symbol := line[2:eq]
		payload := strings.Trim(line[eq+1:], `"`)
		fields := strings.Split(payload, "~")
		if len(fields) < 6 {
			continue
		}
		out = append(out, quoteFromFields(symbol, fields, now))
	}
	return out
}

func quoteFromFields(symbol string, f []string, now time.Time) model.Quote {
	num := func(i int) float64 {
		if i >= len(f) {
			return 0
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(f[i]), 64)
		if err != nil || v != v {
			return 0
		}
		return v
	}
	field := func(i int) string {
		if i >= len(f) {
			return ""
		}
		return f[i]
	}

	market := markethours.MarketOf(symbol)
	q := model.Quote{
		Symbol:           symbol,
		Name:             field(1),
		Price:            num(3),
		PrevClose:        num(4),
		Open:             num(5),
		DayChangePercent: num(32),
		High:             num(33),
		Low:              num(34),
		Volume:           num(36),
		AmountTraded:     num(37),
		TurnoverRate:     num(38),
		TS:               now,
	}
	if market.Code == markethours.CN {
		q.Volume *= 100       // lots
		q.AmountTraded *= 1e4 // ten-thousands of yuan
	}
	if ts, err := time.ParseInLocation("20060102150405", field(30), market.Location); err == nil {
		q.TS = ts
	}
	return q
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// decodeData unwraps the common envelope into data keyed by symbol. The
// provider sends an empty array instead of an object for unknown symbols.
func decodeData(body []byte, what string, data interface{}) (bool, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("feed: decode %s: %w", what, err)
	}
	if resp.Code != 0 {
		return false, fmt.Errorf("feed: %s api error %d: %s", what, resp.Code, resp.Msg)
	}
	trimmed := bytes.TrimSpace(resp.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false, nil
	}
	if err := json.Unmarshal(trimmed, data); err != nil {
		return false, fmt.Errorf("feed: decode %s data: %w", what, err)
	}
	return true, nil
}

// ParseDaily parses the fqkline payload. Rows are [date, open, close, high,
// low, volume, ...]; malformed rows, rows with a non-positive close and bars
// outside their high/low envelope are dropped. The result is sorted oldest first.
func ParseDaily(body []byte, symbol string) ([]model.PricePoint, error) {
	var data map[string]map[string]json.RawMessage
	ok, err := decodeData(body, "daily", &data)
	if err != nil {
		return nil, err
	}
	series, found := data[symbol]
	if !ok || !found {
		return []model.PricePoint{}, nil
	}
	raw, ok := series["qfqday"]
	if !ok {
		raw = series["day"]
	}
	var rows [][]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("feed: decode daily rows: %w", err)
		}
	}

	out := make([]model.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		dateStr, _ := row[0].(string)
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		p := model.PricePoint{
			Date:   date,
			Open:   anyFloat(row[1]),
			Close:  anyFloat(row[2]),
			High:   anyFloat(row[3]),
			Low:    anyFloat(row[4]),
			Volume: anyFloat(row[5]),
		}
		if p.Close <= 0 || !p.Valid() {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type minuteEntry struct {
	Data struct {
		Data []string `json:"data"`
		Date string   `json:"date"`
	} `json:"data"`
}

// ParseMinute parses "HHMM price cumVolume ..." samples and converts the
// cumulative volume into increments.
func ParseMinute(body []byte, symbol string) ([]model.MinutePoint, error) {
	var data map[string]minuteEntry
	ok, err := decodeData(body, "minute", &data)
	if err != nil {
		return nil, err
	}
	entry, found := data[symbol]
	if !ok || !found {
		return []model.MinutePoint{}, nil
	}

	loc := markethours.MarketOf(symbol).Location
	day, _ := time.ParseInLocation("20060102", entry.Data.Date, loc)

	points := make([]model.MinutePoint, 0, len(entry.Data.Data))
	cumulative := make([]float64, 0, len(entry.Data.Data))
	for _, s := range entry.Data.Data {
		parts := strings.Fields(s)
		if len(parts) < 3 || len(parts[0]) != 4 {
			continue
		}
		hh, err1 := strconv.Atoi(parts[0][:2])
		mm, err2 := strconv.Atoi(parts[0][2:])
		price, err3 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || err3 != nil || price <= 0 {
			continue
		}
		cum, err := strconv.ParseFloat(parts[2], 64)
		if err != nil && len(cumulative) > 0 {
			cum = cumulative[len(cumulative)-1]
		} else if err != nil {
			cum = 0
		}
		ts := time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, loc)
		points = append(points, model.MinutePoint{Time: ts, Price: price})
		cumulative = append(cumulative, cum)
	}
	for i, v := range DiffVolumes(cumulative) {
		points[i].Volume = v
	}
	return points, nil
}

func anyFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
