package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums the samples of family name whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue next
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObservePoll("ok", time.Millisecond)
	m.Stale("quote")
	m.Order(false)
	m.Fill("BUY")
	m.SetEquity(1)
	m.SetBreakerState(1, true)
	m.SetMarketOpen("CN", true)
}

func TestNilHealthSettersAreNoops(t *testing.T) {
	var h *HealthStatus
	h.SetFeed(true, time.Now())
	h.SetRedisEnabled(true)
	h.SetRedisConnected(true)
	h.SetSQLiteOK(true)
	h.SetActive("sh600519", "t0")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)
	m.ObservePoll("ok", time.Millisecond)
	m.ObservePoll("error", 0)
	m.Stale("quote")
	m.Stale("quote")
	m.Order(true)
	m.Order(false)
	m.Fill("SELL")
	m.SetBreakerState(1, true)

	if got := counterValue(t, reg, "marketwatch_polls_total", map[string]string{"result": "ok"}); got != 1 {
		t.Errorf("ok polls = %v, want 1", got)
	}
	if got := counterValue(t, reg, "marketwatch_stale_responses_total", map[string]string{"kind": "quote"}); got != 2 {
		t.Errorf("stale quotes = %v, want 2", got)
	}
	if got := counterValue(t, reg, "marketwatch_orders_total", map[string]string{"result": "declined"}); got != 1 {
		t.Errorf("declined orders = %v, want 1", got)
	}
	if got := counterValue(t, reg, "marketwatch_redis_circuit_breaker_trips_total", nil); got != 1 {
		t.Errorf("trips = %v, want 1", got)
	}
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthStatus)
		code   int
		status string
	}{
		{
			name: "healthy without redis",
			setup: func(h *HealthStatus) {
				h.SetFeed(true, time.Now())
				h.SetSQLiteOK(true)
			},
			code: http.StatusOK, status: "healthy",
		},
		{
			name: "redis enabled but down",
			setup: func(h *HealthStatus) {
				h.SetFeed(true, time.Now())
				h.SetSQLiteOK(true)
				h.SetRedisEnabled(true)
			},
			code: http.StatusServiceUnavailable, status: "degraded",
		},
		{
			name: "feed failing",
			setup: func(h *HealthStatus) {
				h.SetFeed(false, time.Now())
				h.SetSQLiteOK(true)
			},
			code: http.StatusServiceUnavailable, status: "degraded",
		},
		{
			name:   "no stores",
			setup:  func(h *HealthStatus) { h.SetFeed(true, time.Now()) },
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
		},
	}
	for _, tt := range tests {
		h := NewHealthStatus()
		tt.setup(h)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if rec.Code != tt.code || body.Status != tt.status {
			t.Errorf("%s: got %d %q, want %d %q", tt.name, rec.Code, body.Status, tt.code, tt.status)
		}
	}
}
