// Package metrics exposes Prometheus instrumentation and the /healthz probe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the market watch.
// Helper methods are nil-safe so components can run uninstrumented in tests.
type Metrics struct {
	PollsTotal      *prometheus.CounterVec // labels: result=ok|error|skipped
	PollDur         prometheus.Histogram
	StaleResponses  *prometheus.CounterVec // labels: kind=quote|series
	QuotesApplied   prometheus.Counter
	ReportDur       prometheus.Histogram
	AnomaliesTotal  *prometheus.CounterVec // labels: label
	OrdersTotal     *prometheus.CounterVec // labels: result=accepted|declined
	FillsTotal      *prometheus.CounterVec // labels: side
	Equity          prometheus.Gauge
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	WSClients        prometheus.Gauge
	WSBroadcastDrops prometheus.Counter

	// Market session state
	MarketState *prometheus.GaugeVec // labels: market; 0=closed, 1=open
}

// NewMetrics registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	fast := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_polls_total",
			Help: "Quote polls by outcome",
		}, []string{"result"}),
		PollDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_poll_duration_seconds",
			Help:    "Quote provider round-trip latency",
			Buckets: prometheus.DefBuckets,
		}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them",
		}, []string{"kind"}),
		QuotesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_quotes_applied_total",
			Help: "Quote snapshots applied to state",
		}),
		ReportDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_report_compute_duration_seconds",
			Help:    "Indicator + signal report compute latency",
			Buckets: fast,
		}),
		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_anomalies_total",
			Help: "Anomaly detections by label",
		}, []string{"label"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_orders_total",
			Help: "Paper order submissions by outcome",
		}, []string{"result"}),
		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_fills_total",
			Help: "Paper fills by side",
		}, []string{"side"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_ledger_equity",
			Help: "Paper account equity at latest marks",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketwatch_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSBroadcastDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_ws_broadcast_drops_total",
			Help: "Messages dropped for slow websocket clients",
		}),
		MarketState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketwatch_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}, []string{"market"}),
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollDur,
		m.StaleResponses,
		m.QuotesApplied,
		m.ReportDur,
		m.AnomaliesTotal,
		m.OrdersTotal,
		m.FillsTotal,
		m.Equity,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
		m.WSBroadcastDrops,
		m.MarketState,
	)

	return m
}

// ObservePoll records one provider poll.
func (m *Metrics) ObservePoll(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(result).Inc()
	if d > 0 {
		m.PollDur.Observe(d.Seconds())
	}
}

// Stale counts a discarded response of kind "quote" or "series".
func (m *Metrics) Stale(kind string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(kind).Inc()
}

// QuoteApplied counts an accepted quote batch entry.
func (m *Metrics) QuoteApplied() {
	if m == nil {
		return
	}
	m.QuotesApplied.Inc()
}

// ObserveReport records report compute latency.
func (m *Metrics) ObserveReport(d time.Duration) {
	if m == nil {
		return
	}
	m.ReportDur.Observe(d.Seconds())
}

// Anomaly counts a detection.
func (m *Metrics) Anomaly(label string) {
	if m == nil {
		return
	}
	m.AnomaliesTotal.WithLabelValues(label).Inc()
}

// Order counts a submission outcome.
func (m *Metrics) Order(accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "declined"
	}
	m.OrdersTotal.WithLabelValues(result).Inc()
}

// Fill counts a fill on side.
func (m *Metrics) Fill(side string) {
	if m == nil {
		return
	}
	m.FillsTotal.WithLabelValues(side).Inc()
}

// SetEquity publishes the latest account equity.
func (m *Metrics) SetEquity(v float64) {
	if m == nil {
		return
	}
	m.Equity.Set(v)
}

// ObserveRedisWrite records a Redis write latency.
func (m *Metrics) ObserveRedisWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.RedisWriteDur.Observe(d.Seconds())
}

// ObserveSQLiteCommit records a SQLite write latency.
func (m *Metrics) ObserveSQLiteCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.SQLiteCommitDur.Observe(d.Seconds())
}

// SetBreakerState mirrors the circuit breaker state; trips count 0→1 moves.
func (m *Metrics) SetBreakerState(state int, tripped bool) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if tripped {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetWSClients publishes the connected client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// WSDrop counts a message dropped for a slow client.
func (m *Metrics) WSDrop() {
	if m == nil {
		return
	}
	m.WSBroadcastDrops.Inc()
}

// SetMarketOpen publishes the session state for market.
func (m *Metrics) SetMarketOpen(market string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.MarketState.WithLabelValues(market).Set(v)
}
