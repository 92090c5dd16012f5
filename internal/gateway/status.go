package gateway

import (
	"runtime"
	"time"

	"github.com/prometheus/procfs"
)

// Status is the process and market snapshot pushed on the status channel.
type Status struct {
	ActiveSymbol string  `json:"active_symbol"`
	MarketOpen   bool    `json:"market_open"`
	MarketStatus string  `json:"market_status"`
	WSClients    int     `json:"ws_clients"`
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	GCRuns       uint32  `json:"gc_runs"`
	Load1        float64 `json:"load_1"`
	UptimeSec    int64   `json:"uptime_sec"`
	TS           string  `json:"ts"`
}

// CollectStatus gathers runtime figures and the active symbol's market state.
func CollectStatus(start time.Time, active string, clients int, now time.Time) Status {
	s := Status{
		ActiveSymbol: active,
		WSClients:    clients,
		Goroutines:   runtime.NumGoroutine(),
		UptimeSec:    int64(now.Sub(start).Seconds()),
		Load1:        loadAvg1(),
		TS:           now.UTC().Format(time.RFC3339Nano),
	}
	if active != "" {
		s.MarketOpen, s.MarketStatus = marketStatus(active, now)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}

// loadAvg1 reads the 1-minute load average; 0 where /proc is unavailable.
func loadAvg1() float64 {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return 0
	}
	la, err := fs.LoadAvg()
	if err != nil {
		return 0
	}
	return la.Load1
}
