package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketwatch/internal/ledger"
	"marketwatch/internal/logger"
	"marketwatch/internal/model"
	"marketwatch/internal/watch"

	"github.com/gorilla/websocket"
)

const requestTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Service is the watch loop as seen by the HTTP layer.
type Service interface {
	Snapshot(ctx context.Context) (watch.View, error)
	Select(ctx context.Context, symbol string) error
	SubmitOrder(ctx context.Context, symbol string, side model.Side, price float64, qty int64) (model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (model.Order, error)
	DeleteTrade(ctx context.Context, tradeID string) error
	ResetAccount(ctx context.Context) error
	ClearSymbol(ctx context.Context, symbol string) (float64, error)
	SetInitialCapital(ctx context.Context, amount float64) error
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterStreamRoutes registers the WebSocket endpoint and the replay
// routes. These only need the hub.
func RegisterStreamRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("[gateway] ws upgrade failed", slog.Any("err", err))
			return
		}
		hub.Attach(conn, r.URL.Query().Get("last_ts"))
	})

	mux.HandleFunc("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("GET /api/latest", withTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Latest())
	})))

	// gap backfill: /api/missed?channel=report&from=10&to=20
	mux.Handle("GET /api/missed", withTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err := strconv.ParseInt(q.Get("to"), 10, 64)
		if err != nil || to <= 0 {
			to = hub.ChannelSeq(channel)
		}
		envs := hub.ReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, out)
	})))
}

// RegisterRoutes registers the stream routes plus the REST routes backed
// by svc.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, svc Service, start time.Time) {
	RegisterStreamRoutes(mux, hub)

	api := func(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
		mux.Handle(pattern, withTrace(http.HandlerFunc(h)))
	}

	api("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	api("GET /api/report", func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if v.Report == nil {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no report for " + v.Active + " yet"})
			return
		}
		writeJSON(w, http.StatusOK, v.Report)
	})

	api("GET /api/ledger", func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Ledger)
	})

	api("GET /api/watchlist", func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, WatchListResponse{Symbols: v.Symbols, Active: v.Active, Model: v.Model})
	})

	api("POST /api/select", func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if !decode(w, r, &req) {
			return
		}
		if err := svc.Select(r.Context(), req.Symbol); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"active": strings.TrimSpace(req.Symbol)})
	})

	api("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		if !decode(w, r, &req) {
			return
		}
		side := model.Side(strings.ToUpper(strings.TrimSpace(req.Side)))
		o, err := svc.SubmitOrder(r.Context(), req.Symbol, side, req.Price, req.Qty)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
	})

	api("DELETE /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.CancelOrder(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	})

	api("DELETE /api/trades/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteTrade(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	api("POST /api/ledger/reset", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ResetAccount(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api("POST /api/ledger/capital", func(w http.ResponseWriter, r *http.Request) {
		var req CapitalRequest
		if !decode(w, r, &req) {
			return
		}
		if err := svc.SetInitialCapital(r.Context(), req.Amount); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"initialCapital": req.Amount})
	})

	api("DELETE /api/positions/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		refund, err := svc.ClearSymbol(r.Context(), r.PathValue("symbol"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"refund": refund})
	})

	api("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		active := ""
		if v, err := svc.Snapshot(r.Context()); err == nil {
			active = v.Active
		}
		writeJSON(w, http.StatusOK, CollectStatus(start, active, hub.ClientCount(), time.Now()))
	})
}

// withTrace stamps each request with a trace id, bounds it with a timeout
// and answers CORS preflights.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		tid := r.Header.Get("X-Trace-Id")
		if tid == "" {
			tid = logger.NewTraceID("req")
		}
		w.Header().Set("X-Trace-Id", tid)

		ctx, cancel := context.WithTimeout(logger.WithTraceID(r.Context(), tid), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// writeError maps declined ledger operations to 422 and a stalled loop to 503.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientQuantity),
		errors.Is(err, ledger.ErrOrderNotFound),
		errors.Is(err, ledger.ErrTradeNotFound),
		errors.Is(err, ledger.ErrUnknownSymbol),
		errors.Is(err, watch.ErrEmptySymbol):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
