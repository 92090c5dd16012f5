package gateway

// OrderRequest is the body of POST /api/orders.
type OrderRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Qty    int64   `json:"qty"`
}

// CapitalRequest is the body of POST /api/ledger/capital.
type CapitalRequest struct {
	Amount float64 `json:"amount"`
}

// SelectRequest is the body of POST /api/select.
type SelectRequest struct {
	Symbol string `json:"symbol"`
}

// WatchListResponse is returned by GET /api/watchlist.
type WatchListResponse struct {
	Symbols []string `json:"symbols"`
	Active  string   `json:"active"`
	Model   string   `json:"model"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
