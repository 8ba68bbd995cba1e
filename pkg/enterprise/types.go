// Package enterprise implements C3: the HTTP API fronting the enterprise
// chain (C2) and the cross-tenant order book (C1), plus the outbound
// trade/book broadcast to the tracker.
package enterprise

import "github.com/distli-mesh/aggregator/pkg/orderbook"

// statusEnvelope is the {status, message, ...} response shape spec.md §6
// requires of every handler.
type statusEnvelope struct {
	Status string `json:"status"`
	Message string `json:"message,omitempty"`
}

func errMsg(msg string) statusEnvelope { return statusEnvelope{Status: "error", Message: msg} }

// ingestResponse is the response to POST /api/tenant-blockchain-update.
type ingestResponse struct {
	Status               string             `json:"status"`
	Message              string             `json:"message,omitempty"`
	BlocksProcessed      int                `json:"blocks_processed"`
	TransactionsProcessed int               `json:"transactions_processed"`
	OrdersProcessed      int                `json:"orders_processed"`
	TradesExecuted       int                `json:"trades_executed"`
	Trades               []orderbook.Trade `json:"trades"`
}

// orderBookStatusResponse is the response to GET /api/order-book-status.
type orderBookStatusResponse struct {
	OrderBook    orderbook.Snapshot `json:"order_book"`
	RecentTrades []orderbook.Trade  `json:"recent_trades"`
	Timestamp    uint64             `json:"timestamp"`
}

// bookBroadcast is the payload POSTed to the tracker's
// /api/order-book-broadcast after processing.
type bookBroadcast struct {
	Type      string             `json:"type"`
	Orders    orderbook.Snapshot `json:"orders"`
	Timestamp uint64             `json:"timestamp"`
}

// crossNetworkTrade is the payload POSTed to the tracker's
// /api/cross-network-trade, one per executed Trade.
type crossNetworkTrade struct {
	orderbook.Trade
}

// healthResponse is the response to GET /health.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp uint64 `json:"timestamp"`
}
