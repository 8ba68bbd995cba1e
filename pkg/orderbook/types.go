package orderbook

import "github.com/distli-mesh/aggregator/pkg/types"

// Entry is a resting or just-matched order on the book. order_id is the
// originating transaction id; network_id travels with the entry by
// value so the book never holds a live reference back into tracker
// membership (spec.md §9 "Back-references").
type Entry struct {
	OrderID   string          `json:"order_id"`
	Trader    string          `json:"trader"`
	NetworkID string          `json:"network_id"`
	Asset     string          `json:"asset"`
	Quantity  uint64          `json:"quantity"`
	Price     uint64          `json:"price"`
	Side      types.OrderSide `json:"side"`
	Timestamp uint64          `json:"timestamp"`
}

// Trade is one execution produced by matching a taker order against a
// resting maker entry. Price always equals the maker's price.
type Trade struct {
	TradeID       string `json:"trade_id"`
	Asset         string `json:"asset"`
	Quantity      uint64 `json:"quantity"`
	Price         uint64 `json:"price"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	BuyerNetwork  string `json:"buyer_network"`
	SellerNetwork string `json:"seller_network"`
	Timestamp     uint64 `json:"timestamp"`
}

// AssetSummary is the per-asset aggregate returned by Summary().
type AssetSummary struct {
	Bids        int `json:"bids"`
	Asks        int `json:"asks"`
	TotalOrders int `json:"total_orders"`
}

// Snapshot is the full open-order listing returned by debug/status
// endpoints.
type Snapshot struct {
	BuyOrders  []Entry `json:"buy_orders"`
	SellOrders []Entry `json:"sell_orders"`
}
