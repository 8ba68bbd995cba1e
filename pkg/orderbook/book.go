// Package orderbook implements C1: an in-memory, price-time priority
// limit order book that matches Trading transactions across tenant
// networks. Idempotent per transaction id so upstream at-least-once
// delivery (tracker dedupe re-ingest, C5's periodic re-scan) never
// produces duplicate trades.
package orderbook

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/distli-mesh/aggregator/pkg/types"
)

const recentTradesCap = 100

// Book is the cross-tenant order book. One Book instance serves every
// asset and every tenant network — spec.md is explicit that this is a
// single combined list per side, not one book per asset (§4.1: "the book
// is per-asset in effect but stored in a single list").
type Book struct {
	mu sync.RWMutex

	bids []Entry // sorted descending by price, best bid first
	asks []Entry // sorted ascending by price, best ask first

	processed    map[string]struct{} // transaction ids already matched — idempotence
	recentTrades []Trade
	tradeSeq     uint64
}

func NewBook() *Book {
	return &Book{
		processed: make(map[string]struct{}),
	}
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// classifySide returns the order side for a trading transaction: the
// payload's explicit Side field wins when set, otherwise the id is
// inspected for the buy_/sell_ prefix convention (spec.md §9 point 5).
func classifySide(tx types.Transaction) (types.OrderSide, bool) {
	if tx.Trading != nil && tx.Trading.Side != types.SideUnspecified {
		return tx.Trading.Side, true
	}
	switch {
	case strings.HasPrefix(tx.ID, "buy_"):
		return types.SideBuy, true
	case strings.HasPrefix(tx.ID, "sell_"):
		return types.SideSell, true
	default:
		return types.SideUnspecified, false
	}
}

// ProcessBlock ingests one tenant block's transactions in order, returning
// every trade produced in execution order. Already-processed transaction
// ids and non-Trading/unrecognized ids are silently skipped — no error
// surfaces to the caller (spec.md §7: input-malformed is a no-op here).
func (b *Book) ProcessBlock(block types.TenantBlock) []Trade {
	var produced []Trade

	for _, raw := range block.Transactions {
		tx, err := types.ParseTransaction(raw)
		if err != nil {
			continue
		}

		if tx.TxType != types.TxTrading || tx.Trading == nil {
			continue
		}
		side, ok := classifySide(tx)
		if !ok {
			continue
		}

		order := Entry{
			OrderID:   tx.ID,
			Trader:    tx.From,
			NetworkID: block.NetworkID,
			Asset:     tx.Trading.Asset,
			Quantity:  tx.Trading.Quantity,
			Price:     tx.Trading.Price,
			Side:      side,
			Timestamp: tx.Timestamp,
		}

		b.mu.Lock()
		if _, seen := b.processed[tx.ID]; seen {
			b.mu.Unlock()
			continue
		}
		trades := b.processOrderLocked(order)
		b.processed[tx.ID] = struct{}{}
		b.mu.Unlock()

		produced = append(produced, trades...)
	}

	return produced
}

func crosses(side types.OrderSide, takerPrice, makerPrice uint64) bool {
	if side == types.SideBuy {
		return takerPrice >= makerPrice
	}
	return takerPrice <= makerPrice
}

// processOrderLocked matches a single incoming order against the resting
// opposite side, maker-price execution, then rests any remainder.
// Caller must hold b.mu for writing — spec.md §5 requires the seen-check,
// match, and mark-processed for one transaction to happen under a single
// write lock so two concurrent at-least-once re-deliveries of the same
// block (e.g. a live hub broadcast racing C5's rescan) can't both pass
// the idempotence check and double-execute the same order.
func (b *Book) processOrderLocked(order Entry) []Trade {
	var opposite *[]Entry
	if order.Side == types.SideBuy {
		opposite = &b.asks
	} else {
		opposite = &b.bids
	}

	var trades []Trade
	idx := 0
	for order.Quantity > 0 && idx < len(*opposite) {
		maker := (*opposite)[idx]

		if order.Asset != maker.Asset {
			// Different asset resting ahead of this price level: the
			// book is a single cross-asset list by design, so skip past
			// it rather than treating it as a price break.
			idx++
			continue
		}
		if !crosses(order.Side, order.Price, maker.Price) {
			// Price ordering means nothing further down the list can
			// cross either; stop scanning.
			break
		}

		qty := min(order.Quantity, maker.Quantity)
		trade := b.buildTrade(order, maker, qty)
		trades = append(trades, trade)

		order.Quantity -= qty
		maker.Quantity -= qty

		if maker.Quantity == 0 {
			*opposite = append((*opposite)[:idx], (*opposite)[idx+1:]...)
			continue // list shifted left; re-check same idx
		}
		(*opposite)[idx] = maker
		break // order.Quantity must be 0 here (qty == min), loop exits next check
	}

	if order.Quantity > 0 {
		b.rest(order)
	}

	b.recentTrades = append(b.recentTrades, trades...)
	if len(b.recentTrades) > recentTradesCap {
		b.recentTrades = b.recentTrades[len(b.recentTrades)-recentTradesCap:]
	}

	return trades
}

func (b *Book) buildTrade(taker, maker Entry, qty uint64) Trade {
	b.tradeSeq++
	trade := Trade{
		TradeID:   fmt.Sprintf("trade_%d_%d", time.Now().Unix(), b.tradeSeq),
		Asset:     taker.Asset,
		Quantity:  qty,
		Price:     maker.Price, // maker price always wins
		Timestamp: uint64(time.Now().Unix()),
	}
	if taker.Side == types.SideBuy {
		trade.Buyer, trade.BuyerNetwork = taker.Trader, taker.NetworkID
		trade.Seller, trade.SellerNetwork = maker.Trader, maker.NetworkID
	} else {
		trade.Seller, trade.SellerNetwork = taker.Trader, taker.NetworkID
		trade.Buyer, trade.BuyerNetwork = maker.Trader, maker.NetworkID
	}
	return trade
}

// rest inserts a remaining order into its own side, keeping price-time
// priority: bids sorted highest price first, asks lowest price first,
// ties broken by earlier timestamp.
func (b *Book) rest(order Entry) {
	if order.Side == types.SideBuy {
		b.bids = append(b.bids, order)
		sort.SliceStable(b.bids, func(i, j int) bool {
			if b.bids[i].Price != b.bids[j].Price {
				return b.bids[i].Price > b.bids[j].Price
			}
			return b.bids[i].Timestamp < b.bids[j].Timestamp
		})
		return
	}
	b.asks = append(b.asks, order)
	sort.SliceStable(b.asks, func(i, j int) bool {
		if b.asks[i].Price != b.asks[j].Price {
			return b.asks[i].Price < b.asks[j].Price
		}
		return b.asks[i].Timestamp < b.asks[j].Timestamp
	})
}

// Summary returns per-asset open-order counts.
func (b *Book) Summary() map[string]AssetSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]AssetSummary)
	for _, o := range b.bids {
		s := out[o.Asset]
		s.Bids++
		s.TotalOrders++
		out[o.Asset] = s
	}
	for _, o := range b.asks {
		s := out[o.Asset]
		s.Asks++
		s.TotalOrders++
		out[o.Asset] = s
	}
	return out
}

// Snapshot returns the full open-order listing on both sides.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		BuyOrders:  append([]Entry(nil), b.bids...),
		SellOrders: append([]Entry(nil), b.asks...),
	}
}

// RecentTrades returns up to limit of the most recently executed trades,
// most recent last.
func (b *Book) RecentTrades(limit int) []Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || limit > len(b.recentTrades) {
		limit = len(b.recentTrades)
	}
	start := len(b.recentTrades) - limit
	return append([]Trade(nil), b.recentTrades[start:]...)
}
