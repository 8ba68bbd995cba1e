package orderbook

import (
	"encoding/json"
	"testing"

	"github.com/distli-mesh/aggregator/pkg/types"
)

func tradingTx(id, from string, side types.OrderSide, asset string, qty, price, ts uint64) string {
	tx := types.Transaction{
		ID:        id,
		From:      from,
		Timestamp: ts,
		TxType:    types.TxTrading,
		Trading:   &types.TradingPayload{Asset: asset, Quantity: qty, Price: price, Side: side},
	}
	raw, _ := json.Marshal(tx)
	return string(raw)
}

func block(networkID string, txs ...string) types.TenantBlock {
	return types.TenantBlock{NetworkID: networkID, Transactions: txs}
}

// Scenario A: a resting sell on network X is crossed by a buy from network Y.
func TestCrossNetworkMatch(t *testing.T) {
	b := NewBook()

	b.ProcessBlock(block("net-x", tradingTx("sell_1", "alice", types.SideSell, "BTC", 10, 100, 1)))
	trades := b.ProcessBlock(block("net-y", tradingTx("buy_1", "bob", types.SideBuy, "BTC", 10, 100, 2)))

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	trade := trades[0]
	if trade.Buyer != "bob" || trade.Seller != "alice" {
		t.Fatalf("unexpected counterparties: %+v", trade)
	}
	if trade.BuyerNetwork != "net-y" || trade.SellerNetwork != "net-x" {
		t.Fatalf("expected trade to carry each side's originating network: %+v", trade)
	}
	if trade.Price != 100 {
		t.Fatalf("expected maker price 100, got %d", trade.Price)
	}

	snap := b.Snapshot()
	if len(snap.BuyOrders) != 0 || len(snap.SellOrders) != 0 {
		t.Fatalf("expected fully matched orders to leave nothing resting")
	}
}

// Scenario E: a large taker order fills across several resting makers at
// increasingly worse prices, leaving the last maker partially filled.
func TestPartialFillCascade(t *testing.T) {
	b := NewBook()
	b.ProcessBlock(block("net-x",
		tradingTx("sell_1", "m1", types.SideSell, "BTC", 5, 100, 1),
		tradingTx("sell_2", "m2", types.SideSell, "BTC", 5, 101, 2),
		tradingTx("sell_3", "m3", types.SideSell, "BTC", 5, 102, 3),
	))

	trades := b.ProcessBlock(block("net-y", tradingTx("buy_1", "taker", types.SideBuy, "BTC", 12, 102, 4)))
	if len(trades) != 3 {
		t.Fatalf("expected 3 partial fills, got %d", len(trades))
	}

	var filled uint64
	for _, tr := range trades {
		filled += tr.Quantity
	}
	if filled != 12 {
		t.Fatalf("expected 12 total filled quantity, got %d", filled)
	}

	snap := b.Snapshot()
	if len(snap.SellOrders) != 1 || snap.SellOrders[0].Quantity != 3 || snap.SellOrders[0].Price != 102 {
		t.Fatalf("expected remaining 3-unit sell at 102 resting, got %+v", snap.SellOrders)
	}
	if len(snap.BuyOrders) != 0 {
		t.Fatalf("expected fully filled buy to leave nothing resting, got %+v", snap.BuyOrders)
	}
}

func TestNoMatchWhenPricesDoNotCross(t *testing.T) {
	b := NewBook()
	b.ProcessBlock(block("net-x", tradingTx("sell_1", "alice", types.SideSell, "BTC", 10, 110, 1)))
	trades := b.ProcessBlock(block("net-y", tradingTx("buy_1", "bob", types.SideBuy, "BTC", 10, 100, 2)))

	if len(trades) != 0 {
		t.Fatalf("expected no trade when bid below ask, got %d", len(trades))
	}
	snap := b.Snapshot()
	if len(snap.BuyOrders) != 1 || len(snap.SellOrders) != 1 {
		t.Fatalf("expected both orders resting, got buys=%d sells=%d", len(snap.BuyOrders), len(snap.SellOrders))
	}
}

func TestDifferentAssetDoesNotBlockMatching(t *testing.T) {
	b := NewBook()
	b.ProcessBlock(block("net-x",
		tradingTx("sell_eth", "e1", types.SideSell, "ETH", 10, 50, 1),
		tradingTx("sell_btc", "b1", types.SideSell, "BTC", 10, 100, 2),
	))
	trades := b.ProcessBlock(block("net-y", tradingTx("buy_btc", "taker", types.SideBuy, "BTC", 10, 100, 3)))

	if len(trades) != 1 {
		t.Fatalf("expected BTC order to match through an unrelated ETH order ahead of it, got %d trades", len(trades))
	}
	if trades[0].Asset != "BTC" {
		t.Fatalf("expected BTC trade, got %s", trades[0].Asset)
	}
}

func TestIdempotentReplayProducesNoDuplicateTrade(t *testing.T) {
	b := NewBook()
	blk := block("net-x",
		tradingTx("sell_1", "alice", types.SideSell, "BTC", 10, 100, 1),
		tradingTx("buy_1", "bob", types.SideBuy, "BTC", 10, 100, 2),
	)

	first := b.ProcessBlock(blk)
	second := b.ProcessBlock(blk) // exact replay, e.g. re-delivered by the tracker

	if len(first) != 1 {
		t.Fatalf("expected 1 trade on first processing, got %d", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("expected replayed block to produce no new trades, got %d", len(second))
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewBook()
	b.ProcessBlock(block("net-x",
		tradingTx("sell_1", "first", types.SideSell, "BTC", 5, 100, 1),
		tradingTx("sell_2", "second", types.SideSell, "BTC", 5, 100, 2),
	))
	trades := b.ProcessBlock(block("net-y", tradingTx("buy_1", "taker", types.SideBuy, "BTC", 5, 100, 3)))

	if len(trades) != 1 || trades[0].Seller != "first" {
		t.Fatalf("expected earlier-timestamped resting order at the same price to fill first, got %+v", trades)
	}
}

func TestMalformedTransactionIsSkipped(t *testing.T) {
	b := NewBook()
	trades := b.ProcessBlock(block("net-x", "not valid json"))
	if len(trades) != 0 {
		t.Fatalf("expected malformed transaction to be silently skipped")
	}
	if len(b.Snapshot().BuyOrders)+len(b.Snapshot().SellOrders) != 0 {
		t.Fatalf("expected nothing resting after a malformed transaction")
	}
}

func TestNonTradingTransactionIsIgnored(t *testing.T) {
	b := NewBook()
	tx := types.Transaction{ID: "t1", From: "alice", To: "bob", Amount: 10, TxType: types.TxTransfer}
	raw, _ := json.Marshal(tx)
	trades := b.ProcessBlock(block("net-x", string(raw)))
	if len(trades) != 0 {
		t.Fatalf("expected Transfer transaction to be ignored by the matcher")
	}
}

func TestSummaryCountsPerAsset(t *testing.T) {
	b := NewBook()
	b.ProcessBlock(block("net-x",
		tradingTx("sell_1", "a", types.SideSell, "BTC", 5, 100, 1),
		tradingTx("sell_2", "b", types.SideSell, "ETH", 5, 50, 2),
	))
	summary := b.Summary()
	if summary["BTC"].Asks != 1 || summary["ETH"].Asks != 1 {
		t.Fatalf("expected one resting ask per asset, got %+v", summary)
	}
}
