package enterprise

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/chain"
	"github.com/distli-mesh/aggregator/pkg/orderbook"
	"github.com/distli-mesh/aggregator/pkg/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	c := chain.New("v1", t.TempDir(), 100)
	book := orderbook.NewBook()
	log := zap.NewNop().Sugar()
	return NewServer(c, book, "http://127.0.0.1:0", log)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Status != "healthy" {
		t.Fatalf("expected healthy status, got %q", body.Status)
	}
}

func TestHandleTenantBlockchainUpdateMalformedJSON(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/tenant-blockchain-update", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on malformed JSON, got %d", rec.Code)
	}
}

func TestHandleTenantBlockchainUpdateProcessesTrades(t *testing.T) {
	s := testServer(t)

	tx1, _ := json.Marshal(types.Transaction{ID: "sell_1", From: "alice", TxType: types.TxTrading,
		Trading: &types.TradingPayload{Asset: "BTC", Quantity: 5, Price: 100, Side: types.SideSell}})
	tx2, _ := json.Marshal(types.Transaction{ID: "buy_1", From: "bob", TxType: types.TxTrading,
		Trading: &types.TradingPayload{Asset: "BTC", Quantity: 5, Price: 100, Side: types.SideBuy}})

	update := types.TenantBlockchainUpdate{
		NetworkID: "net-a",
		PeerID:    "peer-1",
		NewBlocks: []types.TenantBlock{
			{NetworkID: "net-a", BlockID: 1, BlockHash: "h1", Transactions: []string{string(tx1)}},
			{NetworkID: "net-b", BlockID: 1, BlockHash: "h2", Transactions: []string{string(tx2)}},
		},
	}
	raw, _ := json.Marshal(update)

	req := httptest.NewRequest(http.MethodPost, "/api/tenant-blockchain-update", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.TradesExecuted != 1 {
		t.Fatalf("expected 1 trade executed, got %d", resp.TradesExecuted)
	}
	if resp.BlocksProcessed != 2 {
		t.Fatalf("expected 2 blocks processed, got %d", resp.BlocksProcessed)
	}
}

func TestHandleStatusAndBlocks(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/status, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/blocks?limit=10", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/blocks, got %d", rec.Code)
	}
}
