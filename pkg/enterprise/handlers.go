package enterprise

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/distli-mesh/aggregator/pkg/orderbook"
	"github.com/distli-mesh/aggregator/pkg/types"
)

const defaultBlocksLimit = 50

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleTenantBlockchainUpdate is the main ingest path: persist the
// tenant blocks on the chain, run each through the order book in
// arrival order, and broadcast results to the tracker.
func (s *Server) handleTenantBlockchainUpdate(w http.ResponseWriter, r *http.Request) {
	var update types.TenantBlockchainUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondJSON(w, http.StatusBadRequest, errMsg("invalid JSON: "+err.Error()))
		return
	}

	// Blockchain lock first, then order book — fixed lock order prevents
	// the two single-writer locks from deadlocking against a concurrent
	// request taking them in reverse.
	s.chain.AddTenantBlocks(update)

	var allTrades []orderbook.Trade
	transactionsProcessed := 0
	ordersProcessed := 0
	for _, block := range update.NewBlocks {
		transactionsProcessed += len(block.Transactions)
		for _, raw := range block.Transactions {
			if tx, err := types.ParseTransaction(raw); err == nil && tx.TxType == types.TxTrading {
				ordersProcessed++
			}
		}
		allTrades = append(allTrades, s.book.ProcessBlock(block)...)
	}

	if len(allTrades) > 0 {
		s.broadcastTrades(allTrades)
	}
	if ordersProcessed > 0 {
		s.broadcastBook(len(allTrades) > 0)
	}

	respondJSON(w, http.StatusOK, ingestResponse{
		Status:                "success",
		BlocksProcessed:       len(update.NewBlocks),
		TransactionsProcessed: transactionsProcessed,
		OrdersProcessed:       ordersProcessed,
		TradesExecuted:        len(allTrades),
		Trades:                allTrades,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.chain.Status())
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	limit := defaultBlocksLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	respondJSON(w, http.StatusOK, s.chain.GetRecentTenantBlocks(limit))
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.chain.GetTenantSummaries())
}

func (s *Server) handleOrderBookStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, orderBookStatusResponse{
		OrderBook:    s.book.Snapshot(),
		RecentTrades: s.book.RecentTrades(defaultBlocksLimit),
		Timestamp:    nowUnix(),
	})
}

func (s *Server) handleDebugOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.book.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "healthy", Timestamp: nowUnix()})
}
