package tracker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/types"
)

// Server is the tracker's HTTP surface: the WebSocket upgrade route plus
// the administrative/egress endpoints enterprise-side components call.
type Server struct {
	hub    *Hub
	router *mux.Router
	log    *zap.SugaredLogger
}

func NewServer(hub *Hub, log *zap.SugaredLogger) *Server {
	s := &Server{hub: hub, router: mux.NewRouter(), log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ws", s.hub.ServeWS)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/blockchain-update", s.handleBlockchainUpdate).Methods("POST")
	api.HandleFunc("/cross-network-trade", s.handleCrossNetworkTrade).Methods("POST")
	api.HandleFunc("/order-book-broadcast", s.handleOrderBookBroadcast).Methods("POST")
	api.HandleFunc("/networks", s.handleNetworks).Methods("GET")
	api.HandleFunc("/network-list", s.handleNetworkList).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// legacy block-ingress payload, per spec.md §4.4: a tenant network
// pushes its update directly (bypassing WebSocket block announcement).
// The blocks are broadcast to every peer in that network as one
// blockchain_sync message; unlike a peer-sourced block they are not
// deduplicated and not handed to the BlockForwarder.
type blockchainUpdateRequest struct {
	NetworkID string              `json:"network_id"`
	Blocks    []types.TenantBlock `json:"blocks"`
}

func (s *Server) handleBlockchainUpdate(w http.ResponseWriter, r *http.Request) {
	var req blockchainUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errResponse("invalid JSON: "+err.Error()))
		return
	}
	if req.NetworkID == "" {
		respondJSON(w, http.StatusOK, errResponse("missing network_id"))
		return
	}

	s.hub.broadcastToNetwork(req.NetworkID, blockchainSyncMsg{
		Type:      "blockchain_sync",
		NetworkID: req.NetworkID,
		Blocks:    req.Blocks,
	})

	respondJSON(w, http.StatusOK, okResponse("enterprise update broadcast to network peers"))
}

type blockchainSyncMsg struct {
	Type      string              `json:"type"`
	NetworkID string              `json:"network_id"`
	Blocks    []types.TenantBlock `json:"blocks"`
}

func (s *Server) handleCrossNetworkTrade(w http.ResponseWriter, r *http.Request) {
	var trade map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&trade); err != nil {
		respondJSON(w, http.StatusBadRequest, errResponse("invalid JSON: "+err.Error()))
		return
	}

	buyerNetwork, _ := trade["buyer_network"].(string)
	sellerNetwork, _ := trade["seller_network"].(string)
	if buyerNetwork == "" || sellerNetwork == "" {
		respondJSON(w, http.StatusOK, errResponse("invalid trade notification format"))
		return
	}

	msg := enterpriseSyncOut{
		Type:      "enterprise_sync",
		NetworkID: "cross_network",
		SyncData:  tradeExecutionData{Type: "trade_execution", Trade: trade},
	}
	s.hub.broadcastToNetwork(buyerNetwork, msg)
	if sellerNetwork != buyerNetwork {
		s.hub.broadcastToNetwork(sellerNetwork, msg)
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":         "success",
		"message":        "cross-network trade broadcast to both networks",
		"buyer_network":  buyerNetwork,
		"seller_network": sellerNetwork,
	})
}

func (s *Server) handleOrderBookBroadcast(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Orders interface{} `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, errResponse("invalid JSON: "+err.Error()))
		return
	}

	s.hub.broadcastToAllNetworkMembers(enterpriseSyncOut{
		Type:      "enterprise_sync",
		NetworkID: "global",
		SyncData:  orderBookUpdateData{Type: "order_book_update", Orders: body.Orders},
	})

	respondJSON(w, http.StatusOK, okResponse("order book broadcast to all networks"))
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.NetworkCounts())
}

func (s *Server) handleNetworkList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.hub.NetworkList())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": uint64(time.Now().Unix()),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func okResponse(message string) map[string]string {
	return map[string]string{"status": "success", "message": message}
}

func errResponse(message string) map[string]string {
	return map[string]string{"status": "error", "message": message}
}
