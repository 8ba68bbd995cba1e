package enterprise

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/distli-mesh/aggregator/pkg/chain"
	"github.com/distli-mesh/aggregator/pkg/orderbook"
)

// Server is the C3 HTTP API: it fronts the enterprise chain and the
// cross-tenant order book, and owns the outbound resty client used to
// broadcast trades and book snapshots to the tracker.
type Server struct {
	chain  *chain.Chain
	book   *orderbook.Book
	router *mux.Router
	http   *resty.Client
	log    *zap.SugaredLogger

	trackerURL string
}

// NewServer wires a C3 server over an already-constructed chain and book.
func NewServer(c *chain.Chain, book *orderbook.Book, trackerURL string, log *zap.SugaredLogger) *Server {
	s := &Server{
		chain:      c,
		book:       book,
		router:     mux.NewRouter(),
		http:       newHTTPClient(),
		log:        log,
		trackerURL: trackerURL,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tenant-blockchain-update", s.handleTenantBlockchainUpdate).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/blocks", s.handleBlocks).Methods("GET")
	api.HandleFunc("/tenants", s.handleTenants).Methods("GET")
	api.HandleFunc("/order-book-status", s.handleOrderBookStatus).Methods("GET")
	api.HandleFunc("/debug-orders", s.handleDebugOrders).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the CORS-wrapped router for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

func nowUnix() uint64 { return uint64(time.Now().Unix()) }
