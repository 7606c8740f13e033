package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenmart/core"
	"tokenmart/observability"
)

// Server exposes the marketplace operations over HTTP.
type Server struct {
	node   *core.Node
	logger *slog.Logger
}

// NewServer builds the HTTP facade over the operation harness.
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, logger: logger}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Route("/orders", func(orders chi.Router) {
			orders.Get("/", s.instrument("orders_index", s.handleOrdersIndex))
			orders.Get("/{collection}/{tokenId}", s.instrument("order_get", s.handleOrderGet))
			orders.Post("/", s.instrument("create_order", s.handleCreateOrder))
			orders.Post("/cancel", s.instrument("cancel_order", s.handleCancelOrder))
			orders.Post("/buy", s.instrument("buy_order", s.handleBuyOrder))
		})
		v1.Route("/offers", func(offers chi.Router) {
			offers.Get("/", s.instrument("offers_index", s.handleOffersIndex))
			offers.Get("/{collection}/{tokenId}", s.instrument("offer_get", s.handleOfferGet))
			offers.Post("/", s.instrument("create_offer", s.handleCreateOffer))
			offers.Post("/cancel", s.instrument("cancel_offer", s.handleCancelOffer))
			offers.Post("/accept", s.instrument("accept_offer", s.handleAcceptOffer))
		})
		v1.Post("/auctions", s.instrument("create_auction", s.handleCreateAuction))
		v1.Route("/tokens", func(tokens chi.Router) {
			tokens.Post("/", s.instrument("mint_token", s.handleMintToken))
			tokens.Post("/approve", s.instrument("approve_token", s.handleApproveToken))
			tokens.Get("/{collection}/{tokenId}/owner", s.instrument("token_owner", s.handleTokenOwner))
		})
		v1.Route("/accounts", func(accounts chi.Router) {
			accounts.Get("/{address}", s.instrument("account_get", s.handleAccountGet))
			accounts.Post("/deposit", s.instrument("deposit", s.handleDeposit))
			accounts.Post("/credit", s.instrument("credit", s.handleCredit))
		})
		v1.Route("/admin", func(admin chi.Router) {
			admin.Get("/fee", s.instrument("fee_get", s.handleFeeGet))
			admin.Post("/fee", s.instrument("set_fee", s.handleSetFee))
			admin.Post("/treasury", s.instrument("set_treasury_wallet", s.handleSetTreasury))
			admin.Post("/owner", s.instrument("transfer_ownership", s.handleTransferOwnership))
		})
		v1.Get("/purse", s.instrument("purse_get", s.handlePurse))
		v1.Get("/access-handle/{address}", s.instrument("access_handle", s.handleAccessHandle))
	})

	return r
}

// instrument wraps a handler so every request reports its operation name,
// final status and latency.
func (s *Server) instrument(operation string, handler func(w http.ResponseWriter, r *http.Request) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := handler(w, r)
		observability.MarketMetrics().Observe(operation, status, time.Since(start))
		if status >= 400 {
			s.logger.Warn("operation failed", "operation", operation, "status", status)
		} else {
			s.logger.Debug("operation served", "operation", operation, "status", status)
		}
	}
}
