// Package api exposes the canteen engine over HTTP. Handlers decode with
// jx, delegate business logic to the injected domain services, and map
// domain errors to status codes in one place.
package api

import (
	"net/http"

	"github.com/campuskitchen/canteen-api/internal/domain/checkout"
	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
	"github.com/campuskitchen/canteen-api/internal/domain/stats"
)

// Default and maximum page sizes for list endpoints.
const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	defaultFeedbackLimit = 50
)

// Handler serves the canteen HTTP API, delegating to the injected domain
// services.
type Handler struct {
	catalog  *menu.Service
	checkout *checkout.Calculator
	ledger   *order.Ledger
	stats    *stats.Aggregator
	feedback *feedback.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	catalog *menu.Service,
	calc *checkout.Calculator,
	ledger *order.Ledger,
	agg *stats.Aggregator,
	fb *feedback.Service,
) *Handler {
	return &Handler{
		catalog:  catalog,
		checkout: calc,
		ledger:   ledger,
		stats:    agg,
		feedback: fb,
	}
}

// Routes returns the API route table. Authentication is applied by the
// caller around the whole mux; per-route role checks live in the handlers.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/menu", h.listMenu)
	mux.HandleFunc("POST /api/menu", h.addMenuItem)
	mux.HandleFunc("PATCH /api/menu/{id}", h.editMenuItem)
	mux.HandleFunc("POST /api/menu/{id}/toggle", h.toggleMenuItem)
	mux.HandleFunc("DELETE /api/menu/{id}", h.deleteMenuItem)

	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("POST /api/orders/{id}/advance", h.advanceOrder)
	mux.HandleFunc("GET /api/orders/history", h.orderHistory)

	mux.HandleFunc("GET /api/stats", h.getStats)

	mux.HandleFunc("POST /api/feedback", h.addFeedback)
	mux.HandleFunc("GET /api/feedback", h.listFeedback)

	return mux
}
