// Package handler exposes the HTTP surface: the order workflow, the catalog,
// and the sales-manager operations. Authentication happens upstream; the
// handler trusts the identity headers set by the gateway.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bibliosphere/bookstore/internal/cache"
	"github.com/bibliosphere/bookstore/internal/domain/order"
	"github.com/bibliosphere/bookstore/internal/domain/product"
)

// Header names set by the authenticating proxy.
const (
	headerUserEmail = "X-User-Email"
	headerUserRole  = "X-User-Role"

	roleManager = "manager"
)

// StatusCache caches order statuses keyed by order ID, together with the
// owning user's email so cached reads can be authorized.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (owner string, status order.Status)
	Set(ctx context.Context, orderID, owner string, status order.Status)
}

var _ StatusCache = (*cache.StatusCache)(nil)

// Handler wires the domain services to chi routes.
type Handler struct {
	products    product.Repository
	catalog     *product.Service
	orders      *order.Service
	statusCache StatusCache
}

// NewHandler constructs a Handler. A nil *cache.StatusCache is a valid
// statusCache; it never hits and swallows writes.
func NewHandler(
	products product.Repository,
	catalog *product.Service,
	orders *order.Service,
	statusCache StatusCache,
) *Handler {
	if statusCache == nil {
		statusCache = (*cache.StatusCache)(nil)
	}
	return &Handler{
		products:    products,
		catalog:     catalog,
		orders:      orders,
		statusCache: statusCache,
	}
}

// Routes returns the API router mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.listProducts)
	r.Get("/products/{isbn}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Get("/refunds/pending", h.pendingRefunds)
			r.Patch("/refunds/{id}", h.resolveRefund)
			r.Get("/{id}", h.getOrder)
			r.Get("/{id}/status", h.getOrderStatus)
			r.Patch("/{id}/cancel", h.cancelOrder)
			r.Patch("/{id}/refund", h.refundOrder)
			r.Patch("/{id}/status", h.setOrderStatus)
		})

		r.Route("/sales-manager", func(r chi.Router) {
			r.Put("/products/{isbn}/price", h.updatePrice)
			r.Put("/products/{isbn}/discount", h.updateDiscount)
			r.Get("/orders", h.ordersInRange)
		})
	})

	return r
}

type identityKey struct{}

// requireIdentity rejects requests without an upstream-authenticated user
// and stores the identity in the request context.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(headerUserEmail)
		if email == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		id := order.Identity{
			Email:   email,
			Manager: r.Header.Get(headerUserRole) == roleManager,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) order.Identity {
	id, _ := ctx.Value(identityKey{}).(order.Identity)
	return id
}
