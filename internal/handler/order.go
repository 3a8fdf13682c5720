package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bibliosphere/bookstore/internal/domain/order"
)

type lineItemRequest struct {
	ISBN     string `json:"isbn"`
	Quantity int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items          []lineItemRequest  `json:"items"`
	ShippingInfo   order.ShippingInfo `json:"shippingInfo"`
	ShippingMethod string             `json:"shippingMethod"`
}

type orderItemResponse struct {
	ISBN     string  `json:"isbn"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	UserEmail      string              `json:"userEmail"`
	Items          []orderItemResponse `json:"items"`
	ShippingInfo   order.ShippingInfo  `json:"shippingInfo"`
	ShippingMethod string              `json:"shippingMethod"`
	Subtotal       float64             `json:"subtotal"`
	ShippingCost   float64             `json:"shippingCost"`
	Total          float64             `json:"total"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ISBN:     item.ISBN,
			Title:    item.Title,
			Price:    item.Price.InexactFloat64(),
			Quantity: item.Quantity,
			Image:    item.Image,
		}
	}
	return orderResponse{
		ID:             o.ID,
		UserEmail:      o.UserEmail,
		Items:          items,
		ShippingInfo:   o.Shipping,
		ShippingMethod: o.ShippingMethod,
		Subtotal:       o.Subtotal.InexactFloat64(),
		ShippingCost:   o.ShippingCost.InexactFloat64(),
		Total:          o.Total.InexactFloat64(),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	items := make([]order.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.LineItem{ISBN: item.ISBN, Quantity: item.Quantity}
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserEmail:      identityFrom(r.Context()).Email,
		Items:          items,
		Shipping:       req.ShippingInfo,
		ShippingMethod: req.ShippingMethod,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListForUser(r.Context(), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(list))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// getOrderStatus serves the lightweight status poll, preferring the cache.
// A cache hit is served only to the order's owner or a manager; everyone
// else goes through the repository read, which rejects them.
func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ident := identityFrom(r.Context())
	if owner, status := h.statusCache.Get(r.Context(), id); status != "" &&
		(ident.Manager || ident.Email == owner) {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
		return
	}

	o, err := h.orders.Get(r.Context(), id, ident)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(o.Status)})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) refundOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RequestRefund(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.SetStatus(r.Context(), chi.URLParam(r, "id"), status, identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) pendingRefunds(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.PendingRefunds(r.Context(), identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(list))
}

func (h *Handler) resolveRefund(w http.ResponseWriter, r *http.Request) {
	decision, err := order.ParseRefundDecision(r.URL.Query().Get("action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.ResolveRefund(r.Context(), chi.URLParam(r, "id"), decision, identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.statusCache.Set(r.Context(), o.ID, o.UserEmail, o.Status)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) ordersInRange(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be an RFC 3339 timestamp or YYYY-MM-DD date")
		return
	}
	to, err := parseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be an RFC 3339 timestamp or YYYY-MM-DD date")
		return
	}

	list, err := h.orders.ListInRange(r.Context(), from, to, identityFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}

	revenue := decimal.Zero
	for i := range list {
		revenue = revenue.Add(list[i].Total)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":  toOrderResponses(list),
		"revenue": revenue.InexactFloat64(),
	})
}

func toOrderResponses(list []order.Order) []orderResponse {
	out := make([]orderResponse, len(list))
	for i := range list {
		out[i] = toOrderResponse(&list[i])
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
