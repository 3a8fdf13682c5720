package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bibliosphere/bookstore/internal/domain/order"
	"github.com/bibliosphere/bookstore/internal/domain/product"
)

type productResponse struct {
	ISBN               string  `json:"isbn"`
	Title              string  `json:"title"`
	Author             string  `json:"author"`
	Description        string  `json:"description,omitempty"`
	Category           string  `json:"category,omitempty"`
	Publisher          string  `json:"publisher,omitempty"`
	PublishYear        string  `json:"publishYear,omitempty"`
	Pages              int     `json:"pages,omitempty"`
	Language           string  `json:"language,omitempty"`
	Image              string  `json:"image,omitempty"`
	Price              float64 `json:"price"`
	DiscountPercentage float64 `json:"discountPercentage"`
	DiscountedPrice    float64 `json:"discountedPrice"`
	Stock              int     `json:"stock"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ISBN:               p.ISBN,
		Title:              p.Title,
		Author:             p.Author,
		Description:        p.Description,
		Category:           p.Category,
		Publisher:          p.Publisher,
		PublishYear:        p.PublishYear,
		Pages:              p.Pages,
		Language:           p.Language,
		Image:              p.Image,
		Price:              p.Price.InexactFloat64(),
		DiscountPercentage: p.DiscountPercentage.InexactFloat64(),
		DiscountedPrice:    p.EffectivePrice().InexactFloat64(),
		Stock:              p.Stock,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]productResponse, len(list))
	for i, p := range list {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

// requireManager guards the sales-manager operations.
func requireManager(w http.ResponseWriter, r *http.Request) bool {
	if !identityFrom(r.Context()).Manager {
		respondError(w, r, order.ErrForbidden)
		return false
	}
	return true
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	p, err := h.catalog.UpdatePrice(r.Context(), chi.URLParam(r, "isbn"), decimal.NewFromFloat(req.Price))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	if !requireManager(w, r) {
		return
	}
	var req struct {
		Discount float64 `json:"discount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	p, err := h.catalog.UpdateDiscount(r.Context(), chi.URLParam(r, "isbn"), decimal.NewFromFloat(req.Discount))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(*p))
}
