package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/bibliosphere/bookstore/internal/domain/order"
	"github.com/bibliosphere/bookstore/internal/domain/product"
	"github.com/bibliosphere/bookstore/internal/domain/stock"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"code":    code,
		"message": message,
	})
}

// respondError maps domain errors to HTTP status codes. Business-rule
// violations carry descriptive messages; anything unexpected is logged with
// the request context and surfaced as an opaque 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, stock.ErrProductNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrRefundWindowExpired),
		errors.Is(err, order.ErrInvalidShippingMethod),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInvalidDiscount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		outOfStock  *order.OutOfStockError
		notFound    *order.ProductNotFoundError
		badQuantity *order.InvalidQuantityError
		badMove     *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &outOfStock):
		writeError(w, http.StatusConflict, outOfStock.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &badQuantity):
		writeError(w, http.StatusBadRequest, badQuantity.Error())
	case errors.As(err, &badMove):
		writeError(w, http.StatusBadRequest, badMove.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
