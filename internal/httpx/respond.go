package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/cart"
	"github.com/ariefcatur/go-shop-checkout/internal/catalog"
	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/order"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// settlementError maps the settlement taxonomy onto HTTP codes. Partial
// success is not an error and never lands here.
func settlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrUnauthenticatedActor):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, checkout.ErrEmptyBasket),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrProductUnavailable),
		errors.Is(err, checkout.ErrNothingFulfillable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "settlement failed")
	}
}

func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrCategoryNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
