package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-shop-checkout/internal/order"
)

type OrdersHandler struct {
	Repo *order.Repo
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Repo.ListOrders(ctx)
	if err != nil {
		storeError(w, err)
		return
	}
	if os == nil {
		os = []order.Order{}
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, id)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
