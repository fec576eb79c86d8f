package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
)

type CheckoutHandler struct {
	Coordinator *checkout.Coordinator
	Producer    *kafkax.Producer
	Redis       *redis.Client
	Service     string
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/purchase", h.purchase)
	r.Post("/cart/checkout", h.checkoutCart)
}

type purchaseItemReq struct {
	ProductID   int64  `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
}

type purchaseReq struct {
	Items         []purchaseItemReq `json:"items"`
	PaymentAmount string            `json:"payment_amount"`
	ExternalID    string            `json:"external_id,omitempty"`
}

type checkoutCartReq struct {
	PaymentAmount string `json:"payment_amount"`
	ExternalID    string `json:"external_id,omitempty"`
}

type receiptItemResp struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type receiptResp struct {
	OrderID         string            `json:"order_id"`
	Message         string            `json:"message"`
	SuccessfulItems []receiptItemResp `json:"successful_items"`
	Total           string            `json:"total"`
	Paid            string            `json:"paid"`
	Change          string            `json:"change"`
	Note            string            `json:"note,omitempty"`
}

func toReceiptResp(rec *checkout.Receipt) receiptResp {
	items := make([]receiptItemResp, 0, len(rec.Items))
	for _, it := range rec.Items {
		items = append(items, receiptItemResp{Product: it.ProductName, Quantity: it.Quantity})
	}
	resp := receiptResp{
		OrderID:         rec.OrderID,
		Message:         rec.Message,
		SuccessfulItems: items,
		Total:           rec.Total.StringFixed(2),
		Paid:            rec.Paid.StringFixed(2),
		Change:          rec.Change.StringFixed(2),
	}
	if rec.Partial {
		resp.Note = rec.Note
	}
	return resp
}

// parsePayment accepts a positive decimal with at most 2 fraction digits.
func parsePayment(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("payment_amount must be a decimal number")
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("payment_amount must be positive")
	}
	if d.Exponent() < -2 {
		return decimal.Decimal{}, fmt.Errorf("payment_amount must have at most 2 decimal places")
	}
	return d, nil
}

func (h *CheckoutHandler) purchase(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req purchaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, checkout.ErrEmptyBasket.Error())
		return
	}
	payment, err := parsePayment(req.PaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items := make([]checkout.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID == 0 && it.ProductName == "" {
			writeError(w, http.StatusBadRequest, "each item needs a product_id or product_name")
			return
		}
		items = append(items, checkout.ItemRequest{
			Ref:      checkout.ItemRef{ProductID: it.ProductID, Name: it.ProductName},
			Quantity: it.Quantity,
		})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.replayIdempotent(ctx, w, req.ExternalID) {
		return
	}

	rec, err := h.Coordinator.SettlePurchase(ctx, user, items, payment)
	if err != nil {
		settlementError(w, err)
		return
	}
	h.finishSettlement(ctx, w, r, rec, req.ExternalID)
}

func (h *CheckoutHandler) checkoutCart(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	var req checkoutCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	payment, err := parsePayment(req.PaymentAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.replayIdempotent(ctx, w, req.ExternalID) {
		return
	}

	rec, err := h.Coordinator.SettleCart(ctx, user, payment)
	if err != nil {
		settlementError(w, err)
		return
	}
	h.finishSettlement(ctx, w, r, rec, req.ExternalID)
}

// replayIdempotent short-circuits a retried settlement. Best effort: redis
// being down just means the settlement runs again.
func (h *CheckoutHandler) replayIdempotent(ctx context.Context, w http.ResponseWriter, externalID string) bool {
	if externalID == "" || h.Redis == nil {
		return false
	}
	key := fmt.Sprintf(redisx.KeyIdemCheckout, externalID)
	cached, err := h.Redis.Get(ctx, key).Result()
	if err != nil || cached == "" {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cached))
	return true
}

func (h *CheckoutHandler) finishSettlement(ctx context.Context, w http.ResponseWriter, r *http.Request, rec *checkout.Receipt, externalID string) {
	resp := toReceiptResp(rec)

	if externalID != "" && h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, externalID)
		_ = h.Redis.Set(ctx, key, string(kafkax.MustMarshal(resp)), redisx.TTLIdempotency).Err()
	}

	if h.Producer != nil {
		ev := checkout.Envelope{
			EventID:       uuid.NewString(),
			EventType:     checkout.EventCheckoutSettled,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       middleware.GetReqID(r.Context()),
			CorrelationID: rec.OrderID,
			Payload:       kafkax.MustMarshal(checkout.SettledPayload(rec)),
		}
		h.Producer.Publish(checkout.PartitionKey(rec.OrderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventCheckoutSettled)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusCreated, resp)
}
