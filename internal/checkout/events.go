package checkout

import (
	"encoding/json"
	"time"
)

const (
	TopicCheckoutSettled = "checkout.settled"

	EventCheckoutSettled = "CheckoutSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type SettledItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"` // fixed 2 decimal places
}

type CheckoutSettledPayload struct {
	OrderID string           `json:"order_id"`
	UserID  string           `json:"user_id"`
	Items   []SettledItem    `json:"items"`
	Total   string           `json:"total"`
	Paid    string           `json:"paid"`
	Change  string           `json:"change"`
	Partial bool             `json:"partial"`
	SoldOut []SoldOutProduct `json:"sold_out,omitempty"`
}

// SettledPayload flattens a receipt into the event payload. Money travels
// as fixed two-decimal strings so consumers re-parse it exactly.
func SettledPayload(r *Receipt) CheckoutSettledPayload {
	items := make([]SettledItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, SettledItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.StringFixed(2),
		})
	}
	return CheckoutSettledPayload{
		OrderID: r.OrderID,
		UserID:  r.UserID,
		Items:   items,
		Total:   r.Total.StringFixed(2),
		Paid:    r.Paid.StringFixed(2),
		Change:  r.Change.StringFixed(2),
		Partial: r.Partial,
		SoldOut: r.SoldOut,
	}
}

// Partition key = order_id so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
