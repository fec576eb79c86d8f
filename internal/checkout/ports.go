package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

// User identifies the buyer. Name doubles as the audit actor recorded on
// the order.
type User struct {
	ID   string
	Name string
}

// ItemRef points at a product either by id or by exact name
// (case-insensitive). A zero ProductID means resolve by name.
type ItemRef struct {
	ProductID int64
	Name      string
}

type ItemRequest struct {
	Ref      ItemRef
	Quantity int
}

// Store runs one settlement inside a single transaction. Every mutation
// made through the StoreTx commits together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

type StoreTx interface {
	// ResolveProducts returns one locked snapshot per ref, in ref order.
	// An unknown ref fails with ErrProductUnavailable.
	ResolveProducts(ctx context.Context, refs []ItemRef) ([]ProductSnapshot, error)

	CreateOrder(ctx context.Context, userID, actor string, paid bool) (orderID string, err error)
	AddOrderItem(ctx context.Context, orderID string, productID int64, quantity int, unitPrice decimal.Decimal) error

	// DecrementStock applies a guarded decrement and returns the new stock.
	// ErrStockConflict means the product no longer holds qty units.
	DecrementStock(ctx context.Context, productID int64, qty int) (newStock int, err error)
	ProductStock(ctx context.Context, productID int64) (int, error)
	DeactivateProduct(ctx context.Context, productID int64) error

	CartItems(ctx context.Context, userID string) ([]ItemRequest, error)
	ClearCart(ctx context.Context, userID string) error
}
