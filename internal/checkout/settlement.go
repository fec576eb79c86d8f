package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MessageFull    = "purchase completed"
	MessagePartial = "purchase completed (partial)"
)

type ReceiptItem struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type SoldOutProduct struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
}

// Receipt is what the buyer gets back from one settlement.
type Receipt struct {
	OrderID string
	UserID  string
	Message string
	Items   []ReceiptItem
	Total   decimal.Decimal
	Paid    decimal.Decimal
	Change  decimal.Decimal
	Partial bool
	Note    string
	SoldOut []SoldOutProduct
}

// Coordinator drives one purchase end to end: snapshot the products, run
// the allocation, record the order and its items, decrement stock, and
// deactivate anything that sold out — all inside one store transaction.
type Coordinator struct {
	Store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{Store: store}
}

// SettlePurchase settles an explicit basket against the payment budget.
func (c *Coordinator) SettlePurchase(ctx context.Context, user User, items []ItemRequest, payment decimal.Decimal) (*Receipt, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBasket
	}
	if user.Name == "" {
		return nil, ErrUnauthenticatedActor
	}

	var rec *Receipt
	err := c.Store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
		r, err := c.settle(ctx, tx, user, items, payment)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SettleCart settles whatever is currently in the user's cart, then clears
// the cart. Cart read, settlement, and cart clearing share one transaction.
func (c *Coordinator) SettleCart(ctx context.Context, user User, payment decimal.Decimal) (*Receipt, error) {
	if user.Name == "" {
		return nil, ErrUnauthenticatedActor
	}

	var rec *Receipt
	err := c.Store.WithinTx(ctx, func(ctx context.Context, tx StoreTx) error {
		items, err := tx.CartItems(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyBasket
		}
		r, err := c.settle(ctx, tx, user, items, payment)
		if err != nil {
			return err
		}
		if err := tx.ClearCart(ctx, user.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Coordinator) settle(ctx context.Context, tx StoreTx, user User, items []ItemRequest, payment decimal.Decimal) (*Receipt, error) {
	refs := make([]ItemRef, len(items))
	for i, it := range items {
		refs[i] = it.Ref
	}
	snaps, err := tx.ResolveProducts(ctx, refs)
	if err != nil {
		return nil, err
	}

	lines := make([]LineRequest, len(items))
	for i := range items {
		lines[i] = LineRequest{Product: snaps[i], Quantity: items[i].Quantity}
	}

	alloc, err := Allocate(lines, payment)
	if err != nil {
		return nil, err
	}
	if len(alloc.Lines) == 0 {
		return nil, ErrNothingFulfillable
	}

	orderID, err := tx.CreateOrder(ctx, user.ID, user.Name, true)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var note strings.Builder
	note.WriteString(alloc.Note)
	partial := alloc.Partial

	charged := decimal.Zero
	final := make([]ReceiptItem, 0, len(alloc.Lines))
	var soldOut []SoldOutProduct

	for _, ln := range alloc.Lines {
		qty := ln.Quantity
		newStock, err := tx.DecrementStock(ctx, ln.ProductID, qty)
		if errors.Is(err, ErrStockConflict) {
			// Someone else took stock since our snapshot. Degrade the line
			// to whatever is left, mirroring the clamp policy.
			remaining, rerr := tx.ProductStock(ctx, ln.ProductID)
			if rerr != nil {
				return nil, rerr
			}
			partial = true
			fmt.Fprintf(&note, " only %d of '%s' can be purchased. ", remaining, ln.ProductName)
			if remaining <= 0 {
				continue
			}
			qty = remaining
			newStock, err = tx.DecrementStock(ctx, ln.ProductID, qty)
		}
		if err != nil {
			return nil, fmt.Errorf("decrement stock for product %d: %w", ln.ProductID, err)
		}

		if err := tx.AddOrderItem(ctx, orderID, ln.ProductID, qty, ln.UnitPrice); err != nil {
			return nil, fmt.Errorf("add order item: %w", err)
		}
		charged = charged.Add(ln.UnitPrice.Mul(decimal.NewFromInt(int64(qty))))
		final = append(final, ReceiptItem{
			ProductID:   ln.ProductID,
			ProductName: ln.ProductName,
			Quantity:    qty,
			UnitPrice:   ln.UnitPrice,
		})

		if newStock == 0 {
			if err := tx.DeactivateProduct(ctx, ln.ProductID); err != nil {
				return nil, fmt.Errorf("deactivate product %d: %w", ln.ProductID, err)
			}
			soldOut = append(soldOut, SoldOutProduct{ProductID: ln.ProductID, ProductName: ln.ProductName})
		}
	}

	if len(final) == 0 {
		// every line degraded to zero; roll the order back
		return nil, ErrNothingFulfillable
	}

	msg := MessageFull
	if partial {
		msg = MessagePartial
	}
	return &Receipt{
		OrderID: orderID,
		UserID:  user.ID,
		Message: msg,
		Items:   final,
		Total:   alloc.Total,
		Paid:    payment,
		Change:  payment.Sub(charged),
		Partial: partial,
		Note:    strings.TrimSpace(note.String()),
		SoldOut: soldOut,
	}, nil
}
