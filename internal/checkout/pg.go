package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGStore runs settlements against postgres. Snapshots take row locks
// (FOR UPDATE), so two settlements racing on the same product serialize at
// the snapshot instead of conflicting at the decrement.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) ResolveProducts(ctx context.Context, refs []ItemRef) ([]ProductSnapshot, error) {
	out := make([]ProductSnapshot, 0, len(refs))
	for _, ref := range refs {
		var (
			snap  ProductSnapshot
			price string
			row   pgx.Row
		)
		if ref.ProductID != 0 {
			row = t.tx.QueryRow(ctx, `
				SELECT id, name, price::text, stock, is_active
				FROM products WHERE id = $1 FOR UPDATE`, ref.ProductID)
		} else {
			// case-insensitive exact match; lowest id wins on ambiguity
			row = t.tx.QueryRow(ctx, `
				SELECT id, name, price::text, stock, is_active
				FROM products WHERE lower(name) = lower($1)
				ORDER BY id LIMIT 1 FOR UPDATE`, ref.Name)
		}
		if err := row.Scan(&snap.ID, &snap.Name, &price, &snap.Stock, &snap.IsActive); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, refLabel(ref))
			}
			return nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price for product %d: %w", snap.ID, err)
		}
		snap.Price = p
		out = append(out, snap)
	}
	return out, nil
}

func refLabel(ref ItemRef) string {
	if ref.ProductID != 0 {
		return fmt.Sprintf("id=%d", ref.ProductID)
	}
	return ref.Name
}

func (t *pgTx) CreateOrder(ctx context.Context, userID, actor string, paid bool) (string, error) {
	orderID := uuid.NewString()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, is_paid, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())`,
		orderID, userID, paid, actor)
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (t *pgTx) AddOrderItem(ctx context.Context, orderID string, productID int64, quantity int, unitPrice decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO order_items(order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4::numeric)`,
		orderID, productID, quantity, unitPrice.StringFixed(2))
	return err
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int) (int, error) {
	var newStock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, productID, qty).Scan(&newStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrStockConflict
	}
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (t *pgTx) ProductStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	return stock, err
}

func (t *pgTx) DeactivateProduct(ctx context.Context, productID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products SET is_active = FALSE, updated_at = now()
		WHERE id = $1`, productID)
	return err
}

func (t *pgTx) CartItems(ctx context.Context, userID string) ([]ItemRequest, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ci.product_id, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		WHERE c.user_id = $1
		ORDER BY ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ItemRequest
	for rows.Next() {
		var (
			productID int64
			qty       int
		)
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out = append(out, ItemRequest{Ref: ItemRef{ProductID: productID}, Quantity: qty})
	}
	return out, rows.Err()
}

func (t *pgTx) ClearCart(ctx context.Context, userID string) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID)
	return err
}

var _ Store = (*PGStore)(nil)
var _ StoreTx = (*pgTx)(nil)
