package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
)

// Item is a cart line joined with the product info a listing needs.
type Item struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

type Repo struct{ DB *pgxpool.Pool }

// carts are created lazily, one per user
func (r *Repo) cartID(ctx context.Context, userID string) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `
		INSERT INTO carts(user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`, userID).Scan(&id)
	return id, err
}

// AddItem upserts a cart line; adding an already-carted product
// accumulates the quantity.
func (r *Repo) AddItem(ctx context.Context, userID string, productID int64, qty int) (*Item, error) {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrProductNotFound
	}

	cartID, err := r.cartID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var itemID int64
	err = r.DB.QueryRow(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`, cartID, productID, qty).Scan(&itemID)
	if err != nil {
		return nil, err
	}
	return r.item(ctx, userID, itemID)
}

func (r *Repo) item(ctx context.Context, userID string, itemID int64) (*Item, error) {
	var (
		it    Item
		price string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price::text, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE ci.id = $1 AND c.user_id = $2`, itemID, userID,
	).Scan(&it.ID, &it.ProductID, &it.ProductName, &price, &it.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price for product %d: %w", it.ProductID, err)
	}
	it.UnitPrice = d
	return &it, nil
}

func (r *Repo) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price::text, ci.quantity
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1
		ORDER BY ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &price, &it.Quantity); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price for product %d: %w", it.ProductID, err)
		}
		it.UnitPrice = d
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItem sets a line's quantity; qty <= 0 removes the line and
// returns removed = true.
func (r *Repo) UpdateItem(ctx context.Context, userID string, itemID int64, qty int) (it *Item, removed bool, err error) {
	if qty <= 0 {
		return nil, true, r.RemoveItem(ctx, userID, itemID)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_items ci SET quantity = $3
		FROM carts c
		WHERE ci.id = $1 AND ci.cart_id = c.id AND c.user_id = $2`, itemID, userID, qty)
	if err != nil {
		return nil, false, err
	}
	if ct.RowsAffected() == 0 {
		return nil, false, ErrItemNotFound
	}
	it, err = r.item(ctx, userID, itemID)
	return it, false, err
}

func (r *Repo) RemoveItem(ctx context.Context, userID string, itemID int64) error {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $1 AND ci.cart_id = c.id AND c.user_id = $2`, itemID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *Repo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID)
	return err
}
