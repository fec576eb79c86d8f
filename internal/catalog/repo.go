package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, name, description, price::text, stock, category_id, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var (
		p     Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.CategoryID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price for product %d: %w", p.ID, err)
	}
	p.Price = d
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context, f Filter) ([]Product, error) {
	q := `SELECT ` + productCols + ` FROM products`
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.IncludeInactive {
		conds = append(conds, "is_active")
	}
	if f.Name != "" {
		add("name ILIKE $%d", "%"+f.Name+"%")
	}
	if f.CategoryID != 0 {
		add("category_id = $%d", f.CategoryID)
	}
	if f.MinPrice != nil {
		add("price >= $%d::numeric", f.MinPrice.StringFixed(2))
	}
	if f.MaxPrice != nil {
		add("price <= $%d::numeric", f.MaxPrice.StringFixed(2))
	}
	if f.InStock {
		conds = append(conds, "stock > 0")
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY id"

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	return p, err
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(name, description, price, stock, category_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, now(), now())
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.CategoryID, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) UpdateProduct(ctx context.Context, p *Product) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4::numeric, stock = $5,
		    category_id = $6, is_active = $7, updated_at = now()
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.CategoryID, p.IsActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeactivateProduct is the soft delete used by the admin surface; the
// product stays referenced by existing order items.
func (r *Repo) DeactivateProduct(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repo) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM categories WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) CreateCategory(ctx context.Context, c *Category) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO categories(name, description, is_active, created_at)
		VALUES ($1, $2, TRUE, now())
		RETURNING id, is_active, created_at`,
		c.Name, c.Description,
	).Scan(&c.ID, &c.IsActive, &c.CreatedAt)
}
