package products

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists products.
type Repository interface {
	Get(ctx context.Context, id int64) (*Product, error)
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, page shared.CursorPage, active *bool) ([]Product, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) (int64, error)
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, sku, name, type, uom, current_stock, reorder_point,
	purchase_price, sale_price, active, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *repository) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, active *bool) ([]Product, error) {
	query := `SELECT ` + columns + ` FROM products WHERE ($1::bigint = 0 OR id < $1)`
	args := []any{page.AfterID}
	if active != nil {
		query += ` AND active = $2`
		args = append(args, *active)
	}
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, page.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (r *repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+columns+` FROM products
		WHERE type = 'good' AND active AND current_stock <= reorder_point
		ORDER BY current_stock - reorder_point ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

func (r *repository) Create(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, type, uom, current_stock, reorder_point,
			purchase_price, sale_price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, p.SKU, p.Name, p.Type, p.UOM, p.CurrentStock, p.ReorderPoint,
		p.PurchasePrice, p.SalePrice, p.Active).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, shared.ErrConflict
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, type = $3, uom = $4, reorder_point = $5,
		    purchase_price = $6, sale_price = $7, active = $8, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Name, p.Type, p.UOM, p.ReorderPoint, p.PurchasePrice, p.SalePrice, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1 AND NOT EXISTS (
		SELECT 1 FROM stock_movements WHERE product_id = $1)`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Type, &p.UOM, &p.CurrentStock,
		&p.ReorderPoint, &p.PurchasePrice, &p.SalePrice, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
