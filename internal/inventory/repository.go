package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ProductStock is the slice of a product the inventory layer cares about.
type ProductStock struct {
	ID           int64
	SKU          string
	CurrentStock float64
}

// Repository persists stock movements and keeps products.current_stock in
// step with the movement log.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (*Movement, error)
	List(ctx context.Context, page shared.CursorPage, productID int64, movType MovementType) ([]Movement, error)
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	LockProductStock(ctx context.Context, productID int64) (*ProductStock, error)
	InsertMovement(ctx context.Context, m *Movement) error
	SetProductStock(ctx context.Context, productID int64, stock float64) error
	SumMovements(ctx context.Context, productID int64) (float64, error)
	ListStockedProducts(ctx context.Context) ([]ProductStock, error)
}

type repository struct {
	db *db.DB
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(database *db.DB) Repository {
	return &repository{db: database}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.db.WithTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		return fn(txCtx, &txRepository{tx: tx})
	})
}

const movementColumns = `id, product_id, type, quantity, ref_type, ref_id, note, created_by, created_at`

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.RefType, &m.RefID, &m.Note, &m.CreatedBy, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: scan movement: %w", err)
	}
	return &m, nil
}

func (r *repository) GetMovement(ctx context.Context, id int64) (*Movement, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id = $1`, id)
	return scanMovement(row)
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, productID int64, movType MovementType) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE 1=1`
	args := make([]any, 0, 4)
	if productID > 0 {
		args = append(args, productID)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if movType != "" {
		args = append(args, movType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if page.AfterID > 0 {
		args = append(args, page.AfterID)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	args = append(args, page.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()

	movements := make([]Movement, 0, page.Limit)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockProductStock(ctx context.Context, productID int64) (*ProductStock, error) {
	var p ProductStock
	err := r.tx.QueryRow(ctx,
		`SELECT id, sku, current_stock FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.SKU, &p.CurrentStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: lock product: %w", err)
	}
	return &p, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m *Movement) error {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO stock_movements (product_id, type, quantity, ref_type, ref_id, note, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		m.ProductID, m.Type, m.Quantity, m.RefType, m.RefID, m.Note, m.CreatedBy).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inventory: insert movement: %w", err)
	}
	return nil
}

func (r *txRepository) SetProductStock(ctx context.Context, productID int64, stock float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE products SET current_stock = $2, updated_at = now() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("inventory: set stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SumMovements(ctx context.Context, productID int64) (float64, error) {
	var sum float64
	err := r.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM stock_movements WHERE product_id = $1`, productID).
		Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("inventory: sum movements: %w", err)
	}
	return sum, nil
}

func (r *txRepository) ListStockedProducts(ctx context.Context) ([]ProductStock, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, sku, current_stock FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	defer rows.Close()

	var products []ProductStock
	for rows.Next() {
		var p ProductStock
		if err := rows.Scan(&p.ID, &p.SKU, &p.CurrentStock); err != nil {
			return nil, fmt.Errorf("inventory: scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
