package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ListFilter narrows order listings.
type ListFilter struct {
	Status     *Status
	CustomerID int64
}

// Repository persists sales orders and their lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Order, error)
}

// TxRepository groups the writes that share one transaction.
type TxRepository interface {
	Insert(ctx context.Context, o *Order) error
	Transition(ctx context.Context, id int64, from, to Status) (bool, error)
	MarkShipped(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkInvoiced(ctx context.Context, id int64, invoiceID int64) (bool, error)
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

const headerColumns = `id, number, customer_id, quotation_id, status, order_date,
	shipped_at, delivered_at, subtotal, discount_amount, tax_amount, total_amount,
	notes, invoice_id, created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.QuotationID, &o.Status, &o.OrderDate,
		&o.ShippedAt, &o.DeliveredAt, &o.Subtotal, &o.DiscountAmount, &o.TaxAmount, &o.TotalAmount,
		&o.Notes, &o.InvoiceID, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: scan header: %w", err)
	}
	return &o, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM sales_orders WHERE id = $1`, id)
	o, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, order_id, product_id, description, is_good, quantity, unit_price,
		       discount_percent, tax_percent, line_total, discount_amount, tax_amount
		FROM sales_order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("orders: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Description, &it.IsGood,
			&it.Quantity, &it.UnitPrice, &it.DiscountPercent, &it.TaxPercent,
			&it.LineTotal, &it.DiscountAmount, &it.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Order, error) {
	query := `SELECT ` + headerColumns + ` FROM sales_orders WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if page.AfterID > 0 {
		args = append(args, page.AfterID)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	args = append(args, page.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	out := make([]Order, 0, page.Limit)
	for rows.Next() {
		o, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, o *Order) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO sales_orders (number, customer_id, quotation_id, status, order_date,
			subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		o.Number, o.CustomerID, o.QuotationID, o.Status, o.OrderDate,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, o.TotalAmount, o.Notes, o.CreatedBy).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown customer or product", shared.ErrValidation)
		}
		return fmt.Errorf("orders: insert: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO sales_order_items (order_id, product_id, description, is_good, quantity,
				unit_price, discount_percent, tax_percent, line_total, discount_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Description, it.IsGood, it.Quantity,
			it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.LineTotal, it.DiscountAmount, it.TaxAmount).
			Scan(&it.ID)
		if err != nil {
			if shared.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown product %d", shared.ErrValidation, it.ProductID)
			}
			return fmt.Errorf("orders: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE sales_orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("orders: transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) MarkShipped(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sales_orders SET status = $3, shipped_at = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusProcessing, StatusShipped, at)
	if err != nil {
		return false, fmt.Errorf("orders: mark shipped: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sales_orders SET status = $3, delivered_at = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusShipped, StatusDelivered, at)
	if err != nil {
		return false, fmt.Errorf("orders: mark delivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) MarkInvoiced(ctx context.Context, id int64, invoiceID int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE sales_orders SET status = $3, invoice_id = $4, updated_at = now()
		WHERE id = $1 AND status = $2 AND invoice_id IS NULL`,
		id, StatusDelivered, StatusInvoiced, invoiceID)
	if err != nil {
		return false, fmt.Errorf("orders: mark invoiced: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
