package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ListFilter narrows purchase order listings.
type ListFilter struct {
	Status   *Status
	VendorID int64
}

// Repository persists purchase orders and their lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*PurchaseOrder, error)
	List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]PurchaseOrder, error)
}

// TxRepository groups the writes that share one transaction.
type TxRepository interface {
	Insert(ctx context.Context, po *PurchaseOrder) error
	UpdateDraft(ctx context.Context, po *PurchaseOrder, replaceItems bool) error
	Transition(ctx context.Context, id int64, from, to Status) (bool, error)
	MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error)
	SetBillID(ctx context.Context, id int64, billID int64) (bool, error)
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

const headerColumns = `id, number, vendor_id, status, order_date, expected_at, received_at,
	subtotal, discount_amount, tax_amount, total_amount, notes, bill_id,
	created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.VendorID, &po.Status, &po.OrderDate, &po.ExpectedAt,
		&po.ReceivedAt, &po.Subtotal, &po.DiscountAmount, &po.TaxAmount, &po.TotalAmount,
		&po.Notes, &po.BillID, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("procurement: scan header: %w", err)
	}
	return &po, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, purchase_order_id, product_id, description, is_good, quantity, unit_cost,
		       discount_percent, tax_percent, line_total, discount_amount, tax_amount
		FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("procurement: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.Description, &it.IsGood,
			&it.Quantity, &it.UnitCost, &it.DiscountPercent, &it.TaxPercent,
			&it.LineTotal, &it.DiscountAmount, &it.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("procurement: scan item: %w", err)
		}
		po.Items = append(po.Items, it)
	}
	return po, rows.Err()
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]PurchaseOrder, error) {
	query := `SELECT ` + headerColumns + ` FROM purchase_orders WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		query += fmt.Sprintf(" AND vendor_id = $%d", len(args))
	}
	if page.AfterID > 0 {
		args = append(args, page.AfterID)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	args = append(args, page.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("procurement: list: %w", err)
	}
	defer rows.Close()

	out := make([]PurchaseOrder, 0, page.Limit)
	for rows.Next() {
		po, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *po)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, po *PurchaseOrder) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, vendor_id, status, order_date, expected_at,
			subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		po.Number, po.VendorID, po.Status, po.OrderDate, po.ExpectedAt,
		po.Subtotal, po.DiscountAmount, po.TaxAmount, po.TotalAmount, po.Notes, po.CreatedBy).
		Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown vendor or product", shared.ErrValidation)
		}
		return fmt.Errorf("procurement: insert: %w", err)
	}
	return r.insertItems(ctx, po)
}

func (r *txRepository) insertItems(ctx context.Context, po *PurchaseOrder) error {
	for i := range po.Items {
		it := &po.Items[i]
		it.PurchaseOrderID = po.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, product_id, description, is_good,
				quantity, unit_cost, discount_percent, tax_percent, line_total, discount_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			it.PurchaseOrderID, it.ProductID, it.Description, it.IsGood,
			it.Quantity, it.UnitCost, it.DiscountPercent, it.TaxPercent,
			it.LineTotal, it.DiscountAmount, it.TaxAmount).
			Scan(&it.ID)
		if err != nil {
			if shared.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown product %d", shared.ErrValidation, it.ProductID)
			}
			return fmt.Errorf("procurement: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) UpdateDraft(ctx context.Context, po *PurchaseOrder, replaceItems bool) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders
		SET expected_at = $2, notes = $3, subtotal = $4, discount_amount = $5,
		    tax_amount = $6, total_amount = $7, updated_at = now()
		WHERE id = $1 AND status = $8`,
		po.ID, po.ExpectedAt, po.Notes, po.Subtotal, po.DiscountAmount,
		po.TaxAmount, po.TotalAmount, StatusDraft)
	if err != nil {
		return fmt.Errorf("procurement: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvalidState
	}
	if !replaceItems {
		return nil
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, po.ID); err != nil {
		return fmt.Errorf("procurement: clear items: %w", err)
	}
	return r.insertItems(ctx, po)
}

func (r *txRepository) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("procurement: transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders SET status = $3, received_at = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusSent, StatusReceived, at)
	if err != nil {
		return false, fmt.Errorf("procurement: mark received: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) SetBillID(ctx context.Context, id int64, billID int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE purchase_orders SET bill_id = $2, updated_at = now()
		WHERE id = $1 AND bill_id IS NULL`,
		id, billID)
	if err != nil {
		return false, fmt.Errorf("procurement: set bill: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
