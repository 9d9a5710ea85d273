package ap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ListFilter narrows bill listings.
type ListFilter struct {
	Status   *Status
	VendorID int64
}

// Repository persists vendor bills, their lines and payments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Bill, error)
	List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Bill, error)
	ListPayments(ctx context.Context, billID int64) ([]Payment, error)
}

// TxRepository groups the writes that share one transaction.
type TxRepository interface {
	Insert(ctx context.Context, b *Bill) error
	Lock(ctx context.Context, id int64) (*Bill, error)
	Transition(ctx context.Context, id int64, from, to Status) (bool, error)
	InsertPayment(ctx context.Context, p *Payment) error
	ApplyPayment(ctx context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error
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

const headerColumns = `id, number, vendor_id, purchase_order_id, vendor_reference, status,
	bill_date, due_date, subtotal, discount_amount, tax_amount, total_amount,
	paid_amount, paid_at, notes, created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.Number, &b.VendorID, &b.PurchaseOrderID, &b.VendorReference, &b.Status,
		&b.BillDate, &b.DueDate, &b.Subtotal, &b.DiscountAmount, &b.TaxAmount, &b.TotalAmount,
		&b.PaidAmount, &b.PaidAt, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ap: scan bill: %w", err)
	}
	return &b, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Bill, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM vendor_bills WHERE id = $1`, id)
	b, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bill_id, product_id, description, quantity, unit_cost,
		       discount_percent, tax_percent, line_total, discount_amount, tax_amount
		FROM vendor_bill_items WHERE bill_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("ap: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.BillID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitCost, &it.DiscountPercent, &it.TaxPercent, &it.LineTotal, &it.DiscountAmount, &it.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("ap: scan item: %w", err)
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Bill, error) {
	query := `SELECT ` + headerColumns + ` FROM vendor_bills WHERE 1=1`
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
		return nil, fmt.Errorf("ap: list: %w", err)
	}
	defer rows.Close()

	out := make([]Bill, 0, page.Limit)
	for rows.Next() {
		b, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *repository) ListPayments(ctx context.Context, billID int64) ([]Payment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, bill_id, amount, method, reference, paid_at, created_by
		FROM vendor_bill_payments WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, fmt.Errorf("ap: list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.BillID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedBy); err != nil {
			return nil, fmt.Errorf("ap: scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, b *Bill) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO vendor_bills (number, vendor_id, purchase_order_id, vendor_reference, status,
			bill_date, due_date, subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		b.Number, b.VendorID, b.PurchaseOrderID, b.VendorReference, b.Status,
		b.BillDate, b.DueDate, b.Subtotal, b.DiscountAmount, b.TaxAmount, b.TotalAmount, b.Notes, b.CreatedBy).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown vendor or purchase order", shared.ErrValidation)
		}
		return fmt.Errorf("ap: insert: %w", err)
	}

	for i := range b.Items {
		it := &b.Items[i]
		it.BillID = b.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO vendor_bill_items (bill_id, product_id, description, quantity, unit_cost,
				discount_percent, tax_percent, line_total, discount_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			it.BillID, it.ProductID, it.Description, it.Quantity, it.UnitCost,
			it.DiscountPercent, it.TaxPercent, it.LineTotal, it.DiscountAmount, it.TaxAmount).
			Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("ap: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) Lock(ctx context.Context, id int64) (*Bill, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM vendor_bills WHERE id = $1 FOR UPDATE`, id)
	return scanHeader(row)
}

func (r *txRepository) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE vendor_bills SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("ap: transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p *Payment) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO vendor_bill_payments (bill_id, amount, method, reference, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.BillID, p.Amount, p.Method, p.Reference, p.PaidAt, p.CreatedBy).
		Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("ap: insert payment: %w", err)
	}
	return nil
}

func (r *txRepository) ApplyPayment(ctx context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE vendor_bills SET paid_amount = $2, status = $3, paid_at = COALESCE($4, paid_at), updated_at = now()
		WHERE id = $1`,
		id, paidAmount, status, paidAt)
	if err != nil {
		return fmt.Errorf("ap: apply payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
