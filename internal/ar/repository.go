package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status     *Status
	CustomerID int64
}

// Repository persists invoices, their lines and payments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Invoice, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]int64, error)
}

// TxRepository groups the writes that share one transaction.
type TxRepository interface {
	Insert(ctx context.Context, inv *Invoice) error
	Lock(ctx context.Context, id int64) (*Invoice, error)
	Transition(ctx context.Context, id int64, from, to Status) (bool, error)
	InsertPayment(ctx context.Context, p *Payment) error
	ApplyPayment(ctx context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error
	SetFBRStatus(ctx context.Context, id int64, status FBRStatus) (bool, error)
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

const headerColumns = `id, number, customer_id, order_id, status, fbr_status, issue_date, due_date,
	subtotal, discount_amount, tax_amount, total_amount, paid_amount, paid_at, notes,
	created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.OrderID, &inv.Status, &inv.FBRStatus,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.DiscountAmount, &inv.TaxAmount,
		&inv.TotalAmount, &inv.PaidAmount, &inv.PaidAt, &inv.Notes,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ar: scan invoice: %w", err)
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price,
		       discount_percent, tax_percent, line_total, discount_amount, tax_amount
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("ar: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.LineTotal, &it.DiscountAmount, &it.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("ar: scan item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Invoice, error) {
	query := `SELECT ` + headerColumns + ` FROM invoices WHERE 1=1`
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
		return nil, fmt.Errorf("ar: list: %w", err)
	}
	defer rows.Close()

	out := make([]Invoice, 0, page.Limit)
	for rows.Next() {
		inv, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (r *repository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, invoice_id, amount, method, reference, paid_at, created_by
		FROM invoice_payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("ar: list payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedBy); err != nil {
			return nil, fmt.Errorf("ar: scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id FROM invoices WHERE status = $1 AND due_date < $2 ORDER BY id`,
		StatusSent, asOf)
	if err != nil {
		return nil, fmt.Errorf("ar: list overdue: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ar: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, inv *Invoice) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoices (number, customer_id, order_id, status, fbr_status, issue_date, due_date,
			subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`,
		inv.Number, inv.CustomerID, inv.OrderID, inv.Status, inv.FBRStatus, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.DiscountAmount, inv.TaxAmount, inv.TotalAmount, inv.Notes, inv.CreatedBy).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown customer or product", shared.ErrValidation)
		}
		return fmt.Errorf("ar: insert: %w", err)
	}

	for i := range inv.Items {
		it := &inv.Items[i]
		it.InvoiceID = inv.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, description, quantity, unit_price,
				discount_percent, tax_percent, line_total, discount_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			it.InvoiceID, it.ProductID, it.Description, it.Quantity, it.UnitPrice,
			it.DiscountPercent, it.TaxPercent, it.LineTotal, it.DiscountAmount, it.TaxAmount).
			Scan(&it.ID)
		if err != nil {
			if shared.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown product %d", shared.ErrValidation, it.ProductID)
			}
			return fmt.Errorf("ar: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) Lock(ctx context.Context, id int64) (*Invoice, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+headerColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanHeader(row)
}

func (r *txRepository) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE invoices SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("ar: transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) InsertPayment(ctx context.Context, p *Payment) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (invoice_id, amount, method, reference, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt, p.CreatedBy).
		Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("ar: insert payment: %w", err)
	}
	return nil
}

func (r *txRepository) ApplyPayment(ctx context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE invoices SET paid_amount = $2, status = $3, paid_at = COALESCE($4, paid_at), updated_at = now()
		WHERE id = $1`,
		id, paidAmount, status, paidAt)
	if err != nil {
		return fmt.Errorf("ar: apply payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetFBRStatus(ctx context.Context, id int64, status FBRStatus) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE invoices SET fbr_status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return false, fmt.Errorf("ar: set fbr status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
