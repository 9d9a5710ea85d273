package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ListFilter narrows quotation listings.
type ListFilter struct {
	Status     *Status
	CustomerID int64
}

// Repository persists quotations and their lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Quotation, error)
	ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error)
}

// TxRepository groups the writes that share one transaction.
type TxRepository interface {
	Insert(ctx context.Context, q *Quotation) error
	UpdateDraft(ctx context.Context, q *Quotation, replaceItems bool) error
	SetStatus(ctx context.Context, id int64, from, to Status, convertedOrderID *int64) (bool, error)
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

const headerColumns = `id, number, customer_id, status, issue_date, valid_until,
	subtotal, discount_amount, tax_amount, total_amount, notes,
	converted_order_id, created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.Number, &q.CustomerID, &q.Status, &q.IssueDate, &q.ValidUntil,
		&q.Subtotal, &q.DiscountAmount, &q.TaxAmount, &q.TotalAmount, &q.Notes,
		&q.ConvertedOrderID, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quotations: scan header: %w", err)
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM quotations WHERE id = $1`, id)
	q, err := scanHeader(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, quotation_id, product_id, description, quantity, unit_price,
		       discount_percent, tax_percent, line_total, discount_amount, tax_amount
		FROM quotation_items WHERE quotation_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("quotations: load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.QuotationID, &it.ProductID, &it.Description, &it.Quantity,
			&it.UnitPrice, &it.DiscountPercent, &it.TaxPercent, &it.LineTotal, &it.DiscountAmount, &it.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("quotations: scan item: %w", err)
		}
		q.Items = append(q.Items, it)
	}
	return q, rows.Err()
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Quotation, error) {
	query := `SELECT ` + headerColumns + ` FROM quotations WHERE 1=1`
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
		return nil, fmt.Errorf("quotations: list: %w", err)
	}
	defer rows.Close()

	quotes := make([]Quotation, 0, page.Limit)
	for rows.Next() {
		q, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, rows.Err()
}

func (r *repository) ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id FROM quotations WHERE status = $1 AND valid_until < $2 ORDER BY id`,
		StatusSent, asOf)
	if err != nil {
		return nil, fmt.Errorf("quotations: list expirable: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("quotations: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, q *Quotation) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO quotations (number, customer_id, status, issue_date, valid_until,
			subtotal, discount_amount, tax_amount, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		q.Number, q.CustomerID, q.Status, q.IssueDate, q.ValidUntil,
		q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount, q.Notes, q.CreatedBy).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown customer or product", shared.ErrValidation)
		}
		return fmt.Errorf("quotations: insert: %w", err)
	}
	return r.insertItems(ctx, q)
}

func (r *txRepository) insertItems(ctx context.Context, q *Quotation) error {
	for i := range q.Items {
		it := &q.Items[i]
		it.QuotationID = q.ID
		err := r.tx.QueryRow(ctx, `
			INSERT INTO quotation_items (quotation_id, product_id, description, quantity,
				unit_price, discount_percent, tax_percent, line_total, discount_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			it.QuotationID, it.ProductID, it.Description, it.Quantity,
			it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.LineTotal, it.DiscountAmount, it.TaxAmount).
			Scan(&it.ID)
		if err != nil {
			if shared.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown product %d", shared.ErrValidation, it.ProductID)
			}
			return fmt.Errorf("quotations: insert item: %w", err)
		}
	}
	return nil
}

func (r *txRepository) UpdateDraft(ctx context.Context, q *Quotation, replaceItems bool) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE quotations
		SET valid_until = $2, notes = $3, subtotal = $4, discount_amount = $5,
		    tax_amount = $6, total_amount = $7, updated_at = now()
		WHERE id = $1 AND status = $8`,
		q.ID, q.ValidUntil, q.Notes, q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount, StatusDraft)
	if err != nil {
		return fmt.Errorf("quotations: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrInvalidState
	}
	if !replaceItems {
		return nil
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, q.ID); err != nil {
		return fmt.Errorf("quotations: clear items: %w", err)
	}
	return r.insertItems(ctx, q)
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, from, to Status, convertedOrderID *int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE quotations
		SET status = $3, converted_order_id = COALESCE($4, converted_order_id), updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, convertedOrderID)
	if err != nil {
		return false, fmt.Errorf("quotations: set status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
