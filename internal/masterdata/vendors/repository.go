package vendors

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists vendors.
type Repository interface {
	Get(ctx context.Context, id int64) (*Vendor, error)
	List(ctx context.Context, page shared.CursorPage, status *Status) ([]Vendor, error)
	Create(ctx context.Context, v Vendor) (int64, error)
	Update(ctx context.Context, v Vendor) error
	Delete(ctx context.Context, id int64) error
	CountReferences(ctx context.Context, id int64) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const columns = `id, code, name, contact_person, email, phone, address, tax_number,
	payment_terms_days, status, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Vendor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM vendors WHERE id = $1`, id)
	return scanVendor(row)
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, status *Status) ([]Vendor, error) {
	query := `SELECT ` + columns + ` FROM vendors WHERE ($1::bigint = 0 OR id < $1)`
	args := []any{page.AfterID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, page.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *v)
	}
	return vendors, rows.Err()
}

func (r *repository) Create(ctx context.Context, v Vendor) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO vendors (code, name, contact_person, email, phone, address, tax_number,
			payment_terms_days, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`, v.Code, v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.TaxNumber,
		v.PaymentTermsDays, v.Status).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, shared.ErrConflict
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, v Vendor) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE vendors
		SET name = $2, contact_person = $3, email = $4, phone = $5, address = $6,
		    tax_number = $7, payment_terms_days = $8, status = $9, updated_at = NOW()
		WHERE id = $1
	`, v.ID, v.Name, v.ContactPerson, v.Email, v.Phone, v.Address,
		v.TaxNumber, v.PaymentTermsDays, v.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountReferences counts documents pointing at the vendor.
func (r *repository) CountReferences(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM purchase_orders WHERE vendor_id = $1)
		     + (SELECT COUNT(*) FROM vendor_bills WHERE vendor_id = $1)
	`, id).Scan(&count)
	return count, err
}

func scanVendor(row pgx.Row) (*Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Code, &v.Name, &v.ContactPerson, &v.Email, &v.Phone,
		&v.Address, &v.TaxNumber, &v.PaymentTermsDays, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
