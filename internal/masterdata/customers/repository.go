package customers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists customers.
type Repository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	GetByCode(ctx context.Context, code string) (*Customer, error)
	List(ctx context.Context, page shared.CursorPage, status *Status) ([]Customer, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, c Customer) error
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
	credit_terms_days, credit_limit, status, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE code = $1`, code)
	return scanCustomer(row)
}

func (r *repository) List(ctx context.Context, page shared.CursorPage, status *Status) ([]Customer, error) {
	query := `SELECT ` + columns + ` FROM customers WHERE ($1::bigint = 0 OR id < $1)`
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

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (code, name, contact_person, email, phone, address, tax_number,
			credit_terms_days, credit_limit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id
	`, c.Code, c.Name, c.ContactPerson, c.Email, c.Phone, c.Address, c.TaxNumber,
		c.CreditTermsDays, c.CreditLimit, c.Status).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return 0, shared.ErrConflict
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET name = $2, contact_person = $3, email = $4, phone = $5, address = $6,
		    tax_number = $7, credit_terms_days = $8, credit_limit = $9, status = $10,
		    updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.Name, c.ContactPerson, c.Email, c.Phone, c.Address,
		c.TaxNumber, c.CreditTermsDays, c.CreditLimit, c.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountReferences counts documents pointing at the customer; deletion is only
// allowed when this is zero.
func (r *repository) CountReferences(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM quotations WHERE customer_id = $1)
		     + (SELECT COUNT(*) FROM sales_orders WHERE customer_id = $1)
		     + (SELECT COUNT(*) FROM invoices WHERE customer_id = $1)
	`, id).Scan(&count)
	return count, err
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	var createdAt, updatedAt time.Time
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.ContactPerson, &c.Email, &c.Phone,
		&c.Address, &c.TaxNumber, &c.CreditTermsDays, &c.CreditLimit, &c.Status,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return &c, nil
}
