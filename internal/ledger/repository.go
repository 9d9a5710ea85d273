package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrSourcePosted is returned when a source document already has a journal
// entry linked to it.
var ErrSourcePosted = fmt.Errorf("%w: source document already posted", shared.ErrConflict)

// Repository persists the chart of accounts and journal entries.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByCode(ctx context.Context, code string) (*Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error)
	UpdateAccount(ctx context.Context, a *Account) error

	GetEntry(ctx context.Context, id int64) (*Entry, error)
	ListEntries(ctx context.Context, page shared.CursorPage, from, to *time.Time) ([]Entry, error)

	Balances(ctx context.Context, from, to *time.Time) ([]AccountBalance, error)
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, a *Account) error
	InsertEntry(ctx context.Context, e *Entry) error
}

type pgRepository struct {
	db *db.DB
}

// NewRepository builds the PostgreSQL-backed ledger repository.
func NewRepository(database *db.DB) Repository {
	return &pgRepository{db: database}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) InsertAccount(ctx context.Context, a *Account) error {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO ledger_accounts (code, name, type, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.Type, a.Active)
	return row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *pgTxRepository) InsertEntry(ctx context.Context, e *Entry) error {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO journal_entries
			(number, entry_date, memo, source_module, source_ref,
			 total_debit, total_credit, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, created_at`,
		e.Number, e.EntryDate, e.Memo, e.SourceModule, e.SourceRef,
		e.TotalDebit, e.TotalCredit, e.CreatedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_source" {
			return ErrSourcePosted
		}
		return err
	}
	for i := range e.Lines {
		ln := &e.Lines[i]
		ln.EntryID = e.ID
		row := r.tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit, credit, memo)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			ln.EntryID, ln.AccountID, ln.Debit, ln.Credit, ln.Memo)
		if err := row.Scan(&ln.ID); err != nil {
			if shared.IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: account %d", shared.ErrNotFound, ln.AccountID)
			}
			return err
		}
	}
	return nil
}

func (r *pgRepository) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var a Account
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, code, name, type, active, created_at, updated_at
		FROM ledger_accounts WHERE id = $1`, id)
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgRepository) GetAccountByCode(ctx context.Context, code string) (*Account, error) {
	var a Account
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, code, name, type, active, created_at, updated_at
		FROM ledger_accounts WHERE code = $1`, code)
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", shared.ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *pgRepository) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	q := `SELECT id, code, name, type, active, created_at, updated_at FROM ledger_accounts`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY code`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpdateAccount(ctx context.Context, a *Account) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE ledger_accounts SET name = $2, active = $3, updated_at = now()
		WHERE id = $1`, a.ID, a.Name, a.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", shared.ErrNotFound, a.ID)
	}
	return nil
}

func (r *pgRepository) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, number, entry_date, memo, source_module, source_ref,
		       total_debit, total_credit, created_by, created_at
		FROM journal_entries WHERE id = $1`, id)
	err := row.Scan(&e.ID, &e.Number, &e.EntryDate, &e.Memo, &e.SourceModule, &e.SourceRef,
		&e.TotalDebit, &e.TotalCredit, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: journal entry %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, entry_id, account_id, debit, credit, memo
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ID, &ln.EntryID, &ln.AccountID, &ln.Debit, &ln.Credit, &ln.Memo); err != nil {
			return nil, err
		}
		e.Lines = append(e.Lines, ln)
	}
	return &e, rows.Err()
}

func (r *pgRepository) ListEntries(ctx context.Context, page shared.CursorPage, from, to *time.Time) ([]Entry, error) {
	q := `
		SELECT id, number, entry_date, memo, source_module, source_ref,
		       total_debit, total_credit, created_by, created_at
		FROM journal_entries WHERE 1=1`
	args := []any{}
	if page.AfterID > 0 {
		args = append(args, page.AfterID)
		q += ` AND id < $` + strconv.Itoa(len(args))
	}
	if from != nil {
		args = append(args, *from)
		q += ` AND entry_date >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		q += ` AND entry_date <= $` + strconv.Itoa(len(args))
	}
	args = append(args, page.Limit+1)
	q += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Number, &e.EntryDate, &e.Memo, &e.SourceModule, &e.SourceRef,
			&e.TotalDebit, &e.TotalCredit, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) Balances(ctx context.Context, from, to *time.Time) ([]AccountBalance, error) {
	q := `
		SELECT a.id, a.code, a.name, a.type,
		       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
		FROM ledger_accounts a
		LEFT JOIN journal_lines l ON l.account_id = a.id
		LEFT JOIN journal_entries e ON e.id = l.entry_id`
	args := []any{}
	cond := ""
	if from != nil {
		args = append(args, *from)
		cond += ` AND e.entry_date >= $` + strconv.Itoa(len(args))
	}
	if to != nil {
		args = append(args, *to)
		cond += ` AND e.entry_date <= $` + strconv.Itoa(len(args))
	}
	if cond != "" {
		// keep unmatched accounts in the report, so filter inside the join
		q += cond
	}
	q += ` GROUP BY a.id, a.code, a.name, a.type ORDER BY a.code`

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.TotalDebit, &b.TotalCredit); err != nil {
			return nil, err
		}
		b.Balance = naturalBalance(b.Type, b.TotalDebit, b.TotalCredit)
		out = append(out, b)
	}
	return out, rows.Err()
}

// naturalBalance signs the balance by the account's normal side: debit for
// assets and expenses, credit for the rest.
func naturalBalance(t AccountType, debit, credit float64) float64 {
	switch t {
	case TypeAsset, TypeExpense:
		return debit - credit
	default:
		return credit - debit
	}
}
