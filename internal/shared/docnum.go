package shared

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequencer issues the next value in a per-prefix, per-year sequence.
type Sequencer interface {
	Next(ctx context.Context, prefix string, year int) (int64, error)
}

// DocNumberAllocator produces human-readable document numbers of the form
// <PREFIX>-<YEAR>-<NNN>. Number uniqueness is guaranteed; gaplessness is best
// effort only, since a unique-constraint collision on insert falls back to a
// timestamp-derived suffix instead of serializing document creation.
type DocNumberAllocator struct {
	seq   Sequencer
	now   func() time.Time
	count func(prefix string)
}

// NewDocNumberAllocator constructs the allocator.
func NewDocNumberAllocator(seq Sequencer) *DocNumberAllocator {
	return &DocNumberAllocator{seq: seq, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (a *DocNumberAllocator) WithNow(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

// WithCounter registers a callback invoked once per allocated number, keyed by
// prefix. Used to feed the created-documents metric.
func (a *DocNumberAllocator) WithCounter(count func(prefix string)) {
	if count != nil {
		a.count = count
	}
}

// Allocate returns the next sequential number for the prefix in the current year.
func (a *DocNumberAllocator) Allocate(ctx context.Context, prefix string) (string, error) {
	if a.seq == nil {
		return "", errors.New("docnum: sequencer not configured")
	}
	year := a.now().Year()
	seq, err := a.seq.Next(ctx, prefix, year)
	if err != nil {
		return "", fmt.Errorf("docnum: next sequence for %s: %w", prefix, err)
	}
	if a.count != nil {
		a.count(prefix)
	}
	return FormatDocNumber(prefix, year, seq), nil
}

// Fallback returns a collision-safe number used when the sequential scheme
// hits a unique violation: T + last six digits of epoch milliseconds + a
// three-digit salt.
func (a *DocNumberAllocator) Fallback(prefix string) string {
	t := a.now()
	return fmt.Sprintf("%s-%d-T%06d%03d", prefix, t.Year(), t.UnixMilli()%1_000_000, rand.IntN(1000))
}

// FormatDocNumber renders <PREFIX>-<YEAR>-<NNN> with a zero-padded sequence.
func FormatDocNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}

// PgSequencer implements Sequencer on the document_sequences table.
type PgSequencer struct {
	pool *pgxpool.Pool
}

// NewPgSequencer constructs the sequencer.
func NewPgSequencer(pool *pgxpool.Pool) *PgSequencer {
	return &PgSequencer{pool: pool}
}

// Next increments and returns the sequence for (prefix, year).
func (s *PgSequencer) Next(ctx context.Context, prefix string, year int) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, year, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, prefix, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign-key error.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
