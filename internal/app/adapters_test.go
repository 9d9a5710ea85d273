package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ap"
	"github.com/meridian-erp/meridian-erp/internal/ar"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ledgerRepo is the minimal in-memory chart and journal the posting adapter
// exercises.
type ledgerRepo struct {
	accounts map[string]*ledger.Account
	entries  []*ledger.Entry
	sources  map[string]bool
}

func newLedgerRepo() *ledgerRepo {
	r := &ledgerRepo{
		accounts: make(map[string]*ledger.Account),
		sources:  make(map[string]bool),
	}
	seeds := []struct {
		code string
		typ  ledger.AccountType
	}{
		{"1000", ledger.TypeAsset},
		{"1100", ledger.TypeAsset},
		{"2000", ledger.TypeLiability},
		{"2100", ledger.TypeLiability},
		{"4000", ledger.TypeRevenue},
	}
	for i, s := range seeds {
		r.accounts[s.code] = &ledger.Account{ID: int64(i + 1), Code: s.code, Type: s.typ, Active: true}
	}
	return r
}

func (r *ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, r)
}

func (r *ledgerRepo) InsertAccount(_ context.Context, a *ledger.Account) error {
	r.accounts[a.Code] = a
	return nil
}

func (r *ledgerRepo) InsertEntry(_ context.Context, e *ledger.Entry) error {
	if e.SourceModule != nil && e.SourceRef != nil {
		key := *e.SourceModule + "/" + *e.SourceRef
		if r.sources[key] {
			return ledger.ErrSourcePosted
		}
		r.sources[key] = true
	}
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return nil
}

func (r *ledgerRepo) GetAccount(_ context.Context, id int64) (*ledger.Account, error) {
	for _, a := range r.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *ledgerRepo) GetAccountByCode(_ context.Context, code string) (*ledger.Account, error) {
	a, ok := r.accounts[code]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (r *ledgerRepo) ListAccounts(context.Context, bool) ([]ledger.Account, error) { return nil, nil }

func (r *ledgerRepo) UpdateAccount(context.Context, *ledger.Account) error { return nil }

func (r *ledgerRepo) GetEntry(context.Context, int64) (*ledger.Entry, error) {
	return nil, shared.ErrNotFound
}

func (r *ledgerRepo) ListEntries(context.Context, shared.CursorPage, *time.Time, *time.Time) ([]ledger.Entry, error) {
	return nil, nil
}

func (r *ledgerRepo) Balances(context.Context, *time.Time, *time.Time) ([]ledger.AccountBalance, error) {
	return nil, nil
}

type memorySequencer struct{ n int64 }

func (s *memorySequencer) Next(context.Context, string, int) (int64, error) {
	s.n++
	return s.n, nil
}

func newPosterFixture() (*ledgerRepo, journalPoster) {
	repo := newLedgerRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := ledger.NewService(repo, shared.NewDocNumberAllocator(&memorySequencer{}), nil, logger)
	return repo, JournalPoster(svc)
}

func TestJournalPosterInvoiceIssued(t *testing.T) {
	repo, poster := newPosterFixture()
	ctx := context.Background()
	inv := &ar.Invoice{
		Number:      "INV-2026-001",
		IssueDate:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		TaxAmount:   18.9,
		TotalAmount: 118.9,
	}

	require.NoError(t, poster.InvoiceIssued(ctx, inv, 7))
	require.Len(t, repo.entries, 1)

	e := repo.entries[0]
	require.Equal(t, "invoices", *e.SourceModule)
	require.Equal(t, "INV-2026-001", *e.SourceRef)
	require.InDelta(t, 118.9, e.TotalDebit, 1e-9)
	require.InDelta(t, 118.9, e.TotalCredit, 1e-9)
	require.Len(t, e.Lines, 3)
	require.InDelta(t, 100, e.Lines[1].Credit, 1e-9)
	require.InDelta(t, 18.9, e.Lines[2].Credit, 1e-9)

	// A replay lands on the source guard and is absorbed.
	require.NoError(t, poster.InvoiceIssued(ctx, inv, 7))
	require.Len(t, repo.entries, 1)
}

func TestJournalPosterBillPaidPerPayment(t *testing.T) {
	repo, poster := newPosterFixture()
	ctx := context.Background()
	paidAt := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	bill := &ap.Bill{Number: "BILL-2026-003", TotalAmount: 640.4}

	first := &ap.Payment{ID: 1, Amount: 400, PaidAt: paidAt}
	second := &ap.Payment{ID: 2, Amount: 240.4, PaidAt: paidAt}
	require.NoError(t, poster.BillPaid(ctx, bill, first, 3))
	require.NoError(t, poster.BillPaid(ctx, bill, second, 3))
	require.Len(t, repo.entries, 2)
	require.InDelta(t, 400, repo.entries[0].TotalDebit, 1e-9)
	require.InDelta(t, 240.4, repo.entries[1].TotalDebit, 1e-9)

	// Replaying one payment does not duplicate its entry.
	require.NoError(t, poster.BillPaid(ctx, bill, first, 3))
	require.Len(t, repo.entries, 2)
}
