package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu            sync.Mutex
	accounts      map[int64]*Account
	entries       map[int64]*Entry
	sourceKeys    map[string]bool
	nextAccountID int64
	nextEntryID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:      make(map[int64]*Account),
		entries:       make(map[int64]*Entry),
		sourceKeys:    make(map[string]bool),
		nextAccountID: 1,
		nextEntryID:   1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) InsertAccount(_ context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Code == a.Code {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_ledger_accounts_code"}
		}
	}
	a.ID = r.nextAccountID
	r.nextAccountID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	copied := *a
	r.accounts[a.ID] = &copied
	return nil
}

func (r *memoryRepo) InsertEntry(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.SourceModule != nil && e.SourceRef != nil {
		key := *e.SourceModule + "/" + *e.SourceRef
		if r.sourceKeys[key] {
			return ErrSourcePosted
		}
		r.sourceKeys[key] = true
	}
	e.ID = r.nextEntryID
	r.nextEntryID++
	e.CreatedAt = time.Now()
	copied := *e
	copied.Lines = append([]Line(nil), e.Lines...)
	r.entries[e.ID] = &copied
	return nil
}

func (r *memoryRepo) GetAccount(_ context.Context, id int64) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memoryRepo) GetAccountByCode(_ context.Context, code string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Code == code {
			copied := *a
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) ListAccounts(_ context.Context, activeOnly bool) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Account
	for id := int64(1); id < r.nextAccountID; id++ {
		a, ok := r.accounts[id]
		if !ok || (activeOnly && !a.Active) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memoryRepo) UpdateAccount(_ context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.accounts[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Name = a.Name
	stored.Active = a.Active
	return nil
}

func (r *memoryRepo) GetEntry(_ context.Context, id int64) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *e
	copied.Lines = append([]Line(nil), e.Lines...)
	return &copied, nil
}

func (r *memoryRepo) ListEntries(_ context.Context, page shared.CursorPage, from, to *time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for id := r.nextEntryID - 1; id >= 1; id-- {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		if from != nil && e.EntryDate.Before(*from) {
			continue
		}
		if to != nil && e.EntryDate.After(*to) {
			continue
		}
		out = append(out, *e)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) Balances(_ context.Context, from, to *time.Time) ([]AccountBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AccountBalance
	for id := int64(1); id < r.nextAccountID; id++ {
		a, ok := r.accounts[id]
		if !ok {
			continue
		}
		b := AccountBalance{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type}
		for _, e := range r.entries {
			if from != nil && e.EntryDate.Before(*from) {
				continue
			}
			if to != nil && e.EntryDate.After(*to) {
				continue
			}
			for _, ln := range e.Lines {
				if ln.AccountID != a.ID {
					continue
				}
				b.TotalDebit += ln.Debit
				b.TotalCredit += ln.Credit
			}
		}
		b.Balance = naturalBalance(b.Type, b.TotalDebit, b.TotalCredit)
		out = append(out, b)
	}
	return out, nil
}

type memorySequencer struct {
	mu  sync.Mutex
	seq int64
}

func (s *memorySequencer) Next(_ context.Context, _ string, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

type fixture struct {
	repo *memoryRepo
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	numbers := shared.NewDocNumberAllocator(&memorySequencer{})
	numbers.WithNow(clock)
	svc := NewService(repo, numbers, nil, logger)
	svc.WithNow(clock)
	return &fixture{repo: repo, svc: svc}
}

func (f *fixture) account(t *testing.T, code, name string, typ AccountType) *Account {
	t.Helper()
	a, err := f.svc.CreateAccount(context.Background(), CreateAccountRequest{
		Code: code, Name: name, Type: string(typ),
	}, 1)
	require.NoError(t, err)
	return a
}

func (f *fixture) chart(t *testing.T) (cash, sales, cogs, payable *Account) {
	t.Helper()
	cash = f.account(t, "1000", "Cash", TypeAsset)
	sales = f.account(t, "4000", "Sales Revenue", TypeRevenue)
	cogs = f.account(t, "5000", "Cost of Goods Sold", TypeExpense)
	payable = f.account(t, "2000", "Accounts Payable", TypeLiability)
	return
}

func TestCreateEntryBalancedPosts(t *testing.T) {
	f := newFixture(t)
	cash, sales, _, _ := f.chart(t)

	entry, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Memo: "cash sale",
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 500},
			{AccountID: sales.ID, Credit: 500},
		},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, "JE-2026-001", entry.Number)
	require.InDelta(t, 500, entry.TotalDebit, 1e-9)
	require.InDelta(t, 500, entry.TotalCredit, 1e-9)
}

func TestCreateEntryBalanceTolerance(t *testing.T) {
	f := newFixture(t)
	cash, sales, _, _ := f.chart(t)

	post := func(debit, credit float64) error {
		_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
			Lines: []EntryLineRequest{
				{AccountID: cash.ID, Debit: debit},
				{AccountID: sales.ID, Credit: credit},
			},
		}, 1)
		return err
	}

	err := post(500, 499.98)
	var unbalanced *shared.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.InDelta(t, 500, unbalanced.TotalDebit, 1e-9)
	require.InDelta(t, 499.98, unbalanced.TotalCredit, 1e-9)

	require.NoError(t, post(500, 500))
	require.NoError(t, post(500, 500.005))
}

func TestCreateEntryRejectsFewerThanTwoLines(t *testing.T) {
	f := newFixture(t)
	cash, _, _, _ := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{{AccountID: cash.ID, Debit: 100}},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryRejectsBothSidesOnOneLine(t *testing.T) {
	f := newFixture(t)
	cash, sales, _, _ := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 100, Credit: 100},
			{AccountID: sales.ID, Credit: 0},
		},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryRejectsInactiveAccount(t *testing.T) {
	f := newFixture(t)
	cash, sales, _, _ := f.chart(t)
	inactive := false
	_, err := f.svc.UpdateAccount(context.Background(), sales.ID, UpdateAccountRequest{
		Name: sales.Name, Active: &inactive,
	}, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 100},
			{AccountID: sales.ID, Credit: 100},
		},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAccountDuplicateCode(t *testing.T) {
	f := newFixture(t)
	f.account(t, "1000", "Cash", TypeAsset)

	_, err := f.svc.CreateAccount(context.Background(), CreateAccountRequest{
		Code: "1000", Name: "Petty Cash", Type: "asset",
	}, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPostSourceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	cash, sales, _, _ := f.chart(t)
	const ref = "INV-2026-001"
	lines := []Line{
		{AccountID: cash.ID, Debit: 118.9},
		{AccountID: sales.ID, Credit: 118.9},
	}

	entry, err := f.svc.PostSource(context.Background(), "invoices", ref,
		time.Now(), "invoice INV-2026-001", lines, 1)
	require.NoError(t, err)
	require.NotNil(t, entry.SourceRef)
	require.Equal(t, ref, *entry.SourceRef)

	_, err = f.svc.PostSource(context.Background(), "invoices", ref,
		time.Now(), "invoice INV-2026-001", lines, 1)
	require.True(t, errors.Is(err, ErrSourcePosted) || errors.Is(err, shared.ErrConflict))
	require.Len(t, f.repo.entries, 1)
}

func TestTrialBalanceBalances(t *testing.T) {
	f := newFixture(t)
	cash, sales, cogs, payable := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 1000},
			{AccountID: sales.ID, Credit: 1000},
		},
	}, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cogs.ID, Debit: 400},
			{AccountID: payable.ID, Credit: 400},
		},
	}, 1)
	require.NoError(t, err)

	report, err := f.svc.TrialBalance(context.Background(), nil, nil)
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.InDelta(t, 1400, report.TotalDebit, 1e-9)
	require.InDelta(t, 1400, report.TotalCredit, 1e-9)
}

func TestProfitLossNetsRevenueAgainstExpenses(t *testing.T) {
	f := newFixture(t)
	cash, sales, cogs, _ := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 1000},
			{AccountID: sales.ID, Credit: 1000},
		},
	}, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cogs.ID, Debit: 400},
			{AccountID: cash.ID, Credit: 400},
		},
	}, 1)
	require.NoError(t, err)

	report, err := f.svc.ProfitLoss(context.Background(), nil, nil)
	require.NoError(t, err)
	require.InDelta(t, 1000, report.TotalRevenue, 1e-9)
	require.InDelta(t, 400, report.TotalExpenses, 1e-9)
	require.InDelta(t, 600, report.NetIncome, 1e-9)
	require.Equal(t, "600.00", report.Display)
}

func TestBalanceSheetFoldsIncomeIntoEquity(t *testing.T) {
	f := newFixture(t)
	cash, sales, cogs, payable := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 1000},
			{AccountID: sales.ID, Credit: 1000},
		},
	}, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cogs.ID, Debit: 250},
			{AccountID: payable.ID, Credit: 250},
		},
	}, 1)
	require.NoError(t, err)

	report, err := f.svc.BalanceSheet(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 1000, report.TotalAssets, 1e-9)
	require.InDelta(t, 250, report.TotalLiabilities, 1e-9)
	require.InDelta(t, 750, report.RetainedEarnings, 1e-9)
	require.InDelta(t, report.TotalAssets, report.TotalLiabilities+report.TotalEquity, 1e-9)
}

func TestDashboardSummarisesByAccountType(t *testing.T) {
	f := newFixture(t)
	cash, sales, cogs, payable := f.chart(t)

	_, err := f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cash.ID, Debit: 1000},
			{AccountID: sales.ID, Credit: 1000},
		},
	}, 1)
	require.NoError(t, err)
	_, err = f.svc.CreateEntry(context.Background(), CreateEntryRequest{
		Lines: []EntryLineRequest{
			{AccountID: cogs.ID, Debit: 300},
			{AccountID: payable.ID, Credit: 300},
		},
	}, 1)
	require.NoError(t, err)

	report, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1000, report.TotalAssets, 1e-9)
	require.InDelta(t, 300, report.TotalLiabilities, 1e-9)
	require.InDelta(t, 1000, report.TotalRevenue, 1e-9)
	require.InDelta(t, 300, report.TotalExpenses, 1e-9)
	require.InDelta(t, 700, report.NetIncome, 1e-9)
	require.Equal(t, "700.00", report.NetIncomeDisplay)
	require.Equal(t, 4, report.AccountsActive)
}

func TestFormattedAmountsUseGrouping(t *testing.T) {
	require.Equal(t, "1,234,567.89", formatAmount(1234567.89))
}
