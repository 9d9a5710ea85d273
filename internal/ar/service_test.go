package ar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	invoices map[int64]*Invoice
	payments map[int64][]Payment
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices: make(map[int64]*Invoice),
		payments: make(map[int64][]Payment),
		nextID:   1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *inv
	copied.Items = append([]Item(nil), inv.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, page shared.CursorPage, filter ListFilter) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Invoice
	for id := r.nextID - 1; id >= 1; id-- {
		inv, ok := r.invoices[id]
		if !ok {
			continue
		}
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.CustomerID > 0 && inv.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, *inv)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[invoiceID]...), nil
}

func (r *memoryRepo) ListOverdueCandidates(_ context.Context, asOf time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, inv := range r.invoices {
		if inv.Status == StatusSent && inv.DueDate.Before(asOf) {
			ids = append(ids, inv.ID)
		}
	}
	return ids, nil
}

func (r *memoryRepo) Insert(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv.ID = r.nextID
	r.nextID++
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	copied := *inv
	copied.Items = append([]Item(nil), inv.Items...)
	r.invoices[inv.ID] = &copied
	return nil
}

func (r *memoryRepo) Lock(_ context.Context, id int64) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r *memoryRepo) Transition(_ context.Context, id int64, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	return true, nil
}

func (r *memoryRepo) InsertPayment(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = int64(len(r.payments[p.InvoiceID]) + 1)
	r.payments[p.InvoiceID] = append(r.payments[p.InvoiceID], *p)
	return nil
}

func (r *memoryRepo) ApplyPayment(_ context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.PaidAmount = paidAmount
	inv.Status = status
	if paidAt != nil {
		inv.PaidAt = paidAt
	}
	return nil
}

func (r *memoryRepo) SetFBRStatus(_ context.Context, id int64, status FBRStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return false, nil
	}
	inv.FBRStatus = status
	return true, nil
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

type fakeProducts struct{}

func (fakeProducts) Name(_ context.Context, id int64) (string, error) {
	if id == 1 {
		return "Widget", nil
	}
	return "", shared.ErrNotFound
}

type fakeTax struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (f *fakeTax) SubmitInvoice(_ context.Context, _ *Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fail
}

type fakeJournal struct {
	mu     sync.Mutex
	issued []string
	fail   error
}

func (f *fakeJournal) InvoiceIssued(_ context.Context, inv *Invoice, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.issued = append(f.issued, inv.Number)
	return nil
}

type fixture struct {
	repo    *memoryRepo
	tax     *fakeTax
	journal *fakeJournal
	svc     *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	tax := &fakeTax{}
	journal := &fakeJournal{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, fakeProducts{}, tax,
		shared.NewDocNumberAllocator(&memorySequencer{}), nil, logger)
	svc.SetJournalPoster(journal)
	return &fixture{repo: repo, tax: tax, journal: journal, svc: svc}
}

func TestCreateFromOrderIssuesWithThirtyDayTerms(t *testing.T) {
	f := newFixture()
	order := &orders.Order{
		ID:          9,
		Number:      "SO-2026-009",
		CustomerID:  10,
		Subtotal:    120,
		TaxAmount:   0.9,
		TotalAmount: 118.9,
		Items: []orders.Item{
			{ProductID: 1, Description: "Widget", Quantity: 2, UnitPrice: 10, LineTotal: 20},
		},
	}

	id, number, err := f.svc.CreateFromOrder(context.Background(), order, 7)
	require.NoError(t, err)
	require.Contains(t, number, "INV-")

	inv, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, StatusSent, inv.Status)
	require.Equal(t, FBRPending, inv.FBRStatus)
	require.Equal(t, 118.9, inv.TotalAmount)
	require.NotNil(t, inv.OrderID)
	require.Equal(t, int64(9), *inv.OrderID)
	require.Equal(t, inv.IssueDate.AddDate(0, 0, 30), inv.DueDate)
}

func TestIssuePostsToJournal(t *testing.T) {
	f := newFixture()
	order := &orders.Order{
		ID:          9,
		Number:      "SO-2026-009",
		CustomerID:  10,
		TotalAmount: 118.9,
	}

	// Automatic invoicing issues immediately, so it posts on creation.
	_, number, err := f.svc.CreateFromOrder(context.Background(), order, 7)
	require.NoError(t, err)
	require.Equal(t, []string{number}, f.journal.issued)

	// A manual draft posts when it is sent, and a posting failure never
	// blocks issuance.
	inv := createManual(t, f)
	f.journal.fail = errors.New("ledger unavailable")
	sent, err := f.svc.Send(context.Background(), inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.Len(t, f.journal.issued, 1)
}

func createManual(t *testing.T, f *fixture) *Invoice {
	t.Helper()
	inv, err := f.svc.Create(context.Background(), CreateInvoiceRequest{
		CustomerID: 10,
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 2, UnitPrice: 10, DiscountPercent: 10, TaxPercent: 5},
		},
	}, 7)
	require.NoError(t, err)
	return inv
}

func TestManualCreateStartsDraft(t *testing.T) {
	f := newFixture()
	inv := createManual(t, f)
	require.Equal(t, StatusDraft, inv.Status)
	require.InDelta(t, 18.9, inv.TotalAmount, 1e-9)
	require.Equal(t, "Widget", inv.Items[0].Description)
}

func TestPaymentsAccumulateUntilPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := createManual(t, f)
	_, err := f.svc.Send(ctx, inv.ID, 7)
	require.NoError(t, err)

	partial, err := f.svc.RecordPayment(ctx, inv.ID, PaymentRequest{Amount: 10, Method: "cash"}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusSent, partial.Status)
	require.Equal(t, 10.0, partial.PaidAmount)
	require.Nil(t, partial.PaidAt)

	settled, err := f.svc.RecordPayment(ctx, inv.ID, PaymentRequest{Amount: 8.9, Method: "cash"}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
	require.InDelta(t, 18.9, settled.PaidAmount, 1e-9)
	require.NotNil(t, settled.PaidAt)

	_, err = f.svc.RecordPayment(ctx, inv.ID, PaymentRequest{Amount: 1, Method: "cash"}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	payments, err := f.svc.Payments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
}

func TestPaymentRejectedOnDraft(t *testing.T) {
	f := newFixture()
	inv := createManual(t, f)

	_, err := f.svc.RecordPayment(context.Background(), inv.ID, PaymentRequest{Amount: 5, Method: "cash"}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCancelBlockedOncePaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := createManual(t, f)
	_, err := f.svc.Send(ctx, inv.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, inv.ID, PaymentRequest{Amount: 5, Method: "cash"}, 7)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, inv.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestMarkOverdueDue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := createManual(t, f)
	_, err := f.svc.Send(ctx, inv.ID, 7)
	require.NoError(t, err)
	f.repo.invoices[inv.ID].DueDate = time.Now().AddDate(0, 0, -1)

	fresh := createManual(t, f)
	_, err = f.svc.Send(ctx, fresh.ID, 7)
	require.NoError(t, err)

	moved, err := f.svc.MarkOverdueDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, moved)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)

	// Overdue invoices still take payments.
	settled, err := f.svc.RecordPayment(ctx, inv.ID, PaymentRequest{Amount: 18.9, Method: "bank_transfer"}, 7)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
}

func TestSyncFBR(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := createManual(t, f)

	_, err := f.svc.SyncFBR(ctx, inv.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.Send(ctx, inv.ID, 7)
	require.NoError(t, err)

	synced, err := f.svc.SyncFBR(ctx, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, FBRSynced, synced.FBRStatus)
	require.Equal(t, 1, f.tax.calls)

	// Already synced invoices are not resubmitted.
	_, err = f.svc.SyncFBR(ctx, inv.ID, 7)
	require.NoError(t, err)
	require.Equal(t, 1, f.tax.calls)
}

func TestSyncFBRRecordsFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	inv := createManual(t, f)
	_, err := f.svc.Send(ctx, inv.ID, 7)
	require.NoError(t, err)
	f.tax.fail = errors.New("gateway timeout")

	_, err = f.svc.SyncFBR(ctx, inv.ID, 7)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, FBRFailed, got.FBRStatus)
}
