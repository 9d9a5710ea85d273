package ap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	bills    map[int64]*Bill
	payments map[int64][]Payment
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		bills:    make(map[int64]*Bill),
		payments: make(map[int64][]Payment),
		nextID:   1,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *b
	copied.Items = append([]Item(nil), b.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, page shared.CursorPage, filter ListFilter) ([]Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Bill
	for id := r.nextID - 1; id >= 1; id-- {
		b, ok := r.bills[id]
		if !ok {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.VendorID > 0 && b.VendorID != filter.VendorID {
			continue
		}
		out = append(out, *b)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(_ context.Context, billID int64) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payment(nil), r.payments[billID]...), nil
}

func (r *memoryRepo) Insert(_ context.Context, b *Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.nextID
	r.nextID++
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	copied := *b
	copied.Items = append([]Item(nil), b.Items...)
	r.bills[b.ID] = &copied
	return nil
}

func (r *memoryRepo) Lock(_ context.Context, id int64) (*Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memoryRepo) Transition(_ context.Context, id int64, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	return true, nil
}

func (r *memoryRepo) InsertPayment(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = int64(len(r.payments[p.BillID]) + 1)
	r.payments[p.BillID] = append(r.payments[p.BillID], *p)
	return nil
}

func (r *memoryRepo) ApplyPayment(_ context.Context, id int64, paidAmount float64, status Status, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bills[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.PaidAmount = paidAmount
	b.Status = status
	if paidAt != nil {
		b.PaidAt = paidAt
	}
	return nil
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

type fakePOs struct {
	mu    sync.Mutex
	pos   map[int64]*procurement.PurchaseOrder
	links map[int64]int64
}

func (f *fakePOs) Get(_ context.Context, id int64) (*procurement.PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	po, ok := f.pos[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *po
	return &copied, nil
}

func (f *fakePOs) LinkBill(_ context.Context, id, billID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.links[id]; exists {
		return shared.ErrConflict
	}
	f.links[id] = billID
	if po, ok := f.pos[id]; ok {
		po.BillID = &billID
	}
	return nil
}

type journalCall struct {
	Bill      string
	PaymentID int64
	Amount    float64
}

type fakeJournal struct {
	mu    sync.Mutex
	calls []journalCall
	fail  error
}

func (f *fakeJournal) BillPaid(_ context.Context, b *Bill, p *Payment, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, journalCall{Bill: b.Number, PaymentID: p.ID, Amount: p.Amount})
	return nil
}

type fixture struct {
	repo    *memoryRepo
	pos     *fakePOs
	journal *fakeJournal
	svc     *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	pos := &fakePOs{
		pos: map[int64]*procurement.PurchaseOrder{
			1: {
				ID: 1, Number: "PO-2026-001", VendorID: 5, Status: procurement.StatusReceived,
				Subtotal: 115, TaxAmount: 12.75, TotalAmount: 127.75,
				Items: []procurement.Item{
					{ProductID: 1, Description: "Widget", IsGood: true, Quantity: 10, UnitCost: 7.5,
						TaxPercent: 17, LineTotal: 75, TaxAmount: 12.75},
					{ProductID: 2, Description: "Freight", Quantity: 1, UnitCost: 40, LineTotal: 40},
				},
			},
			2: {ID: 2, Number: "PO-2026-002", VendorID: 5, Status: procurement.StatusSent},
		},
		links: make(map[int64]int64),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, pos, shared.NewDocNumberAllocator(&memorySequencer{}), nil, logger)
	journal := &fakeJournal{}
	svc.SetJournalPoster(journal)
	return &fixture{repo: repo, pos: pos, journal: journal, svc: svc}
}

func standaloneBill(t *testing.T, f *fixture) *Bill {
	t.Helper()
	bill, err := f.svc.Create(context.Background(), CreateBillRequest{
		VendorID: 5,
		Items: []ItemRequest{
			{Description: "Warehouse rent", Quantity: 1, UnitCost: 500},
			{Description: "Electricity", Quantity: 1, UnitCost: 120, TaxPercent: 17},
		},
	}, 3)
	require.NoError(t, err)
	return bill
}

func TestCreateStandaloneBill(t *testing.T) {
	f := newFixture()
	bill := standaloneBill(t, f)

	require.Equal(t, StatusOpen, bill.Status)
	require.Contains(t, bill.Number, "BILL-")
	require.Equal(t, 620.0, bill.Subtotal)
	require.InDelta(t, 20.4, bill.TaxAmount, 1e-9)
	require.InDelta(t, 640.4, bill.TotalAmount, 1e-9)
	require.Equal(t, bill.BillDate.AddDate(0, 0, 30), bill.DueDate)
	require.Nil(t, bill.Items[0].ProductID)
}

func TestCreateFromReceivedPO(t *testing.T) {
	f := newFixture()

	bill, err := f.svc.CreateFromPO(context.Background(), CreateFromPORequest{PurchaseOrderID: 1}, 3)
	require.NoError(t, err)
	require.Equal(t, int64(5), bill.VendorID)
	require.NotNil(t, bill.PurchaseOrderID)
	require.Equal(t, 127.75, bill.TotalAmount)
	require.Len(t, bill.Items, 2)
	require.Equal(t, bill.ID, f.pos.links[1])

	// The same purchase order cannot be billed twice.
	_, err = f.svc.CreateFromPO(context.Background(), CreateFromPORequest{PurchaseOrderID: 1}, 3)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateFromUnreceivedPO(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateFromPO(context.Background(), CreateFromPORequest{PurchaseOrderID: 2}, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentsAccumulate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bill := standaloneBill(t, f)

	partial, err := f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 400, Method: "bank_transfer"}, 3)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, partial.Status)
	require.Equal(t, 400.0, partial.PaidAmount)
	require.Nil(t, partial.PaidAt)

	second, err := f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 200, Method: "bank_transfer"}, 3)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, second.Status)
	require.Equal(t, 600.0, second.PaidAmount)

	settled, err := f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 40.4, Method: "cash"}, 3)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
	require.InDelta(t, 640.4, settled.PaidAmount, 1e-9)
	require.NotNil(t, settled.PaidAt)

	payments, err := f.svc.Payments(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
}

func TestOverpaymentAcceptedAndSettles(t *testing.T) {
	f := newFixture()
	bill := standaloneBill(t, f)

	settled, err := f.svc.RecordPayment(context.Background(), bill.ID,
		PaymentRequest{Amount: 700, Method: "bank_transfer"}, 3)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, settled.Status)
	require.Equal(t, 700.0, settled.PaidAmount)
}

func TestPaymentRejectedOnceSettled(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bill := standaloneBill(t, f)

	_, err := f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 640.4, Method: "cash"}, 3)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 1, Method: "cash"}, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentsPostToJournal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bill := standaloneBill(t, f)

	_, err := f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 400, Method: "bank_transfer"}, 3)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 240.4, Method: "cash"}, 3)
	require.NoError(t, err)

	// Every disbursement reaches the ledger under its own payment id.
	require.Len(t, f.journal.calls, 2)
	require.Equal(t, journalCall{Bill: bill.Number, PaymentID: 1, Amount: 400}, f.journal.calls[0])
	require.Equal(t, journalCall{Bill: bill.Number, PaymentID: 2, Amount: 240.4}, f.journal.calls[1])

	// A posting failure is logged, not returned; the payment stands.
	other := standaloneBill(t, f)
	f.journal.fail = errors.New("ledger unavailable")
	paid, err := f.svc.RecordPayment(ctx, other.ID, PaymentRequest{Amount: 10, Method: "cash"}, 3)
	require.NoError(t, err)
	require.Equal(t, 10.0, paid.PaidAmount)
}

func TestCancelOnlyUnpaidOpenBill(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	bill := standaloneBill(t, f)
	cancelled, err := f.svc.Cancel(ctx, bill.ID, 3)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.RecordPayment(ctx, bill.ID, PaymentRequest{Amount: 10, Method: "cash"}, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	other := standaloneBill(t, f)
	_, err = f.svc.RecordPayment(ctx, other.ID, PaymentRequest{Amount: 10, Method: "cash"}, 3)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, other.ID, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
