package procurement

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	pos    map[int64]*PurchaseOrder
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{pos: make(map[int64]*PurchaseOrder), nextID: 1}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *po
	copied.Items = append([]Item(nil), po.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, page shared.CursorPage, filter ListFilter) ([]PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PurchaseOrder
	for id := r.nextID - 1; id >= 1; id-- {
		po, ok := r.pos[id]
		if !ok {
			continue
		}
		if filter.Status != nil && po.Status != *filter.Status {
			continue
		}
		if filter.VendorID > 0 && po.VendorID != filter.VendorID {
			continue
		}
		out = append(out, *po)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) Insert(_ context.Context, po *PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	po.ID = r.nextID
	r.nextID++
	po.CreatedAt = time.Now()
	po.UpdatedAt = po.CreatedAt
	copied := *po
	copied.Items = append([]Item(nil), po.Items...)
	r.pos[po.ID] = &copied
	return nil
}

func (r *memoryRepo) UpdateDraft(_ context.Context, po *PurchaseOrder, replaceItems bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.pos[po.ID]
	if !ok || stored.Status != StatusDraft {
		return shared.ErrInvalidState
	}
	stored.ExpectedAt = po.ExpectedAt
	stored.Notes = po.Notes
	stored.Subtotal = po.Subtotal
	stored.DiscountAmount = po.DiscountAmount
	stored.TaxAmount = po.TaxAmount
	stored.TotalAmount = po.TotalAmount
	if replaceItems {
		stored.Items = append([]Item(nil), po.Items...)
	}
	return nil
}

func (r *memoryRepo) Transition(_ context.Context, id int64, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok || po.Status != from {
		return false, nil
	}
	po.Status = to
	return true, nil
}

func (r *memoryRepo) MarkReceived(_ context.Context, id int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok || po.Status != StatusSent {
		return false, nil
	}
	po.Status = StatusReceived
	po.ReceivedAt = &at
	return true, nil
}

func (r *memoryRepo) SetBillID(_ context.Context, id int64, billID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	po, ok := r.pos[id]
	if !ok || po.BillID != nil {
		return false, nil
	}
	po.BillID = &billID
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

func (fakeProducts) Brief(_ context.Context, id int64) (*ProductBrief, error) {
	switch id {
	case 1:
		return &ProductBrief{ID: 1, SKU: "WID-1", Name: "Widget", IsGood: true}, nil
	case 2:
		return &ProductBrief{ID: 2, SKU: "SRV-1", Name: "Freight", IsGood: false}, nil
	default:
		return nil, shared.ErrNotFound
	}
}

type purchasePosting struct {
	ProductID int64
	Quantity  float64
}

type fakeStock struct {
	mu       sync.Mutex
	postings []purchasePosting
}

func (f *fakeStock) PostPurchase(_ context.Context, productID int64, quantity float64, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postings = append(f.postings, purchasePosting{ProductID: productID, Quantity: quantity})
	return nil
}

type fixture struct {
	repo  *memoryRepo
	stock *fakeStock
	svc   *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	stock := &fakeStock{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, fakeProducts{}, stock,
		shared.NewDocNumberAllocator(&memorySequencer{}), nil, logger)
	return &fixture{repo: repo, stock: stock, svc: svc}
}

func createRequest() CreatePurchaseOrderRequest {
	return CreatePurchaseOrderRequest{
		VendorID: 5,
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 10, UnitCost: 7.5, TaxPercent: 17},
			{ProductID: 2, Quantity: 1, UnitCost: 40},
		},
	}
}

func TestCreateComputesTotals(t *testing.T) {
	f := newFixture()

	po, err := f.svc.Create(context.Background(), createRequest(), 3)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, po.Status)
	require.Contains(t, po.Number, "PO-")
	require.Equal(t, 115.0, po.Subtotal)
	require.InDelta(t, 12.75, po.TaxAmount, 1e-9)
	require.InDelta(t, 127.75, po.TotalAmount, 1e-9)
	require.Equal(t, "Widget", po.Items[0].Description)
}

func TestUpdateOnlyDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po, err := f.svc.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	notes := "rush order"
	updated, err := f.svc.Update(ctx, po.ID, UpdatePurchaseOrderRequest{Notes: &notes}, 3)
	require.NoError(t, err)
	require.Equal(t, "rush order", *updated.Notes)

	_, err = f.svc.SetStatus(ctx, po.ID, StatusPendingApproval, 3)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, po.ID, UpdatePurchaseOrderRequest{Notes: &notes}, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func sentOrder(t *testing.T, f *fixture) *PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := f.svc.Create(ctx, createRequest(), 3)
	require.NoError(t, err)
	for _, next := range []Status{StatusPendingApproval, StatusApproved, StatusSent} {
		_, err = f.svc.SetStatus(ctx, po.ID, next, 3)
		require.NoError(t, err)
	}
	return po
}

func TestReceivePostsPurchaseMovementsOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := sentOrder(t, f)

	received, err := f.svc.SetStatus(ctx, po.ID, StatusReceived, 3)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)
	require.NotNil(t, received.ReceivedAt)

	// Only the physical good hits inventory; the freight line does not.
	require.Len(t, f.stock.postings, 1)
	require.Equal(t, int64(1), f.stock.postings[0].ProductID)
	require.Equal(t, 10.0, f.stock.postings[0].Quantity)

	_, err = f.svc.SetStatus(ctx, po.ID, StatusReceived, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.stock.postings, 1)
}

func TestCancelBlockedAfterReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := sentOrder(t, f)

	_, err := f.svc.SetStatus(ctx, po.ID, StatusReceived, 3)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, po.ID, StatusCancelled, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	closed, err := f.svc.SetStatus(ctx, po.ID, StatusClosed, 3)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
}

func TestApprovalCannotBeSkipped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po, err := f.svc.Create(ctx, createRequest(), 3)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, po.ID, StatusSent, 3)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestLinkBillOnlyOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	po := sentOrder(t, f)
	_, err := f.svc.SetStatus(ctx, po.ID, StatusReceived, 3)
	require.NoError(t, err)

	require.NoError(t, f.svc.LinkBill(ctx, po.ID, 200))
	err = f.svc.LinkBill(ctx, po.ID, 201)
	require.ErrorIs(t, err, shared.ErrConflict)
}
