package quotations

import (
	"context"
	"errors"
	"fmt"
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
	mu     sync.Mutex
	quotes map[int64]*Quotation
	byNum  map[string]int64
	nextID int64

	failInsertNumbers map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		quotes:            make(map[int64]*Quotation),
		byNum:             make(map[string]int64),
		nextID:            1,
		failInsertNumbers: make(map[string]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *q
	copied.Items = append([]Item(nil), q.Items...)
	return &copied, nil
}

func (r *memoryRepo) List(_ context.Context, page shared.CursorPage, filter ListFilter) ([]Quotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Quotation
	for id := r.nextID - 1; id >= 1; id-- {
		q, ok := r.quotes[id]
		if !ok {
			continue
		}
		if filter.Status != nil && q.Status != *filter.Status {
			continue
		}
		if filter.CustomerID > 0 && q.CustomerID != filter.CustomerID {
			continue
		}
		if page.AfterID > 0 && q.ID >= page.AfterID {
			continue
		}
		out = append(out, *q)
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ListExpirable(_ context.Context, asOf time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, q := range r.quotes {
		if q.Status == StatusSent && q.ValidUntil.Before(asOf) {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func (r *memoryRepo) Insert(_ context.Context, q *Quotation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInsertNumbers[q.Number] {
		return &pgconn.PgError{Code: "23505", ConstraintName: "quotations_number_key"}
	}
	if _, exists := r.byNum[q.Number]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "quotations_number_key"}
	}
	q.ID = r.nextID
	r.nextID++
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	for i := range q.Items {
		q.Items[i].ID = int64(i + 1)
		q.Items[i].QuotationID = q.ID
	}
	copied := *q
	copied.Items = append([]Item(nil), q.Items...)
	r.quotes[q.ID] = &copied
	r.byNum[q.Number] = q.ID
	return nil
}

func (r *memoryRepo) UpdateDraft(_ context.Context, q *Quotation, replaceItems bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.quotes[q.ID]
	if !ok || stored.Status != StatusDraft {
		return shared.ErrInvalidState
	}
	stored.ValidUntil = q.ValidUntil
	stored.Notes = q.Notes
	stored.Subtotal = q.Subtotal
	stored.DiscountAmount = q.DiscountAmount
	stored.TaxAmount = q.TaxAmount
	stored.TotalAmount = q.TotalAmount
	if replaceItems {
		stored.Items = append([]Item(nil), q.Items...)
	}
	return nil
}

func (r *memoryRepo) SetStatus(_ context.Context, id int64, from, to Status, convertedOrderID *int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.quotes[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	if convertedOrderID != nil {
		stored.ConvertedOrderID = convertedOrderID
	}
	return true, nil
}

type memorySequencer struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func (s *memorySequencer) Next(_ context.Context, prefix string, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seqs == nil {
		s.seqs = make(map[string]int64)
	}
	key := fmt.Sprintf("%s-%d", prefix, year)
	s.seqs[key]++
	return s.seqs[key], nil
}

type fakeProducts struct {
	mu     sync.Mutex
	briefs map[int64]ProductBrief
}

func (f *fakeProducts) Brief(_ context.Context, id int64) (*ProductBrief, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.briefs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &b, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	nextID  int64
	created []int64
	fail    error
}

func (f *fakeOrders) CreateFromQuotation(_ context.Context, q *Quotation, _ int64) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, "", f.fail
	}
	f.nextID++
	f.created = append(f.created, q.ID)
	return f.nextID, fmt.Sprintf("SO-2026-%03d", f.nextID), nil
}

type fakeReserver struct {
	mu       sync.Mutex
	reserved map[int64]float64
}

func (f *fakeReserver) Reserve(_ context.Context, productID int64, quantity float64, _, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserved == nil {
		f.reserved = make(map[int64]float64)
	}
	f.reserved[productID] += quantity
	return nil
}

type fixture struct {
	repo     *memoryRepo
	products *fakeProducts
	orders   *fakeOrders
	reserver *fakeReserver
	svc      *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	products := &fakeProducts{briefs: map[int64]ProductBrief{
		1: {ID: 1, SKU: "WID-1", Name: "Widget", IsGood: true, AvailableStock: 50},
		2: {ID: 2, SKU: "SRV-1", Name: "Install service", IsGood: false},
	}}
	orders := &fakeOrders{}
	reserver := &fakeReserver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, products, orders, reserver,
		shared.NewDocNumberAllocator(&memorySequencer{}), nil, logger)
	return &fixture{repo: repo, products: products, orders: orders, reserver: reserver, svc: svc}
}

func draftRequest() CreateQuotationRequest {
	return CreateQuotationRequest{
		CustomerID: 10,
		ValidUntil: time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		Items: []ItemRequest{
			{ProductID: 1, Quantity: 2, UnitPrice: 10, DiscountPercent: 10, TaxPercent: 5},
			{ProductID: 2, Quantity: 1, UnitPrice: 100},
		},
	}
}

func TestCreateComputesTotalsAndNumber(t *testing.T) {
	f := newFixture()

	q, err := f.svc.Create(context.Background(), draftRequest(), 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, q.Status)
	require.Equal(t, fmt.Sprintf("Q-%d-001", time.Now().Year()), q.Number)
	require.Equal(t, 120.0, q.Subtotal)
	require.Equal(t, 2.0, q.DiscountAmount)
	require.InDelta(t, 0.9, q.TaxAmount, 1e-9)
	require.InDelta(t, 118.9, q.TotalAmount, 1e-9)
	require.Len(t, q.Items, 2)
	require.Equal(t, "Widget", q.Items[0].Description)
}

func TestCreateRejectsPastValidity(t *testing.T) {
	f := newFixture()
	req := draftRequest()
	req.ValidUntil = "2020-01-01"

	_, err := f.svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsUnknownProduct(t *testing.T) {
	f := newFixture()
	req := draftRequest()
	req.Items[0].ProductID = 999

	_, err := f.svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	f := newFixture()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), draftRequest(), 7)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, f.repo.byNum, n)
}

func TestNumberCollisionFallsBackToTimestamp(t *testing.T) {
	f := newFixture()
	year := time.Now().Year()
	for seq := 1; seq <= 3; seq++ {
		f.repo.failInsertNumbers[shared.FormatDocNumber(NumberPrefix, year, int64(seq))] = true
	}

	q, err := f.svc.Create(context.Background(), draftRequest(), 7)
	require.NoError(t, err)
	require.Contains(t, q.Number, fmt.Sprintf("Q-%d-T", year))
}

func TestUpdateOnlyDraft(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)

	notes := "updated terms"
	updated, err := f.svc.Update(ctx, q.ID, UpdateQuotationRequest{Notes: &notes}, 7)
	require.NoError(t, err)
	require.Equal(t, "updated terms", *updated.Notes)

	_, err = f.svc.Send(ctx, q.ID, 7)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, q.ID, UpdateQuotationRequest{Notes: &notes}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, q.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	sent, err := f.svc.Send(ctx, q.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)

	approved, err := f.svc.Approve(ctx, q.ID, 7)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	_, err = f.svc.Reject(ctx, q.ID, "too late", 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestExpireDue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, stale.ID, 7)
	require.NoError(t, err)
	f.repo.quotes[stale.ID].ValidUntil = time.Now().AddDate(0, 0, -1)

	fresh, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, fresh.ID, 7)
	require.NoError(t, err)

	count, err := f.svc.ExpireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, got.Status)
}

func approvedQuotation(t *testing.T, f *fixture) *Quotation {
	t.Helper()
	ctx := context.Background()
	q, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, q.ID, 7)
	require.NoError(t, err)
	approved, err := f.svc.Approve(ctx, q.ID, 7)
	require.NoError(t, err)
	return approved
}

func TestConvertCreatesOrderAndReserves(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := approvedQuotation(t, f)

	result, err := f.svc.Convert(ctx, q.ID, 7)
	require.NoError(t, err)
	require.Equal(t, q.ID, result.QuotationID)
	require.NotZero(t, result.OrderID)
	require.Contains(t, result.OrderNumber, "SO-")

	converted, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConverted, converted.Status)
	require.NotNil(t, converted.ConvertedOrderID)
	require.Equal(t, result.OrderID, *converted.ConvertedOrderID)

	// Only the physical good is reserved; the service line is not.
	require.Equal(t, 2.0, f.reserver.reserved[1])
	require.NotContains(t, f.reserver.reserved, int64(2))
}

func TestConvertFromDraftAndSent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	draft, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	result, err := f.svc.Convert(ctx, draft.ID, 7)
	require.NoError(t, err)
	require.NotZero(t, result.OrderID)

	sent, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, sent.ID, 7)
	require.NoError(t, err)
	result, err = f.svc.Convert(ctx, sent.ID, 7)
	require.NoError(t, err)
	require.NotZero(t, result.OrderID)

	require.Len(t, f.orders.created, 2)
	for _, id := range []int64{draft.ID, sent.ID} {
		got, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, StatusConverted, got.Status)
	}
}

func TestConvertRejectsTerminalStates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	rejected, err := f.svc.Create(ctx, draftRequest(), 7)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, rejected.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, rejected.ID, "budget cut", 7)
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, rejected.ID, 7)
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Empty(t, f.orders.created)
}

func TestConvertTwiceFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := approvedQuotation(t, f)

	_, err := f.svc.Convert(ctx, q.ID, 7)
	require.NoError(t, err)

	_, err = f.svc.Convert(ctx, q.ID, 7)
	require.ErrorIs(t, err, shared.ErrAlreadyConverted)
	require.Len(t, f.orders.created, 1)
}

func TestConvertInsufficientStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := approvedQuotation(t, f)
	f.products.briefs[1] = ProductBrief{ID: 1, SKU: "WID-1", Name: "Widget", IsGood: true, AvailableStock: 1}

	_, err := f.svc.Convert(ctx, q.ID, 7)
	var insufficient *shared.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, "WID-1", insufficient.SKU)
	require.Equal(t, 2.0, insufficient.Requested)
	require.Equal(t, 1.0, insufficient.Available)

	// Still approved, still convertible once stock returns.
	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Empty(t, f.orders.created)
}

func TestConvertRevertsWhenOrderCreationFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q := approvedQuotation(t, f)
	f.orders.fail = errors.New("order store unavailable")

	_, err := f.svc.Convert(ctx, q.ID, 7)
	require.Error(t, err)

	got, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Empty(t, f.reserver.reserved)
}
