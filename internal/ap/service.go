package ap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the vendor bill sequence in document_sequences.
const NumberPrefix = "BILL"

const numberRetries = 2

const defaultTermsDays = 30

const paymentEpsilon = 0.01

// PurchaseOrderGateway exposes the procurement operations billing needs.
// *procurement.Service satisfies it.
type PurchaseOrderGateway interface {
	Get(ctx context.Context, id int64) (*procurement.PurchaseOrder, error)
	LinkBill(ctx context.Context, id, billID int64) error
}

// JournalPoster records the payable journal entry when money goes out on a
// bill.
type JournalPoster interface {
	BillPaid(ctx context.Context, b *Bill, p *Payment, actorID int64) error
}

// Service coordinates vendor billing.
type Service struct {
	repo    Repository
	pos     PurchaseOrderGateway
	journal JournalPoster
	numbers *shared.DocNumberAllocator
	audit   *shared.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, pos PurchaseOrderGateway,
	numbers *shared.DocNumberAllocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		pos:     pos,
		numbers: numbers,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// SetJournalPoster wires the ledger in after both services exist. nil skips
// journal posting.
func (s *Service) SetJournalPoster(journal JournalPoster) {
	s.journal = journal
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Bill, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Bill, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, page, filter)
}

func (s *Service) Payments(ctx context.Context, billID int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, billID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, billID)
}

func (s *Service) dueDate(billDate time.Time, raw string) (time.Time, error) {
	if raw == "" {
		return billDate.AddDate(0, 0, defaultTermsDays), nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
	}
	if parsed.Before(billDate) {
		return time.Time{}, fmt.Errorf("%w: due_date precedes bill date", shared.ErrValidation)
	}
	return parsed, nil
}

// Create records a standalone vendor bill.
func (s *Service) Create(ctx context.Context, req CreateBillRequest, actorID int64) (*Bill, error) {
	billDate := s.now().Truncate(24 * time.Hour)
	dueDate, err := s.dueDate(billDate, req.DueDate)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(req.Items))
	inputs := make([]sales.LineInput, 0, len(req.Items))
	for _, src := range req.Items {
		in := sales.LineInput{
			Quantity:        src.Quantity,
			UnitPrice:       src.UnitCost,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
		}
		amounts := sales.ComputeLine(in)
		var productID *int64
		if src.ProductID > 0 {
			id := src.ProductID
			productID = &id
		}
		items = append(items, Item{
			ProductID:       productID,
			Description:     src.Description,
			Quantity:        src.Quantity,
			UnitCost:        src.UnitCost,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
			LineTotal:       amounts.LineTotal,
			DiscountAmount:  amounts.DiscountAmount,
			TaxAmount:       amounts.TaxAmount,
		})
		inputs = append(inputs, in)
	}
	totals := sales.ComputeTotals(inputs)

	b := &Bill{
		VendorID:        req.VendorID,
		VendorReference: optional(req.VendorReference),
		Status:          StatusOpen,
		BillDate:        billDate,
		DueDate:         dueDate,
		Subtotal:        totals.Subtotal,
		DiscountAmount:  totals.DiscountAmount,
		TaxAmount:       totals.TaxAmount,
		TotalAmount:     totals.TotalAmount,
		Notes:           optional(req.Notes),
		CreatedBy:       actorID,
		Items:           items,
	}
	if err := s.insertNumbered(ctx, b); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "bill.create", b.ID, map[string]any{"number": b.Number})
	return b, nil
}

// CreateFromPO raises the bill for a received purchase order, copying its
// lines and totals, and links it back so the order cannot be billed twice.
func (s *Service) CreateFromPO(ctx context.Context, req CreateFromPORequest, actorID int64) (*Bill, error) {
	po, err := s.pos.Get(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	if po.Status != procurement.StatusReceived && po.Status != procurement.StatusClosed {
		return nil, fmt.Errorf("%w: purchase order %s has not been received", shared.ErrInvalidState, po.Number)
	}
	if po.BillID != nil {
		return nil, fmt.Errorf("%w: purchase order already billed", shared.ErrConflict)
	}

	billDate := s.now().Truncate(24 * time.Hour)
	dueDate, err := s.dueDate(billDate, req.DueDate)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(po.Items))
	for _, src := range po.Items {
		productID := src.ProductID
		items = append(items, Item{
			ProductID:       &productID,
			Description:     src.Description,
			Quantity:        src.Quantity,
			UnitCost:        src.UnitCost,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
			LineTotal:       src.LineTotal,
			DiscountAmount:  src.DiscountAmount,
			TaxAmount:       src.TaxAmount,
		})
	}

	b := &Bill{
		VendorID:        po.VendorID,
		PurchaseOrderID: &po.ID,
		VendorReference: optional(req.VendorReference),
		Status:          StatusOpen,
		BillDate:        billDate,
		DueDate:         dueDate,
		Subtotal:        po.Subtotal,
		DiscountAmount:  po.DiscountAmount,
		TaxAmount:       po.TaxAmount,
		TotalAmount:     po.TotalAmount,
		CreatedBy:       actorID,
		Items:           items,
	}
	if err := s.insertNumbered(ctx, b); err != nil {
		return nil, err
	}

	if err := s.pos.LinkBill(ctx, po.ID, b.ID); err != nil {
		s.logger.Error("link bill to purchase order",
			slog.String("bill", b.Number), slog.String("purchase_order", po.Number), slog.Any("error", err))
	}
	s.recordAudit(ctx, actorID, "bill.create", b.ID, map[string]any{
		"number":         b.Number,
		"purchase_order": po.Number,
	})
	return b, nil
}

func (s *Service) insertNumbered(ctx context.Context, b *Bill) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		b.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.Insert(txCtx, b)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("bill number collision", slog.String("number", number))
	}

	b.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.Insert(txCtx, b)
	})
}

// Cancel voids a bill that has not paid anything out.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*Bill, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PaidAmount > 0 {
		return nil, fmt.Errorf("%w: bill has recorded payments", shared.ErrInvalidState)
	}
	if b.Status != StatusOpen {
		return nil, fmt.Errorf("%w: cannot cancel a %s bill", shared.ErrInvalidState, b.Status)
	}

	var moved bool
	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.Transition(txCtx, id, StatusOpen, StatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: bill changed concurrently", shared.ErrInvalidState)
	}
	s.recordAudit(ctx, actorID, "bill.cancelled", id, nil)
	return s.repo.Get(ctx, id)
}

// RecordPayment applies a disbursement. Payments accumulate across calls;
// once the running total covers the bill it flips to paid. Paying more than
// the total is accepted and logged rather than rejected, since vendors do
// apply credits out of band.
func (s *Service) RecordPayment(ctx context.Context, id int64, req PaymentRequest, actorID int64) (*Bill, error) {
	paidAt := s.now()
	payment := &Payment{
		BillID:    id,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: optional(req.Reference),
		PaidAt:    paidAt,
		CreatedBy: actorID,
	}
	var bill *Bill
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		b, err := tx.Lock(txCtx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled || b.Status == StatusPaid {
			return fmt.Errorf("%w: cannot pay a %s bill", shared.ErrInvalidState, b.Status)
		}
		bill = b

		if err := tx.InsertPayment(txCtx, payment); err != nil {
			return err
		}

		newPaid := b.PaidAmount + req.Amount
		status := StatusPartiallyPaid
		var settledAt *time.Time
		if newPaid >= b.TotalAmount-paymentEpsilon {
			status = StatusPaid
			settledAt = &paidAt
		}
		if newPaid > b.TotalAmount+paymentEpsilon {
			s.logger.Warn("vendor bill overpaid",
				slog.String("bill", b.Number),
				slog.Float64("total", b.TotalAmount),
				slog.Float64("paid", newPaid))
		}
		return tx.ApplyPayment(txCtx, id, newPaid, status, settledAt)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "bill.payment", id, map[string]any{
		"amount": req.Amount,
		"method": req.Method,
	})
	if s.journal != nil {
		if err := s.journal.BillPaid(ctx, bill, payment, actorID); err != nil {
			s.logger.Warn("journal posting failed",
				slog.String("bill", bill.Number), slog.Any("error", err))
		}
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "vendor_bill",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
