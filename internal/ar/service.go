package ar

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/sales/orders"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the invoice sequence in document_sequences.
const NumberPrefix = "INV"

const numberRetries = 2

// defaultTermsDays is the payment window applied when no due date is given.
const defaultTermsDays = 30

// paymentEpsilon absorbs float rounding when deciding whether an invoice is
// settled.
const paymentEpsilon = 0.01

// TaxGateway submits issued invoices to the revenue authority.
type TaxGateway interface {
	SubmitInvoice(ctx context.Context, inv *Invoice) error
}

// ProductGateway looks up catalog names for manual invoice lines.
type ProductGateway interface {
	Name(ctx context.Context, productID int64) (string, error)
}

// JournalPoster records the receivable journal entry when an invoice is
// issued.
type JournalPoster interface {
	InvoiceIssued(ctx context.Context, inv *Invoice, actorID int64) error
}

// Service coordinates customer invoicing.
type Service struct {
	repo     Repository
	products ProductGateway
	tax      TaxGateway
	journal  JournalPoster
	numbers  *shared.DocNumberAllocator
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the Service. audit and tax may be nil.
func NewService(repo Repository, products ProductGateway, tax TaxGateway,
	numbers *shared.DocNumberAllocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		tax:      tax,
		numbers:  numbers,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
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

func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Invoice, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, page, filter)
}

// InvoiceNumber resolves an invoice id to its document number, for callers
// that only hold the id from an earlier linkage.
func (s *Service) InvoiceNumber(ctx context.Context, id int64) (string, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return inv.Number, nil
}

func (s *Service) Payments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, invoiceID)
}

// CreateFromOrder raises the invoice for a delivered sales order. It is
// issued immediately as sent, due defaultTermsDays after delivery.
func (s *Service) CreateFromOrder(ctx context.Context, o *orders.Order, actorID int64) (int64, string, error) {
	issueDate := s.now().Truncate(24 * time.Hour)
	items := make([]Item, 0, len(o.Items))
	for _, src := range o.Items {
		items = append(items, Item{
			ProductID:       src.ProductID,
			Description:     src.Description,
			Quantity:        src.Quantity,
			UnitPrice:       src.UnitPrice,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
			LineTotal:       src.LineTotal,
			DiscountAmount:  src.DiscountAmount,
			TaxAmount:       src.TaxAmount,
		})
	}

	inv := &Invoice{
		CustomerID:     o.CustomerID,
		OrderID:        &o.ID,
		Status:         StatusSent,
		FBRStatus:      FBRPending,
		IssueDate:      issueDate,
		DueDate:        issueDate.AddDate(0, 0, defaultTermsDays),
		Subtotal:       o.Subtotal,
		DiscountAmount: o.DiscountAmount,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
		CreatedBy:      actorID,
		Items:          items,
	}
	if err := s.insertNumbered(ctx, inv); err != nil {
		return 0, "", err
	}
	s.recordAudit(ctx, actorID, "invoice.create", inv.ID, map[string]any{
		"number": inv.Number,
		"order":  o.Number,
	})
	s.postIssued(ctx, inv, actorID)
	return inv.ID, inv.Number, nil
}

// Create stores a manually entered draft invoice.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest, actorID int64) (*Invoice, error) {
	issueDate := s.now().Truncate(24 * time.Hour)
	dueDate := issueDate.AddDate(0, 0, defaultTermsDays)
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, req.DueDate)
		}
		if parsed.Before(issueDate) {
			return nil, fmt.Errorf("%w: due_date precedes issue date", shared.ErrValidation)
		}
		dueDate = parsed
	}

	items := make([]Item, 0, len(req.Items))
	inputs := make([]sales.LineInput, 0, len(req.Items))
	for _, src := range req.Items {
		description := src.Description
		if description == "" {
			name, err := s.products.Name(ctx, src.ProductID)
			if err != nil {
				return nil, fmt.Errorf("product %d: %w", src.ProductID, err)
			}
			description = name
		}
		in := sales.LineInput{
			Quantity:        src.Quantity,
			UnitPrice:       src.UnitPrice,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
		}
		amounts := sales.ComputeLine(in)
		items = append(items, Item{
			ProductID:       src.ProductID,
			Description:     description,
			Quantity:        src.Quantity,
			UnitPrice:       src.UnitPrice,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
			LineTotal:       amounts.LineTotal,
			DiscountAmount:  amounts.DiscountAmount,
			TaxAmount:       amounts.TaxAmount,
		})
		inputs = append(inputs, in)
	}
	totals := sales.ComputeTotals(inputs)

	inv := &Invoice{
		CustomerID:     req.CustomerID,
		Status:         StatusDraft,
		FBRStatus:      FBRPending,
		IssueDate:      issueDate,
		DueDate:        dueDate,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		Notes:          optional(req.Notes),
		CreatedBy:      actorID,
		Items:          items,
	}
	if err := s.insertNumbered(ctx, inv); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.create", inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

func (s *Service) insertNumbered(ctx context.Context, inv *Invoice) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		inv.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.Insert(txCtx, inv)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("invoice number collision", slog.String("number", number))
	}

	inv.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.Insert(txCtx, inv)
	})
}

// Send issues a draft invoice.
func (s *Service) Send(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	inv, err := s.transition(ctx, id, StatusDraft, StatusSent, actorID)
	if err != nil {
		return nil, err
	}
	s.postIssued(ctx, inv, actorID)
	return inv, nil
}

// postIssued hands the issued invoice to the ledger. A posting failure is
// logged and never blocks issuance; a redundant post is absorbed downstream
// by the source uniqueness guard.
func (s *Service) postIssued(ctx context.Context, inv *Invoice, actorID int64) {
	if s.journal == nil {
		return
	}
	if err := s.journal.InvoiceIssued(ctx, inv, actorID); err != nil {
		s.logger.Warn("journal posting failed",
			slog.String("invoice", inv.Number), slog.Any("error", err))
	}
}

// Cancel voids an invoice that has not collected any money.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PaidAmount > 0 {
		return nil, fmt.Errorf("%w: invoice has recorded payments", shared.ErrInvalidState)
	}
	if inv.Status != StatusDraft && inv.Status != StatusSent && inv.Status != StatusOverdue {
		return nil, fmt.Errorf("%w: cannot cancel a %s invoice", shared.ErrInvalidState, inv.Status)
	}
	return s.transition(ctx, id, inv.Status, StatusCancelled, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, from, to Status, actorID int64) (*Invoice, error) {
	var moved bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.Transition(txCtx, id, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: cannot move %s invoice to %s", shared.ErrInvalidState, current.Status, to)
	}
	s.recordAudit(ctx, actorID, "invoice."+string(to), id, nil)
	return s.repo.Get(ctx, id)
}

// RecordPayment applies a receipt. Payments accumulate; once the running
// total covers the invoice the status flips to paid. Overpayment is accepted
// and logged so sloppy remittances do not block collection.
func (s *Service) RecordPayment(ctx context.Context, id int64, req PaymentRequest, actorID int64) (*Invoice, error) {
	paidAt := s.now()
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		inv, err := tx.Lock(txCtx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusDraft || inv.Status == StatusCancelled || inv.Status == StatusPaid {
			return fmt.Errorf("%w: cannot pay a %s invoice", shared.ErrInvalidState, inv.Status)
		}

		payment := &Payment{
			InvoiceID: id,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: optional(req.Reference),
			PaidAt:    paidAt,
			CreatedBy: actorID,
		}
		if err := tx.InsertPayment(txCtx, payment); err != nil {
			return err
		}

		newPaid := inv.PaidAmount + req.Amount
		status := inv.Status
		var settledAt *time.Time
		if newPaid >= inv.TotalAmount-paymentEpsilon {
			status = StatusPaid
			settledAt = &paidAt
		}
		if newPaid > inv.TotalAmount+paymentEpsilon {
			s.logger.Warn("invoice overpaid",
				slog.String("invoice", inv.Number),
				slog.Float64("total", inv.TotalAmount),
				slog.Float64("paid", newPaid))
		}
		return tx.ApplyPayment(txCtx, id, newPaid, status, settledAt)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.payment", id, map[string]any{
		"amount": req.Amount,
		"method": req.Method,
	})
	return s.repo.Get(ctx, id)
}

// MarkOverdueDue flips every sent invoice past its due date to overdue.
// Returns the count of invoices moved.
func (s *Service) MarkOverdueDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOverdueCandidates(ctx, s.now())
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			ok, err := tx.Transition(txCtx, id, StatusSent, StatusOverdue)
			if err == nil && ok {
				moved++
			}
			return err
		})
		if err != nil {
			s.logger.Error("mark invoice overdue", slog.Int64("invoice_id", id), slog.Any("error", err))
		}
	}
	return moved, nil
}

// SyncFBR submits the invoice to the revenue authority and records the
// outcome on the fbr_status column.
func (s *Service) SyncFBR(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusDraft || inv.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: only issued invoices can be submitted", shared.ErrInvalidState)
	}
	if inv.FBRStatus == FBRSynced {
		return inv, nil
	}

	status := FBRSynced
	var submitErr error
	if s.tax != nil {
		if submitErr = s.tax.SubmitInvoice(ctx, inv); submitErr != nil {
			status = FBRFailed
			s.logger.Error("tax submission failed",
				slog.String("invoice", inv.Number), slog.Any("error", submitErr))
		}
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		_, err := tx.SetFBRStatus(txCtx, id, status)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "invoice.fbr_sync", id, map[string]any{"fbr_status": string(status)})
	if submitErr != nil {
		return nil, fmt.Errorf("submit invoice %s: %w", inv.Number, submitErr)
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
		Entity:   "invoice",
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
