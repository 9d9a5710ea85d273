package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/sales/quotations"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the sales order sequence in document_sequences.
const NumberPrefix = "SO"

const numberRetries = 2

// Service coordinates the sales order lifecycle: creation from quotations or
// by hand, the delivery state machine, and its stock and invoicing side
// effects.
type Service struct {
	repo     Repository
	products ProductGateway
	stock    StockPoster
	invoices InvoiceCreator
	numbers  *shared.DocNumberAllocator
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the Service. audit may be nil. invoices may be nil, in
// which case delivery skips automatic invoicing.
func NewService(repo Repository, products ProductGateway, stock StockPoster, invoices InvoiceCreator,
	numbers *shared.DocNumberAllocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		stock:    stock,
		invoices: invoices,
		numbers:  numbers,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// SetInvoiceCreator breaks the construction cycle between orders and
// invoicing: the invoice service is wired in after both exist.
func (s *Service) SetInvoiceCreator(invoices InvoiceCreator) {
	s.invoices = invoices
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Order, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, page, filter)
}

// CreateFromQuotation snapshots an approved quotation's lines into a new
// pending order. Amounts are carried over untouched so the order bills
// exactly what was quoted.
func (s *Service) CreateFromQuotation(ctx context.Context, q *quotations.Quotation, actorID int64) (int64, string, error) {
	items := make([]Item, 0, len(q.Items))
	for _, src := range q.Items {
		brief, err := s.products.Brief(ctx, src.ProductID)
		if err != nil {
			return 0, "", fmt.Errorf("product %d: %w", src.ProductID, err)
		}
		items = append(items, Item{
			ProductID:       src.ProductID,
			Description:     src.Description,
			IsGood:          brief.IsGood,
			Quantity:        src.Quantity,
			UnitPrice:       src.UnitPrice,
			DiscountPercent: src.DiscountPercent,
			TaxPercent:      src.TaxPercent,
			LineTotal:       src.LineTotal,
			DiscountAmount:  src.DiscountAmount,
			TaxAmount:       src.TaxAmount,
		})
	}

	o := &Order{
		CustomerID:     q.CustomerID,
		QuotationID:    &q.ID,
		Status:         StatusPending,
		OrderDate:      s.now().Truncate(24 * time.Hour),
		Subtotal:       q.Subtotal,
		DiscountAmount: q.DiscountAmount,
		TaxAmount:      q.TaxAmount,
		TotalAmount:    q.TotalAmount,
		Notes:          q.Notes,
		CreatedBy:      actorID,
		Items:          items,
	}
	if err := s.insertNumbered(ctx, o); err != nil {
		return 0, "", err
	}
	s.recordAudit(ctx, actorID, "order.create", o.ID, map[string]any{
		"number":    o.Number,
		"quotation": q.Number,
	})
	return o.ID, o.Number, nil
}

// Create stores a manually entered order.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest, actorID int64) (*Order, error) {
	items := make([]Item, 0, len(req.Items))
	inputs := make([]sales.LineInput, 0, len(req.Items))
	for _, src := range req.Items {
		brief, err := s.products.Brief(ctx, src.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", src.ProductID, err)
		}
		description := src.Description
		if description == "" {
			description = brief.Name
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
			IsGood:          brief.IsGood,
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

	o := &Order{
		CustomerID:     req.CustomerID,
		Status:         StatusPending,
		OrderDate:      s.now().Truncate(24 * time.Hour),
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		Notes:          optional(req.Notes),
		CreatedBy:      actorID,
		Items:          items,
	}
	if err := s.insertNumbered(ctx, o); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "order.create", o.ID, map[string]any{"number": o.Number})
	return o, nil
}

func (s *Service) insertNumbered(ctx context.Context, o *Order) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		o.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.Insert(txCtx, o)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("order number collision", slog.String("number", number))
	}

	o.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.Insert(txCtx, o)
	})
}

// SetStatus drives the delivery state machine. Shipping decrements stock for
// every physical line exactly once; delivery raises the customer invoice.
// Repeating a call whose target the order has already reached is absorbed
// with a note, so no second call can double-ship or double-invoice.
func (s *Service) SetStatus(ctx context.Context, id int64, next Status, actorID int64) (*StatusChange, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, next)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note, ok := s.alreadySatisfied(ctx, current, next); ok {
		return &StatusChange{Order: current, Note: note}, nil
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: cannot move %s order to %s", shared.ErrInvalidState, current.Status, next)
	}

	switch next {
	case StatusShipped:
		return s.ship(ctx, current, actorID)
	case StatusDelivered:
		return s.deliver(ctx, current, actorID)
	default:
		return s.transition(ctx, current, next, actorID)
	}
}

// alreadySatisfied reports whether the order has already reached next, in
// which case the repeated call carries a note instead of an error. Delivery
// runs past delivered into invoiced, so an invoiced order still counts as
// shipped and delivered.
func (s *Service) alreadySatisfied(ctx context.Context, o *Order, next Status) (string, bool) {
	switch next {
	case StatusShipped:
		switch o.Status {
		case StatusShipped, StatusDelivered, StatusInvoiced:
			return fmt.Sprintf("order %s already shipped; stock unchanged", o.Number), true
		}
	case StatusDelivered:
		switch o.Status {
		case StatusDelivered:
			return fmt.Sprintf("order %s already delivered", o.Number), true
		case StatusInvoiced:
			note := fmt.Sprintf("order %s already delivered", o.Number)
			if o.InvoiceID != nil && s.invoices != nil {
				if number, err := s.invoices.InvoiceNumber(ctx, *o.InvoiceID); err == nil {
					note = fmt.Sprintf("order %s already delivered and invoiced as %s", o.Number, number)
				}
			}
			return note, true
		}
	default:
		if o.Status == next {
			return fmt.Sprintf("order %s already %s", o.Number, next), true
		}
	}
	return "", false
}

func (s *Service) transition(ctx context.Context, o *Order, next Status, actorID int64) (*StatusChange, error) {
	var moved bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.Transition(txCtx, o.ID, o.Status, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: order %s changed concurrently", shared.ErrInvalidState, o.Number)
	}
	s.recordAudit(ctx, actorID, "order."+string(next), o.ID, nil)
	return s.reload(ctx, o.ID)
}

// ship claims processing->shipped and then posts the sale movement for each
// physical line. The claim makes the decrement idempotent; a failing line is
// logged and skipped rather than blocking the shipment.
func (s *Service) ship(ctx context.Context, o *Order, actorID int64) (*StatusChange, error) {
	shippedAt := s.now()
	var claimed bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		claimed, err = tx.MarkShipped(txCtx, o.ID, shippedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: order %s is not awaiting shipment", shared.ErrInvalidState, o.Number)
	}

	for _, it := range o.Items {
		if !it.IsGood {
			continue
		}
		if err := s.stock.PostSale(ctx, it.ProductID, it.Quantity, o.Number, actorID); err != nil {
			s.logger.Warn("stock decrement failed on shipment",
				slog.String("order", o.Number),
				slog.Int64("product_id", it.ProductID),
				slog.Float64("quantity", it.Quantity),
				slog.Any("error", err))
		}
	}

	s.recordAudit(ctx, actorID, "order.shipped", o.ID, nil)
	return s.reload(ctx, o.ID)
}

// deliver claims shipped->delivered and raises the invoice. Invoicing failure
// leaves the order delivered and is surfaced in the logs only; a later
// delivery retry is blocked by the claim, so no duplicate invoice can appear.
func (s *Service) deliver(ctx context.Context, o *Order, actorID int64) (*StatusChange, error) {
	deliveredAt := s.now()
	var claimed bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		claimed, err = tx.MarkDelivered(txCtx, o.ID, deliveredAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: order %s is not awaiting delivery", shared.ErrInvalidState, o.Number)
	}
	s.recordAudit(ctx, actorID, "order.delivered", o.ID, nil)

	if s.invoices != nil {
		delivered, err := s.repo.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		invoiceID, invoiceNumber, err := s.invoices.CreateFromOrder(ctx, delivered, actorID)
		if err != nil {
			s.logger.Warn("automatic invoicing failed",
				slog.String("order", o.Number), slog.Any("error", err))
		} else {
			err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
				_, err := tx.MarkInvoiced(txCtx, o.ID, invoiceID)
				return err
			})
			if err != nil {
				s.logger.Error("link invoice to order",
					slog.String("order", o.Number), slog.Any("error", err))
			}
			s.recordAudit(ctx, actorID, "order.invoiced", o.ID, map[string]any{
				"invoice_id":     invoiceID,
				"invoice_number": invoiceNumber,
			})
		}
	}
	return s.reload(ctx, o.ID)
}

func (s *Service) reload(ctx context.Context, id int64) (*StatusChange, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusChange{Order: o}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
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
