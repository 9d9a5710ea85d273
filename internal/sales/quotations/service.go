package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the quotation sequence in document_sequences.
const NumberPrefix = "Q"

// numberRetries is how many fresh sequence values are tried before the
// timestamp fallback.
const numberRetries = 2

// Service coordinates the quotation lifecycle.
type Service struct {
	repo     Repository
	products ProductGateway
	orders   OrderCreator
	reserver Reserver
	numbers  *shared.DocNumberAllocator
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, products ProductGateway, orders OrderCreator, reserver Reserver,
	numbers *shared.DocNumberAllocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		orders:   orders,
		reserver: reserver,
		numbers:  numbers,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]Quotation, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, page, filter)
}

// buildItems snapshots catalog data into lines and computes their amounts.
func (s *Service) buildItems(ctx context.Context, reqs []ItemRequest) ([]Item, sales.DocumentTotals, error) {
	items := make([]Item, 0, len(reqs))
	inputs := make([]sales.LineInput, 0, len(reqs))
	for _, req := range reqs {
		brief, err := s.products.Brief(ctx, req.ProductID)
		if err != nil {
			return nil, sales.DocumentTotals{}, fmt.Errorf("product %d: %w", req.ProductID, err)
		}
		description := req.Description
		if description == "" {
			description = brief.Name
		}
		in := sales.LineInput{
			Quantity:        req.Quantity,
			UnitPrice:       req.UnitPrice,
			DiscountPercent: req.DiscountPercent,
			TaxPercent:      req.TaxPercent,
		}
		amounts := sales.ComputeLine(in)
		items = append(items, Item{
			ProductID:       req.ProductID,
			Description:     description,
			Quantity:        req.Quantity,
			UnitPrice:       req.UnitPrice,
			DiscountPercent: req.DiscountPercent,
			TaxPercent:      req.TaxPercent,
			LineTotal:       amounts.LineTotal,
			DiscountAmount:  amounts.DiscountAmount,
			TaxAmount:       amounts.TaxAmount,
		})
		inputs = append(inputs, in)
	}
	return items, sales.ComputeTotals(inputs), nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, value)
	}
	return t, nil
}

// Create stores a draft quotation under a freshly allocated number. On a
// number collision two more sequence values are tried, then a
// timestamp-derived fallback.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest, actorID int64) (*Quotation, error) {
	validUntil, err := parseDate(req.ValidUntil)
	if err != nil {
		return nil, err
	}
	issueDate := s.now().Truncate(24 * time.Hour)
	if validUntil.Before(issueDate) {
		return nil, fmt.Errorf("%w: valid_until precedes issue date", shared.ErrValidation)
	}

	items, totals, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	q := &Quotation{
		CustomerID:     req.CustomerID,
		Status:         StatusDraft,
		IssueDate:      issueDate,
		ValidUntil:     validUntil,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		Notes:          optional(req.Notes),
		CreatedBy:      actorID,
		Items:          items,
	}

	if err := s.insertNumbered(ctx, q); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "quotation.create", q.ID, map[string]any{"number": q.Number})
	return q, nil
}

func (s *Service) insertNumbered(ctx context.Context, q *Quotation) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		q.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.Insert(txCtx, q)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("quotation number collision", slog.String("number", number))
	}

	q.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.Insert(txCtx, q)
	})
}

// Update edits a draft. Any other status is rejected.
func (s *Service) Update(ctx context.Context, id int64, req UpdateQuotationRequest, actorID int64) (*Quotation, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft quotations can be edited", shared.ErrInvalidState)
	}

	if req.ValidUntil != nil {
		validUntil, err := parseDate(*req.ValidUntil)
		if err != nil {
			return nil, err
		}
		existing.ValidUntil = validUntil
	}
	if req.Notes != nil {
		existing.Notes = optional(*req.Notes)
	}

	replaceItems := len(req.Items) > 0
	if replaceItems {
		items, totals, err := s.buildItems(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		existing.Items = items
		existing.Subtotal = totals.Subtotal
		existing.DiscountAmount = totals.DiscountAmount
		existing.TaxAmount = totals.TaxAmount
		existing.TotalAmount = totals.TotalAmount
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.UpdateDraft(txCtx, existing, replaceItems)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "quotation.update", id, nil)
	return s.repo.Get(ctx, id)
}

// transition claims the from->to move; a lost claim is classified against the
// current row state.
func (s *Service) transition(ctx context.Context, id int64, from, to Status, actorID int64, meta map[string]any) (*Quotation, error) {
	var moved bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.SetStatus(txCtx, id, from, to, nil)
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
		if current.Status == StatusConverted {
			return nil, shared.ErrAlreadyConverted
		}
		return nil, fmt.Errorf("%w: cannot move %s quotation to %s", shared.ErrInvalidState, current.Status, to)
	}
	s.recordAudit(ctx, actorID, "quotation."+string(to), id, meta)
	return s.repo.Get(ctx, id)
}

func (s *Service) Send(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	return s.transition(ctx, id, StatusDraft, StatusSent, actorID, nil)
}

func (s *Service) Approve(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	return s.transition(ctx, id, StatusSent, StatusApproved, actorID, nil)
}

func (s *Service) Reject(ctx context.Context, id int64, reason string, actorID int64) (*Quotation, error) {
	var meta map[string]any
	if reason != "" {
		meta = map[string]any{"reason": reason}
	}
	return s.transition(ctx, id, StatusSent, StatusRejected, actorID, meta)
}

func (s *Service) Expire(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	return s.transition(ctx, id, StatusSent, StatusExpired, actorID, nil)
}

// ExpireDue expires every sent quotation whose validity window has closed.
// Returns the count of quotations moved.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			moved, err := tx.SetStatus(txCtx, id, StatusSent, StatusExpired, nil)
			if err == nil && moved {
				expired++
			}
			return err
		})
		if err != nil {
			s.logger.Error("expire quotation", slog.Int64("quotation_id", id), slog.Any("error", err))
		}
	}
	return expired, nil
}

// Convert turns a live quotation into a sales order. Draft, sent and
// approved quotations all qualify; rejected and expired ones do not. Stock
// on goods is verified first; the quotation is then claimed before the order
// is created so a concurrent convert cannot produce two orders. Reservation
// rows are informational and never fail the conversion.
func (s *Service) Convert(ctx context.Context, id int64, actorID int64) (*ConvertResult, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == StatusConverted {
		return nil, shared.ErrAlreadyConverted
	}
	switch q.Status {
	case StatusDraft, StatusSent, StatusApproved:
	default:
		return nil, fmt.Errorf("%w: %s quotations cannot be converted", shared.ErrInvalidState, q.Status)
	}

	goods := make(map[int64]float64, len(q.Items))
	for _, it := range q.Items {
		brief, err := s.products.Brief(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", it.ProductID, err)
		}
		if !brief.IsGood {
			continue
		}
		goods[it.ProductID] += it.Quantity
		if goods[it.ProductID] > brief.AvailableStock {
			return nil, &shared.InsufficientStockError{
				ProductID: brief.ID,
				SKU:       brief.SKU,
				Requested: goods[it.ProductID],
				Available: brief.AvailableStock,
			}
		}
	}

	var claimed bool
	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		claimed, err = tx.SetStatus(txCtx, id, q.Status, StatusConverted, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, shared.ErrAlreadyConverted
	}

	orderID, orderNumber, err := s.orders.CreateFromQuotation(ctx, q, actorID)
	if err != nil {
		revertErr := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			_, err := tx.SetStatus(txCtx, id, StatusConverted, q.Status, nil)
			return err
		})
		if revertErr != nil {
			s.logger.Error("revert failed conversion",
				slog.Int64("quotation_id", id), slog.Any("error", revertErr))
		}
		return nil, fmt.Errorf("create order from quotation %s: %w", q.Number, err)
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		_, err := tx.SetStatus(txCtx, id, StatusConverted, StatusConverted, &orderID)
		return err
	})
	if err != nil {
		s.logger.Error("store converted order id",
			slog.Int64("quotation_id", id), slog.Int64("order_id", orderID), slog.Any("error", err))
	}

	for productID, quantity := range goods {
		if err := s.reserver.Reserve(ctx, productID, quantity, "sales_order", orderNumber, actorID); err != nil {
			s.logger.Warn("reservation record failed",
				slog.Int64("product_id", productID), slog.String("order", orderNumber), slog.Any("error", err))
		}
	}

	s.recordAudit(ctx, actorID, "quotation.convert", id, map[string]any{
		"order_id":     orderID,
		"order_number": orderNumber,
	})
	return &ConvertResult{QuotationID: id, OrderID: orderID, OrderNumber: orderNumber}, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quotation",
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
