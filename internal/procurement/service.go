package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// NumberPrefix keys the purchase order sequence in document_sequences.
const NumberPrefix = "PO"

const numberRetries = 2

// Service coordinates the purchase order lifecycle.
type Service struct {
	repo     Repository
	products ProductGateway
	stock    StockPoster
	numbers  *shared.DocNumberAllocator
	audit    *shared.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, products ProductGateway, stock StockPoster,
	numbers *shared.DocNumberAllocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		stock:    stock,
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

func (s *Service) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, filter ListFilter) ([]PurchaseOrder, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	return s.repo.List(ctx, page, filter)
}

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
			UnitPrice:       req.UnitCost,
			DiscountPercent: req.DiscountPercent,
			TaxPercent:      req.TaxPercent,
		}
		amounts := sales.ComputeLine(in)
		items = append(items, Item{
			ProductID:       req.ProductID,
			Description:     description,
			IsGood:          brief.IsGood,
			Quantity:        req.Quantity,
			UnitCost:        req.UnitCost,
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

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, value)
	}
	return &t, nil
}

// Create stores a draft purchase order under a fresh PO number.
func (s *Service) Create(ctx context.Context, req CreatePurchaseOrderRequest, actorID int64) (*PurchaseOrder, error) {
	expectedAt, err := parseDate(req.ExpectedAt)
	if err != nil {
		return nil, err
	}
	items, totals, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	po := &PurchaseOrder{
		VendorID:       req.VendorID,
		Status:         StatusDraft,
		OrderDate:      s.now().Truncate(24 * time.Hour),
		ExpectedAt:     expectedAt,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		Notes:          optional(req.Notes),
		CreatedBy:      actorID,
		Items:          items,
	}
	if err := s.insertNumbered(ctx, po); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "po.create", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

func (s *Service) insertNumbered(ctx context.Context, po *PurchaseOrder) error {
	for attempt := 0; attempt <= numberRetries; attempt++ {
		number, err := s.numbers.Allocate(ctx, NumberPrefix)
		if err != nil {
			return err
		}
		po.Number = number
		err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
			return tx.Insert(txCtx, po)
		})
		if err == nil {
			return nil
		}
		if !shared.IsUniqueViolation(err) {
			return err
		}
		s.logger.Warn("purchase order number collision", slog.String("number", number))
	}

	po.Number = s.numbers.Fallback(NumberPrefix)
	return s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		return tx.Insert(txCtx, po)
	})
}

// Update edits a draft. Any other status is rejected.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePurchaseOrderRequest, actorID int64) (*PurchaseOrder, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft purchase orders can be edited", shared.ErrInvalidState)
	}

	if req.ExpectedAt != nil {
		expectedAt, err := parseDate(*req.ExpectedAt)
		if err != nil {
			return nil, err
		}
		existing.ExpectedAt = expectedAt
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
	s.recordAudit(ctx, actorID, "po.update", id, nil)
	return s.repo.Get(ctx, id)
}

// SetStatus drives the lifecycle. Receiving posts an inbound movement per
// physical line exactly once, guarded by the sent->received claim.
func (s *Service) SetStatus(ctx context.Context, id int64, next Status, actorID int64) (*PurchaseOrder, error) {
	if !next.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, next)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: cannot move %s purchase order to %s", shared.ErrInvalidState, current.Status, next)
	}

	if next == StatusReceived {
		return s.receive(ctx, current, actorID)
	}

	var moved bool
	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		moved, err = tx.Transition(txCtx, id, current.Status, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: purchase order %s changed concurrently", shared.ErrInvalidState, current.Number)
	}
	s.recordAudit(ctx, actorID, "po."+string(next), id, nil)
	return s.repo.Get(ctx, id)
}

func (s *Service) receive(ctx context.Context, po *PurchaseOrder, actorID int64) (*PurchaseOrder, error) {
	receivedAt := s.now()
	var claimed bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		claimed, err = tx.MarkReceived(txCtx, po.ID, receivedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: purchase order %s is not awaiting receipt", shared.ErrInvalidState, po.Number)
	}

	for _, it := range po.Items {
		if !it.IsGood {
			continue
		}
		if err := s.stock.PostPurchase(ctx, it.ProductID, it.Quantity, po.Number, actorID); err != nil {
			s.logger.Warn("stock increment failed on receipt",
				slog.String("purchase_order", po.Number),
				slog.Int64("product_id", it.ProductID),
				slog.Float64("quantity", it.Quantity),
				slog.Any("error", err))
		}
	}

	s.recordAudit(ctx, actorID, "po.received", po.ID, nil)
	return s.repo.Get(ctx, po.ID)
}

// LinkBill ties the vendor bill raised for this purchase order back to it.
// A purchase order can carry at most one bill.
func (s *Service) LinkBill(ctx context.Context, id, billID int64) error {
	var linked bool
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		var err error
		linked, err = tx.SetBillID(txCtx, id, billID)
		return err
	})
	if err != nil {
		return err
	}
	if !linked {
		return fmt.Errorf("%w: purchase order already billed", shared.ErrConflict)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
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
