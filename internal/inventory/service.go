package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyGuard fences duplicate movement submissions by key.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service applies stock movements and keeps the product counter consistent
// with the movement log.
type Service struct {
	repo   Repository
	idem   IdempotencyGuard
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService builds the Service. audit may be nil.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// WithIdempotency enables duplicate fencing for movements carrying an
// idempotency key. Without it keys are ignored.
func (s *Service) WithIdempotency(guard IdempotencyGuard) {
	s.idem = guard
}

// signedDelta maps a request quantity onto the stock delta for its type.
func signedDelta(t MovementType, quantity float64) (float64, error) {
	switch t {
	case MovementIn, MovementPurchase:
		if quantity <= 0 {
			return 0, fmt.Errorf("%w: %s requires a positive quantity", ErrInvalidQuantity, t)
		}
		return quantity, nil
	case MovementOut, MovementSale:
		if quantity <= 0 {
			return 0, fmt.Errorf("%w: %s requires a positive quantity", ErrInvalidQuantity, t)
		}
		return -quantity, nil
	case MovementAdjustment:
		if quantity == 0 {
			return 0, fmt.Errorf("%w: adjustment requires a non-zero quantity", ErrInvalidQuantity)
		}
		return quantity, nil
	case MovementReservation:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %q", shared.ErrValidation, t)
	}
}

// Post records one movement and updates the product's current stock in the
// same transaction. A movement that would drive stock below zero is rejected.
// A repeated submission with the same idempotency key is rejected as a
// conflict; the key is released again when posting fails.
func (s *Service) Post(ctx context.Context, input MovementInput) (*Movement, error) {
	delta, err := signedDelta(input.Type, input.Quantity)
	if err != nil {
		return nil, err
	}

	if s.idem != nil && input.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "inventory"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("%w: movement already recorded for key %q", shared.ErrConflict, input.IdempotencyKey)
			}
			return nil, err
		}
	}

	movement := &Movement{
		ProductID: input.ProductID,
		Type:      input.Type,
		Quantity:  delta,
		RefType:   optional(input.RefType),
		RefID:     optional(input.RefID),
		Note:      optional(input.Note),
		CreatedBy: input.ActorID,
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		product, err := tx.LockProductStock(txCtx, input.ProductID)
		if err != nil {
			return err
		}
		next := product.CurrentStock + delta
		if next < 0 {
			return &shared.InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: -delta,
				Available: product.CurrentStock,
			}
		}
		if err := tx.InsertMovement(txCtx, movement); err != nil {
			return err
		}
		if delta != 0 {
			return tx.SetProductStock(txCtx, product.ID, next)
		}
		return nil
	})
	if err != nil {
		if s.idem != nil && input.IdempotencyKey != "" {
			if delErr := s.idem.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", input.IdempotencyKey), slog.Any("error", delErr))
			}
		}
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "stock.move", movement.ID, map[string]any{
		"product_id": movement.ProductID,
		"type":       string(movement.Type),
		"quantity":   movement.Quantity,
	})
	return movement, nil
}

// Reserve writes an informational zero-delta reservation row. The reserved
// quantity rides in the note so the log explains itself without affecting the
// stock counter.
func (s *Service) Reserve(ctx context.Context, productID int64, quantity float64, refType, refID string, actorID int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: reservation requires a positive quantity", ErrInvalidQuantity)
	}
	note := "reserved " + strconv.FormatFloat(quantity, 'f', -1, 64)
	_, err := s.Post(ctx, MovementInput{
		ProductID: productID,
		Type:      MovementReservation,
		RefType:   refType,
		RefID:     refID,
		Note:      note,
		ActorID:   actorID,
	})
	return err
}

// Transfer moves quantity between locations as a paired out/in that nets to
// zero on the product. The outbound leg may not exceed available stock.
func (s *Service) Transfer(ctx context.Context, input TransferInput) ([]Movement, error) {
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: transfer requires a positive quantity", ErrInvalidQuantity)
	}
	if input.FromLocation == input.ToLocation {
		return nil, fmt.Errorf("%w: transfer locations must differ", shared.ErrValidation)
	}

	outNote := fmt.Sprintf("transfer out: %s -> %s", input.FromLocation, input.ToLocation)
	inNote := fmt.Sprintf("transfer in: %s -> %s", input.FromLocation, input.ToLocation)
	if input.Note != "" {
		outNote += " (" + input.Note + ")"
		inNote += " (" + input.Note + ")"
	}

	out := &Movement{
		ProductID: input.ProductID,
		Type:      MovementTransfer,
		Quantity:  -input.Quantity,
		Note:      &outNote,
		CreatedBy: input.ActorID,
	}
	in := &Movement{
		ProductID: input.ProductID,
		Type:      MovementTransfer,
		Quantity:  input.Quantity,
		Note:      &inNote,
		CreatedBy: input.ActorID,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		product, err := tx.LockProductStock(txCtx, input.ProductID)
		if err != nil {
			return err
		}
		if product.CurrentStock < input.Quantity {
			return &shared.InsufficientStockError{
				ProductID: product.ID,
				SKU:       product.SKU,
				Requested: input.Quantity,
				Available: product.CurrentStock,
			}
		}
		if err := tx.InsertMovement(txCtx, out); err != nil {
			return err
		}
		return tx.InsertMovement(txCtx, in)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "stock.transfer", out.ID, map[string]any{
		"product_id": input.ProductID,
		"quantity":   input.Quantity,
		"from":       input.FromLocation,
		"to":         input.ToLocation,
	})
	return []Movement{*out, *in}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, productID int64, movType MovementType) ([]Movement, error) {
	if movType != "" && !movType.IsValid() {
		return nil, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, movType)
	}
	return s.repo.List(ctx, page, productID, movType)
}

// Reconcile recomputes every product's stock from the movement sum and
// reports drift against the stored counter. With repair set the counter is
// rewritten to the computed value.
func (s *Service) Reconcile(ctx context.Context, repair bool, actorID int64) ([]ReconcileResult, error) {
	var results []ReconcileResult
	err := s.repo.WithTx(ctx, func(txCtx context.Context, tx TxRepository) error {
		products, err := tx.ListStockedProducts(txCtx)
		if err != nil {
			return err
		}
		for _, p := range products {
			computed, err := tx.SumMovements(txCtx, p.ID)
			if err != nil {
				return err
			}
			drift := p.CurrentStock - computed
			if math.Abs(drift) < 1e-9 {
				continue
			}
			result := ReconcileResult{
				ProductID:     p.ID,
				SKU:           p.SKU,
				RecordedStock: p.CurrentStock,
				ComputedStock: computed,
				Drift:         drift,
			}
			if repair {
				if err := tx.SetProductStock(txCtx, p.ID, computed); err != nil {
					return err
				}
				result.Repaired = true
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		s.logger.Warn("stock drift detected",
			slog.Int64("product_id", r.ProductID),
			slog.String("sku", r.SKU),
			slog.Float64("recorded", r.RecordedStock),
			slog.Float64("computed", r.ComputedStock),
			slog.Bool("repaired", r.Repaired))
	}
	if len(results) > 0 {
		s.recordAudit(ctx, actorID, "stock.reconcile", int64(len(results)), map[string]any{
			"drifted":  len(results),
			"repaired": repair,
		})
	}
	return results, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
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
