package inventory

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents a generic inbound movement.
	MovementIn MovementType = "in"
	// MovementOut represents a generic outbound movement.
	MovementOut MovementType = "out"
	// MovementAdjustment indicates a manual correction, signed either way.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransfer tags the paired rows of a location transfer.
	MovementTransfer MovementType = "transfer"
	// MovementPurchase records goods received against a purchase order.
	MovementPurchase MovementType = "purchase"
	// MovementSale records goods shipped against a sales order.
	MovementSale MovementType = "sale"
	// MovementReservation is an informational zero-delta row written at
	// quotation conversion. It never changes current_stock.
	MovementReservation MovementType = "reservation"
)

// IsValid reports whether the movement type is known.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer,
		MovementPurchase, MovementSale, MovementReservation:
		return true
	default:
		return false
	}
}

// Movement is one row of the append-only stock ledger. Quantity is the signed
// delta applied to the product's current_stock; reservation rows carry zero.
type Movement struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product_id"`
	Type      MovementType `json:"type"`
	Quantity  float64      `json:"quantity"`
	RefType   *string      `json:"ref_type,omitempty"`
	RefID     *string      `json:"ref_id,omitempty"`
	Note      *string      `json:"note,omitempty"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// MovementInput describes a movement to post. IdempotencyKey, when set,
// fences duplicate submissions of the same movement.
type MovementInput struct {
	ProductID      int64
	Type           MovementType
	Quantity       float64
	RefType        string
	RefID          string
	Note           string
	ActorID        int64
	IdempotencyKey string
}

// TransferInput describes a transfer between locations, posted as a paired
// negative and positive movement netting to zero on the product.
type TransferInput struct {
	ProductID    int64
	Quantity     float64
	FromLocation string
	ToLocation   string
	Note         string
	ActorID      int64
}

// ReconcileResult reports one product's drift between the stored counter and
// the movement sum.
type ReconcileResult struct {
	ProductID     int64   `json:"product_id"`
	SKU           string  `json:"sku"`
	RecordedStock float64 `json:"recorded_stock"`
	ComputedStock float64 `json:"computed_stock"`
	Drift         float64 `json:"drift"`
	Repaired      bool    `json:"repaired"`
}

// ErrInvalidQuantity indicates a zero or wrongly-signed quantity.
var ErrInvalidQuantity = fmt.Errorf("%w: invalid quantity", shared.ErrValidation)
