package products

import "time"

// Type distinguishes stocked goods from services.
type Type string

const (
	TypeGood    Type = "good"
	TypeService Type = "service"
)

// IsValid reports whether the type is known.
func (t Type) IsValid() bool {
	return t == TypeGood || t == TypeService
}

// Product is a catalog entry. CurrentStock is an eagerly-updated projection of
// the stock movement log; the movement log remains the source of truth and the
// inventory reconciliation recomputes this column from it.
type Product struct {
	ID            int64     `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Type          Type      `json:"type"`
	UOM           string    `json:"uom"`
	CurrentStock  float64   `json:"current_stock"`
	ReorderPoint  float64   `json:"reorder_point"`
	PurchasePrice float64   `json:"purchase_price"`
	SalePrice     float64   `json:"sale_price"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
