package procurement

// ItemRequest is one line of a purchase order create or update.
type ItemRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Description     string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
}

// CreatePurchaseOrderRequest creates a draft purchase order.
type CreatePurchaseOrderRequest struct {
	VendorID   int64         `json:"vendor_id" validate:"required,gt=0"`
	ExpectedAt string        `json:"expected_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdatePurchaseOrderRequest edits a draft. Items, when present, replace the
// existing lines wholesale.
type UpdatePurchaseOrderRequest struct {
	ExpectedAt *string       `json:"expected_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// StatusRequest moves a purchase order through its lifecycle.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending_approval approved sent received closed cancelled"`
}
