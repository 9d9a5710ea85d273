package orders

// ItemRequest is one line of a manual order create.
type ItemRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Description     string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
}

// CreateOrderRequest creates a sales order directly, outside the quotation
// flow.
type CreateOrderRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	Notes      string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// StatusRequest moves an order through its lifecycle.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered cancelled"`
}
