package quotations

// ItemRequest is one line of a quotation create or update.
type ItemRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Description     string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
}

// CreateQuotationRequest creates a draft quotation.
type CreateQuotationRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	ValidUntil string        `json:"valid_until" validate:"required,datetime=2006-01-02"`
	Notes      string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateQuotationRequest edits a draft quotation. Items, when present,
// replace the existing lines wholesale.
type UpdateQuotationRequest struct {
	ValidUntil *string       `json:"valid_until,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      *string       `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// RejectRequest carries the optional rejection reason.
type RejectRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ConvertResult reports the sales order produced from a quotation.
type ConvertResult struct {
	QuotationID int64  `json:"quotation_id"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}
