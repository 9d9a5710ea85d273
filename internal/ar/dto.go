package ar

// ItemRequest is one line of a manual invoice create.
type ItemRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Description     string  `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
}

// CreateInvoiceRequest creates an invoice outside the order flow.
type CreateInvoiceRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	DueDate    string        `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items      []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// PaymentRequest records a receipt against an invoice.
type PaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required,oneof=cash bank_transfer cheque card"`
	Reference string  `json:"reference,omitempty" validate:"omitempty,max=100"`
}
