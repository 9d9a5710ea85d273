package ap

// ItemRequest is one line of a standalone bill create.
type ItemRequest struct {
	ProductID       int64   `json:"product_id,omitempty" validate:"omitempty,gt=0"`
	Description     string  `json:"description" validate:"required,max=500"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost        float64 `json:"unit_cost" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
}

// CreateBillRequest records a vendor bill that did not come through a
// purchase order, utilities and rent being the usual case.
type CreateBillRequest struct {
	VendorID        int64         `json:"vendor_id" validate:"required,gt=0"`
	VendorReference string        `json:"vendor_reference,omitempty" validate:"omitempty,max=100"`
	DueDate         string        `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes           string        `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Items           []ItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateFromPORequest raises the bill for a received purchase order.
type CreateFromPORequest struct {
	PurchaseOrderID int64  `json:"purchase_order_id" validate:"required,gt=0"`
	VendorReference string `json:"vendor_reference,omitempty" validate:"omitempty,max=100"`
	DueDate         string `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// PaymentRequest records a disbursement against a bill.
type PaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required,oneof=cash bank_transfer cheque card"`
	Reference string  `json:"reference,omitempty" validate:"omitempty,max=100"`
}
