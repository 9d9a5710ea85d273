package ap

import "time"

// Status is the vendor bill lifecycle state.
type Status string

const (
	StatusOpen          Status = "open"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusPartiallyPaid, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// Bill is the vendor bill header with its lines.
type Bill struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	VendorID        int64      `json:"vendor_id"`
	PurchaseOrderID *int64     `json:"purchase_order_id,omitempty"`
	VendorReference *string    `json:"vendor_reference,omitempty"`
	Status          Status     `json:"status"`
	BillDate        time.Time  `json:"bill_date"`
	DueDate         time.Time  `json:"due_date"`
	Subtotal        float64    `json:"subtotal"`
	DiscountAmount  float64    `json:"discount_amount"`
	TaxAmount       float64    `json:"tax_amount"`
	TotalAmount     float64    `json:"total_amount"`
	PaidAmount      float64    `json:"paid_amount"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Items           []Item     `json:"items,omitempty"`
}

// Item is one vendor bill line.
type Item struct {
	ID              int64   `json:"id"`
	BillID          int64   `json:"bill_id"`
	ProductID       *int64  `json:"product_id,omitempty"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitCost        float64 `json:"unit_cost"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	LineTotal       float64 `json:"line_total"`
	DiscountAmount  float64 `json:"discount_amount"`
	TaxAmount       float64 `json:"tax_amount"`
}

// Payment is one disbursement applied against a bill.
type Payment struct {
	ID        int64     `json:"id"`
	BillID    int64     `json:"bill_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference *string   `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
	CreatedBy int64     `json:"created_by"`
}
