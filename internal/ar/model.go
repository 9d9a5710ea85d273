package ar

import "time"

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// FBRStatus tracks synchronisation with the tax authority.
type FBRStatus string

const (
	FBRPending FBRStatus = "pending"
	FBRSynced  FBRStatus = "synced"
	FBRFailed  FBRStatus = "failed"
)

// Invoice is the customer invoice header with its lines.
type Invoice struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	CustomerID     int64      `json:"customer_id"`
	OrderID        *int64     `json:"order_id,omitempty"`
	Status         Status     `json:"status"`
	FBRStatus      FBRStatus  `json:"fbr_status"`
	IssueDate      time.Time  `json:"issue_date"`
	DueDate        time.Time  `json:"due_date"`
	Subtotal       float64    `json:"subtotal"`
	DiscountAmount float64    `json:"discount_amount"`
	TaxAmount      float64    `json:"tax_amount"`
	TotalAmount    float64    `json:"total_amount"`
	PaidAmount     float64    `json:"paid_amount"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []Item     `json:"items,omitempty"`
}

// Item is one invoice line, frozen at creation.
type Item struct {
	ID              int64   `json:"id"`
	InvoiceID       int64   `json:"invoice_id"`
	ProductID       int64   `json:"product_id"`
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	LineTotal       float64 `json:"line_total"`
	DiscountAmount  float64 `json:"discount_amount"`
	TaxAmount       float64 `json:"tax_amount"`
}

// Payment is one receipt applied against an invoice.
type Payment struct {
	ID        int64     `json:"id"`
	InvoiceID int64     `json:"invoice_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference *string   `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
	CreatedBy int64     `json:"created_by"`
}
