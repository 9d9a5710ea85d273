package quotations

import "time"

// Status is the quotation lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusApproved, StatusRejected, StatusExpired, StatusConverted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusSent
	case StatusSent:
		return next == StatusApproved || next == StatusRejected || next == StatusExpired
	case StatusApproved:
		return next == StatusConverted
	default:
		return false
	}
}

// Quotation is the sales quotation header with its lines.
type Quotation struct {
	ID               int64     `json:"id"`
	Number           string    `json:"number"`
	CustomerID       int64     `json:"customer_id"`
	Status           Status    `json:"status"`
	IssueDate        time.Time `json:"issue_date"`
	ValidUntil       time.Time `json:"valid_until"`
	Subtotal         float64   `json:"subtotal"`
	DiscountAmount   float64   `json:"discount_amount"`
	TaxAmount        float64   `json:"tax_amount"`
	TotalAmount      float64   `json:"total_amount"`
	Notes            *string   `json:"notes,omitempty"`
	ConvertedOrderID *int64    `json:"converted_order_id,omitempty"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Items            []Item    `json:"items,omitempty"`
}

// Item is one quotation line. Description and prices are snapshots taken at
// creation so later catalog edits leave issued documents untouched.
type Item struct {
	ID              int64   `json:"id"`
	QuotationID     int64   `json:"quotation_id"`
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
