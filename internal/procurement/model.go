package procurement

import "time"

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusSent            Status = "sent"
	StatusReceived        Status = "received"
	StatusClosed          Status = "closed"
	StatusCancelled       Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusSent,
		StatusReceived, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed. Receipt is
// the point of no return: goods on the shelf cannot be cancelled away.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusPendingApproval || next == StatusCancelled
	case StatusPendingApproval:
		return next == StatusApproved || next == StatusCancelled
	case StatusApproved:
		return next == StatusSent || next == StatusCancelled
	case StatusSent:
		return next == StatusReceived || next == StatusCancelled
	case StatusReceived:
		return next == StatusClosed
	default:
		return false
	}
}

// PurchaseOrder is the purchase order header with its lines.
type PurchaseOrder struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	VendorID       int64      `json:"vendor_id"`
	Status         Status     `json:"status"`
	OrderDate      time.Time  `json:"order_date"`
	ExpectedAt     *time.Time `json:"expected_at,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	Subtotal       float64    `json:"subtotal"`
	DiscountAmount float64    `json:"discount_amount"`
	TaxAmount      float64    `json:"tax_amount"`
	TotalAmount    float64    `json:"total_amount"`
	Notes          *string    `json:"notes,omitempty"`
	BillID         *int64     `json:"bill_id,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []Item     `json:"items,omitempty"`
}

// Item is one purchase order line.
type Item struct {
	ID              int64   `json:"id"`
	PurchaseOrderID int64   `json:"purchase_order_id"`
	ProductID       int64   `json:"product_id"`
	Description     string  `json:"description"`
	IsGood          bool    `json:"is_good"`
	Quantity        float64 `json:"quantity"`
	UnitCost        float64 `json:"unit_cost"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	LineTotal       float64 `json:"line_total"`
	DiscountAmount  float64 `json:"discount_amount"`
	TaxAmount       float64 `json:"tax_amount"`
}
