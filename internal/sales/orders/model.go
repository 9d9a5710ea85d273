package orders

import "time"

// Status is the sales order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusInvoiced   Status = "invoiced"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusInvoiced, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	return s == StatusInvoiced || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed. Shipping
// and delivery run strictly forward; cancellation is open from every
// non-terminal state.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered || next == StatusCancelled
	case StatusDelivered:
		return next == StatusInvoiced || next == StatusCancelled
	default:
		return false
	}
}

// Order is the sales order header with its lines.
type Order struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	CustomerID     int64      `json:"customer_id"`
	QuotationID    *int64     `json:"quotation_id,omitempty"`
	Status         Status     `json:"status"`
	OrderDate      time.Time  `json:"order_date"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	Subtotal       float64    `json:"subtotal"`
	DiscountAmount float64    `json:"discount_amount"`
	TaxAmount      float64    `json:"tax_amount"`
	TotalAmount    float64    `json:"total_amount"`
	Notes          *string    `json:"notes,omitempty"`
	InvoiceID      *int64     `json:"invoice_id,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []Item     `json:"items,omitempty"`
}

// StatusChange is the outcome of a delivery-state call. Note is set when the
// order had already reached the requested status and the call was absorbed,
// for example a repeated delivery reporting the invoice that already exists.
type StatusChange struct {
	Order *Order `json:"order"`
	Note  string `json:"note,omitempty"`
}

// Item is one order line, a snapshot frozen at creation.
type Item struct {
	ID              int64   `json:"id"`
	OrderID         int64   `json:"order_id"`
	ProductID       int64   `json:"product_id"`
	Description     string  `json:"description"`
	IsGood          bool    `json:"is_good"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	LineTotal       float64 `json:"line_total"`
	DiscountAmount  float64 `json:"discount_amount"`
	TaxAmount       float64 `json:"tax_amount"`
}
