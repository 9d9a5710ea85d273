package quotations

import "context"

// ProductBrief is the catalog slice quotations need: naming for line
// snapshots and stock for conversion checks.
type ProductBrief struct {
	ID             int64
	SKU            string
	Name           string
	IsGood         bool
	AvailableStock float64
}

// ProductGateway looks up catalog data without binding to the products
// package directly.
type ProductGateway interface {
	Brief(ctx context.Context, productID int64) (*ProductBrief, error)
}

// OrderCreator turns an approved quotation into a sales order.
type OrderCreator interface {
	CreateFromQuotation(ctx context.Context, q *Quotation, actorID int64) (orderID int64, orderNumber string, err error)
}

// Reserver writes informational stock reservations at conversion time.
type Reserver interface {
	Reserve(ctx context.Context, productID int64, quantity float64, refType, refID string, actorID int64) error
}
