package orders

import "context"

// ProductBrief is the catalog slice orders need when created directly.
type ProductBrief struct {
	ID     int64
	SKU    string
	Name   string
	IsGood bool
}

// ProductGateway looks up catalog data for line snapshots.
type ProductGateway interface {
	Brief(ctx context.Context, productID int64) (*ProductBrief, error)
}

// StockPoster records the physical stock decrement when an order ships.
type StockPoster interface {
	PostSale(ctx context.Context, productID int64, quantity float64, orderNumber string, actorID int64) error
}

// InvoiceCreator raises the customer invoice once an order is delivered and
// resolves invoice ids back to document numbers for repeat delivery calls.
type InvoiceCreator interface {
	CreateFromOrder(ctx context.Context, o *Order, actorID int64) (invoiceID int64, invoiceNumber string, err error)
	InvoiceNumber(ctx context.Context, invoiceID int64) (string, error)
}
