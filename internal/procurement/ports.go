package procurement

import "context"

// ProductBrief is the catalog slice purchasing needs.
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

// StockPoster records inbound stock when a purchase order is received.
type StockPoster interface {
	PostPurchase(ctx context.Context, productID int64, quantity float64, orderNumber string, actorID int64) error
}
