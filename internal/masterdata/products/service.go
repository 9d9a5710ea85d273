package products

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CreateProductRequest carries fields for creating a product. Products start
// with zero stock; opening balances enter through an inventory adjustment so
// the movement log stays authoritative.
type CreateProductRequest struct {
	SKU           string  `json:"sku" validate:"required,max=64"`
	Name          string  `json:"name" validate:"required,max=255"`
	Type          Type    `json:"type" validate:"required,oneof=good service"`
	UOM           string  `json:"uom" validate:"required,max=20"`
	ReorderPoint  float64 `json:"reorder_point" validate:"gte=0"`
	PurchasePrice float64 `json:"purchase_price" validate:"gte=0"`
	SalePrice     float64 `json:"sale_price" validate:"gte=0"`
}

// UpdateProductRequest carries partial updates. Stock is never updated here;
// it only moves through stock movements.
type UpdateProductRequest struct {
	Name          *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Type          *Type    `json:"type,omitempty" validate:"omitempty,oneof=good service"`
	UOM           *string  `json:"uom,omitempty" validate:"omitempty,max=20"`
	ReorderPoint  *float64 `json:"reorder_point,omitempty" validate:"omitempty,gte=0"`
	PurchasePrice *float64 `json:"purchase_price,omitempty" validate:"omitempty,gte=0"`
	SalePrice     *float64 `json:"sale_price,omitempty" validate:"omitempty,gte=0"`
	Active        *bool    `json:"active,omitempty"`
}

// Service coordinates product catalog operations.
type Service struct {
	repo Repository
}

// NewService builds the Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, active *bool) ([]Product, error) {
	return s.repo.List(ctx, page, active)
}

// ListLowStock returns active goods at or below their reorder point.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*Product, error) {
	product := Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Type:          req.Type,
		UOM:           req.UOM,
		ReorderPoint:  req.ReorderPoint,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Active:        true,
	}
	id, err := s.repo.Create(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateProductRequest) (*Product, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Type != nil {
		existing.Type = *req.Type
	}
	if req.UOM != nil {
		existing.UOM = *req.UOM
	}
	if req.ReorderPoint != nil {
		existing.ReorderPoint = *req.ReorderPoint
	}
	if req.PurchasePrice != nil {
		existing.PurchasePrice = *req.PurchasePrice
	}
	if req.SalePrice != nil {
		existing.SalePrice = *req.SalePrice
	}
	if req.Active != nil {
		existing.Active = *req.Active
	}
	if err := s.repo.Update(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a product with no movement history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
