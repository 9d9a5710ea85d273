package vendors

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CreateVendorRequest carries fields for creating a vendor.
type CreateVendorRequest struct {
	Code             string  `json:"code" validate:"required,max=32"`
	Name             string  `json:"name" validate:"required,max=255"`
	ContactPerson    *string `json:"contact_person,omitempty"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address          *string `json:"address,omitempty"`
	TaxNumber        *string `json:"tax_number,omitempty" validate:"omitempty,max=64"`
	PaymentTermsDays int     `json:"payment_terms_days" validate:"gte=0,lte=365"`
}

// UpdateVendorRequest carries partial updates.
type UpdateVendorRequest struct {
	Name             *string `json:"name,omitempty" validate:"omitempty,max=255"`
	ContactPerson    *string `json:"contact_person,omitempty"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address          *string `json:"address,omitempty"`
	TaxNumber        *string `json:"tax_number,omitempty" validate:"omitempty,max=64"`
	PaymentTermsDays *int    `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Status           *Status `json:"status,omitempty"`
}

// Service coordinates vendor operations.
type Service struct {
	repo Repository
}

// NewService builds the Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Vendor, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, status *Status) ([]Vendor, error) {
	if status != nil && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *status)
	}
	return s.repo.List(ctx, page, status)
}

func (s *Service) Create(ctx context.Context, req CreateVendorRequest) (*Vendor, error) {
	vendor := Vendor{
		Code:             req.Code,
		Name:             req.Name,
		ContactPerson:    req.ContactPerson,
		Email:            req.Email,
		Phone:            req.Phone,
		Address:          req.Address,
		TaxNumber:        req.TaxNumber,
		PaymentTermsDays: req.PaymentTermsDays,
		Status:           StatusActive,
	}
	id, err := s.repo.Create(ctx, vendor)
	if err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateVendorRequest) (*Vendor, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.ContactPerson != nil {
		existing.ContactPerson = req.ContactPerson
	}
	if req.Email != nil {
		existing.Email = req.Email
	}
	if req.Phone != nil {
		existing.Phone = req.Phone
	}
	if req.Address != nil {
		existing.Address = req.Address
	}
	if req.TaxNumber != nil {
		existing.TaxNumber = req.TaxNumber
	}
	if req.PaymentTermsDays != nil {
		existing.PaymentTermsDays = *req.PaymentTermsDays
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *req.Status)
		}
		existing.Status = *req.Status
	}
	if err := s.repo.Update(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update vendor: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a vendor only when no document references it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return fmt.Errorf("count vendor references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: vendor is referenced by %d documents", shared.ErrConflict, refs)
	}
	return s.repo.Delete(ctx, id)
}
