package customers

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service coordinates customer operations.
type Service struct {
	repo Repository
}

// NewService builds the Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page shared.CursorPage, status *Status) ([]Customer, error) {
	if status != nil && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *status)
	}
	return s.repo.List(ctx, page, status)
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	customer := Customer{
		Code:            req.Code,
		Name:            req.Name,
		ContactPerson:   req.ContactPerson,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		TaxNumber:       req.TaxNumber,
		CreditTermsDays: req.CreditTermsDays,
		CreditLimit:     req.CreditLimit,
		Status:          StatusActive,
	}
	id, err := s.repo.Create(ctx, customer)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
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
	if req.CreditTermsDays != nil {
		existing.CreditTermsDays = *req.CreditTermsDays
	}
	if req.CreditLimit != nil {
		existing.CreditLimit = *req.CreditLimit
	}
	if req.Status != nil {
		if !req.Status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *req.Status)
		}
		existing.Status = *req.Status
	}
	if err := s.repo.Update(ctx, *existing); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a customer only when no document references it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	refs, err := s.repo.CountReferences(ctx, id)
	if err != nil {
		return fmt.Errorf("count customer references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: customer is referenced by %d documents", shared.ErrConflict, refs)
	}
	return s.repo.Delete(ctx, id)
}
