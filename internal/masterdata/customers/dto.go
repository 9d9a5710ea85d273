package customers

// CreateCustomerRequest carries fields for creating a customer.
type CreateCustomerRequest struct {
	Code            string  `json:"code" validate:"required,max=32"`
	Name            string  `json:"name" validate:"required,max=255"`
	ContactPerson   *string `json:"contact_person,omitempty"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone           *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address         *string `json:"address,omitempty"`
	TaxNumber       *string `json:"tax_number,omitempty" validate:"omitempty,max=64"`
	CreditTermsDays int     `json:"credit_terms_days" validate:"gte=0,lte=365"`
	CreditLimit     float64 `json:"credit_limit" validate:"gte=0"`
}

// UpdateCustomerRequest carries partial updates.
type UpdateCustomerRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	ContactPerson   *string  `json:"contact_person,omitempty"`
	Email           *string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone           *string  `json:"phone,omitempty" validate:"omitempty,max=32"`
	Address         *string  `json:"address,omitempty"`
	TaxNumber       *string  `json:"tax_number,omitempty" validate:"omitempty,max=64"`
	CreditTermsDays *int     `json:"credit_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	CreditLimit     *float64 `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	Status          *Status  `json:"status,omitempty"`
}
