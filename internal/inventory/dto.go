package inventory

// CreateMovementRequest posts a manual stock movement. Quantity is positive
// for in/out/purchase/sale; for adjustments it is the signed delta.
type CreateMovementRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Type      string  `json:"type" validate:"required,oneof=in out adjustment purchase sale"`
	Quantity  float64 `json:"quantity" validate:"required"`
	RefType   string  `json:"ref_type,omitempty" validate:"omitempty,max=50"`
	RefID     string  `json:"ref_id,omitempty" validate:"omitempty,max=100"`
	Note      string  `json:"note,omitempty" validate:"omitempty,max=500"`
}

// TransferRequest moves quantity between two locations.
type TransferRequest struct {
	ProductID    int64   `json:"product_id" validate:"required,gt=0"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	FromLocation string  `json:"from_location" validate:"required,max=100"`
	ToLocation   string  `json:"to_location" validate:"required,max=100,nefield=FromLocation"`
	Note         string  `json:"note,omitempty" validate:"omitempty,max=500"`
}

// ReconcileRequest controls the stock reconciliation run.
type ReconcileRequest struct {
	Repair bool `json:"repair"`
}
