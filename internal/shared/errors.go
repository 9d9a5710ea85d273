package shared

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across modules.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate key or competing write.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates the request failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates a document cannot make the requested transition.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrAlreadyConverted indicates the quotation has already been converted.
	ErrAlreadyConverted = errors.New("quotation already converted")
	// ErrUnauthenticated indicates a missing or invalid credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// InsufficientStockError reports a stock shortfall blocking a conversion or shipment.
type InsufficientStockError struct {
	ProductID int64
	SKU       string
	Requested float64
	Available float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (id=%d): requested %.2f, available %.2f, short %.2f",
		e.SKU, e.ProductID, e.Requested, e.Available, e.Requested-e.Available)
}

// Shortfall returns the missing quantity.
func (e *InsufficientStockError) Shortfall() float64 {
	return e.Requested - e.Available
}

// UnbalancedEntryError reports a ledger entry whose debits and credits diverge
// beyond the accepted tolerance.
type UnbalancedEntryError struct {
	TotalDebit  float64
	TotalCredit float64
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("unbalanced ledger entry: debit %.2f, credit %.2f", e.TotalDebit, e.TotalCredit)
}
