package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Error codes carried in the response envelope.
const (
	CodeValidation        = "VALIDATION"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeUnbalancedEntry   = "UNBALANCED_ENTRY"
	CodeRateLimited       = "RATE_LIMITED"
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL"
)

// RespondError maps domain errors to the response envelope. Unrecognised
// errors become a generic 500 without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	var stockErr *shared.InsufficientStockError
	var balErr *shared.UnbalancedEntryError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &stockErr):
		Fail(w, http.StatusBadRequest, CodeInsufficientStock, "insufficient stock",
			stockErr.Error())
	case errors.As(err, &balErr):
		Fail(w, http.StatusBadRequest, CodeUnbalancedEntry, "ledger entry does not balance",
			fmt.Sprintf("total debit %.2f, total credit %.2f", balErr.TotalDebit, balErr.TotalCredit))
	case errors.As(err, &validationErrs):
		Fail(w, http.StatusBadRequest, CodeValidation, "validation failed", validationErrs.Error())
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusBadRequest, CodeValidation, "validation failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, CodeNotFound, "resource not found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Fail(w, http.StatusConflict, CodeConflict, "conflict", err.Error())
	case errors.Is(err, shared.ErrAlreadyConverted), errors.Is(err, shared.ErrInvalidState):
		Fail(w, http.StatusBadRequest, CodeConflict, "invalid state", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Fail(w, http.StatusUnauthorized, CodeUnauthenticated, "unauthenticated", "")
	case errors.Is(err, shared.ErrForbidden):
		Fail(w, http.StatusForbidden, CodeForbidden, "forbidden", "")
	default:
		Fail(w, http.StatusInternalServerError, CodeInternal, "internal error", "")
	}
}
