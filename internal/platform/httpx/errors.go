// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/atlas-commerce/atlas-ledger/internal/shared"
)

// RespondError maps domain error kinds to HTTP responses using RFC7807.
// The detail carries the specific invariant that was violated; operators of a
// financial-control system diagnose from the message, not the status code.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrPeriodClosed):
		Problem(w, http.StatusUnprocessableEntity, "Period Closed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
