// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

// MissingDependency is implemented by errors raised when a required upstream
// fact (an exchange rate) is absent.
type MissingDependency interface {
	error
	MissingDependency() bool
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var missing MissingDependency
	switch {
	case errors.As(err, &missing) && missing.MissingDependency():
		Problem(w, http.StatusFailedDependency, "Missing Dependency", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrWorkflowViolation):
		Problem(w, http.StatusConflict, "Workflow Violation", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrReferential):
		Problem(w, http.StatusUnprocessableEntity, "Referential Integrity", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
