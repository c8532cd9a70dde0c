package api

import (
	"errors"
	"net/http"

	"github.com/shipyard-dev/harbor/internal/domain/harbor"
)

// statusFor maps control-plane errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, harbor.ErrShipNotFound),
		errors.Is(err, harbor.ErrSessionNotFound),
		errors.Is(err, harbor.ErrRecordNotFound),
		errors.Is(err, harbor.ErrShipAlreadyStopped):
		return http.StatusNotFound
	case errors.Is(err, harbor.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, harbor.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, harbor.ErrHealthTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, harbor.ErrCapacityExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, harbor.ErrCapacityWaitTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, harbor.ErrShipNotRunning),
		errors.Is(err, harbor.ErrForward):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
