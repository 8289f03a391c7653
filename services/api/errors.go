package api

import (
	"errors"
	"net/http"
)

// Error taxonomy surfaced by every operation in the core. Handlers map
// these to HTTP statuses in one place; anything else is a storage or
// transport fault and reports as a 500 so callers can retry.
var (
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("not authorized for this resource")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
