package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the store, service and transport layers.
// Wrap with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("link expired")
	ErrInternal     = errors.New("internal error")
)

// StatusCode maps an error to its HTTP status. Anything that is not one of
// the sentinels above, store failures included, is a 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text that is safe to return to a caller.
func PublicMessage(err error) string {
	switch StatusCode(err) {
	case http.StatusInternalServerError:
		return "Internal server error"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusGone:
		return "Link expired"
	default:
		return err.Error()
	}
}
