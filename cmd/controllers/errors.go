package controllers

import (
	"errors"
	"net/http"

	"codeclaim/internal/services"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var missing *services.MissingSourceError
	var schema *services.SchemaError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrInvalidPhoneFormat):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotEligible):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidRecordState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.As(err, &missing):
		return http.StatusNotFound
	case errors.As(err, &schema):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
