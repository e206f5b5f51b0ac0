package handler

import (
	"errors"
	"net/http"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidScriptLength):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCrmPropagation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
