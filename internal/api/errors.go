package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/http/response"
)

// APIError is a custom error type that implements huma.StatusError.
// It renders the same envelope as the raw routes.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Success bool                `json:"success"`
	Err     *response.ErrorBody `json:"error"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Err.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// apiError converts an engine error into its HTTP form.
func apiError(err error) *APIError {
	return &APIError{status: response.Status(err), Err: response.Body(err)}
}

// RegisterErrorHandler configures huma to use engine errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			var domainErr *errors.Error
			if errors.As(err, &domainErr) {
				return apiError(domainErr)
			}
		}

		body := &response.ErrorBody{Code: statusToCode(status), Message: message}
		if len(errs) > 0 && status < http.StatusInternalServerError {
			details := make([]string, 0, len(errs))
			for _, err := range errs {
				details = append(details, err.Error())
			}
			body.Details = details
		}
		return &APIError{status: status, Err: body}
	}
}

// statusToCode maps HTTP status codes to engine error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(errors.CodeValidation)
	case http.StatusForbidden:
		return string(errors.CodeForbidden)
	case http.StatusNotFound:
		return string(errors.CodeNotFound)
	case http.StatusConflict:
		return string(errors.CodeConflict)
	case http.StatusServiceUnavailable:
		return string(errors.CodeNotInitialized)
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return string(errors.CodeInternal)
	}
}
