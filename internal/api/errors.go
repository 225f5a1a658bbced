package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/hushapp/hush/internal/errors"
)

// APIError implements huma.StatusError so coded errors keep their status and
// code on the wire.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

var registerErrorHandler sync.Once

// RegisterErrorHandler makes huma build its own errors (bad input, unknown
// parameters) as APIError.
func RegisterErrorHandler() {
	registerErrorHandler.Do(func() {
		huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
			for _, err := range errs {
				if apiErr, ok := toAPIError(err); ok {
					return apiErr
				}
			}
			return &APIError{status: status, Code: statusToCode(status), Message: message}
		}
	})
}

// apiError converts a handler error for huma. Internal and unknown errors are
// logged and reported without their message.
func apiError(err error, logger *slog.Logger) error {
	if apiErr, ok := toAPIError(err); ok {
		return apiErr
	}
	logger.Error("Unhandled error", "error", err)
	return &APIError{
		status:  http.StatusInternalServerError,
		Code:    string(domainerrors.CodeInternal),
		Message: "internal server error",
	}
}

func toAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if domainerrors.As(err, &apiErr) {
		return apiErr, true
	}
	var domainErr *domainerrors.Error
	if !domainerrors.As(err, &domainErr) || domainErr.Code == domainerrors.CodeInternal {
		return nil, false
	}
	return &APIError{
		status:  domainErr.HTTPStatus(),
		Code:    string(domainErr.Code),
		Message: domainErr.Message,
		Details: domainErr.Details,
	}, true
}

// statusToCode maps HTTP status codes to error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(domainerrors.CodeValidation)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusTooManyRequests:
		return string(domainerrors.CodeRateLimited)
	default:
		return string(domainerrors.CodeInternal)
	}
}
