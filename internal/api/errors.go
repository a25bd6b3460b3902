package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zinses-rechner/calcsync/internal/domain"
	"github.com/zinses-rechner/calcsync/internal/service/auth"
	"github.com/zinses-rechner/calcsync/internal/store"
	"github.com/zinses-rechner/calcsync/internal/task"
)

// Machine-readable codes carried in the public API error envelope.
const (
	codeValidationFailed = "VALIDATION_FAILED"
	codeRequiredField    = "REQUIRED_FIELD"
	codeValueOutOfRange  = "VALUE_OUT_OF_RANGE"
	codeInvalidInput     = "INVALID_INPUT"
	codeCSVExportError   = "CSV_EXPORT_ERROR"
	codeInternalError    = "INTERNAL_SERVER_ERROR"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes based on
// the error type. This keeps internal error taxonomy out of client view.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidAdminKey):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrTaskNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrTaskNotCancellable),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// The queue sits on a bounded disk budget
	case errors.Is(err, store.ErrQuotaExceeded):
		return http.StatusInsufficientStorage

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, task.ErrNoExecutor):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing error message based
// on the error type, never the raw internal error text.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidAdminKey):
		return "Invalid admin key"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrTaskNotCancellable):
		return "Task is no longer cancellable"

	case errors.Is(err, store.ErrDuplicate):
		return "Task already exists"

	case errors.Is(err, store.ErrQuotaExceeded):
		return "Storage quota exceeded"

	case errors.Is(err, domain.ErrValidation):
		return "Invalid task data"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID format"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	case errors.Is(err, task.ErrNoExecutor):
		return "Unknown task type"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError reduces a validator error to a short message that
// names the offending field without echoing request values back.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example input: "Key: 'SubmitTaskRequest.Type' Error:Field validation
	// for 'Type' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-facing fragments.
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "gt", "gte":
		return "value too small"
	case "lt", "lte":
		return "value too large"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "url":
		return "invalid URL"
	case "hostname_port":
		return "invalid host:port"
	default:
		return "validation failed"
	}
}
