package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrToolNotFound is reported to the model when it calls an unknown tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrSecurityViolation is wrapped by every SecurityError.
	ErrSecurityViolation = errors.New("security violation")
)

// Error codes carried by error events and JSON error bodies.
const (
	CodeSecurityViolation = "security_violation"
	CodeTimeout           = "timeout"
	CodeLLMError          = "llm_error"
	CodeInternalError     = "internal_error"
)

// isContextCanceledError checks if an error is due to context cancellation or deadline exceeded
func isContextCanceledError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "context canceled") ||
		strings.Contains(err.Error(), "context deadline exceeded")
}

// ErrorCode maps a run error to the code reported to the client.
func ErrorCode(err error) string {
	var se *SecurityError
	switch {
	case errors.As(err, &se):
		return CodeSecurityViolation
	case isContextCanceledError(err):
		return CodeTimeout
	case errors.Is(err, errGeneration):
		return CodeLLMError
	default:
		return CodeInternalError
	}
}

// ErrorStatus maps a run error to an HTTP status.
func ErrorStatus(err error) int {
	var se *SecurityError
	switch {
	case errors.As(err, &se):
		return se.Status()
	case isContextCanceledError(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, errGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the client-facing text for a run error; internal
// details stay in the logs.
func PublicMessage(err error) string {
	switch ErrorCode(err) {
	case CodeSecurityViolation:
		return "The response was withheld because it referenced data outside your account."
	case CodeTimeout:
		return "The request took too long to complete."
	case CodeLLMError:
		return "The assistant is temporarily unavailable."
	default:
		return "An internal error occurred."
	}
}
