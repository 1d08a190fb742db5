package orchestrator

import "fmt"

// Error kind vocabulary: a classified taxonomy of task failures, kinds not
// Go error types, each mapped to a specific HTTP status by HTTPStatus.
const (
	KindInvalidContext         = "invalid_context"
	KindUnauthorized           = "unauthorized"
	KindForbidden              = "forbidden"
	KindNotFound               = "not_found"
	KindRequirementsIncomplete = "requirements_incomplete"
	KindInsufficientCredits    = "insufficient_credits"
	KindProviderError          = "provider_error"
	KindSchemaValidationFailed = "schema_validation_failed"
	KindGroundingIncompatible  = "grounding_incompatible"
	KindRenderFailed           = "render_failed"
	KindTimeout                = "timeout"
)

// TaskError is a classified orchestrator failure carrying the HTTP status
// its kind maps to.
type TaskError struct {
	Kind    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewTaskError constructs a TaskError for kind with a formatted message.
func NewTaskError(kind, format string, args ...any) *TaskError {
	return &TaskError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps a TaskError's kind to its client-facing status code.
// Unrecognized kinds map to 500: infrastructure errors surface as 5xx.
func (e *TaskError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidContext:
		return 400
	case KindUnauthorized:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindRequirementsIncomplete:
		return 409
	case KindSchemaValidationFailed:
		return 422
	case KindInsufficientCredits:
		return 429
	case KindGroundingIncompatible:
		return 500
	default:
		return 500
	}
}

// IsRecoverable reports whether kind is one of the "becomes a failure field
// on a 200" kinds rather than a bubbled 5xx/4xx — provider_error,
// schema_validation_failed, render_failed, and timeout are recorded as a
// failure envelope rather than rejecting the request outright, per §7's
// propagation policy. Kinds detected before any provider call (invalid
// context, auth, ownership, missing resource, incomplete requirements,
// insufficient credits) reject the request instead.
func IsRecoverable(kind string) bool {
	switch kind {
	case KindProviderError, KindSchemaValidationFailed, KindRenderFailed, KindTimeout:
		return true
	default:
		return false
	}
}
