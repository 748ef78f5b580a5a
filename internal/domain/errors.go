package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeIncompleteAnswers    = "INCOMPLETE_ANSWERS"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeDuplicateEntry       = "DUPLICATE_ENTRY"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeRateLimit            = "RATE_LIMIT_EXCEEDED"
	ErrCodeAssistantUnavailable = "ASSISTANT_UNAVAILABLE"
	ErrCodeInternalServer       = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// IncompleteAnswersError is returned when a questionnaire cannot be scored.
// Missing lists unanswered questions; Invalid lists unknown keys and out-of-range levels.
type IncompleteAnswersError struct {
	Missing []QuestionKey `json:"missing,omitempty"`
	Invalid []QuestionKey `json:"invalid,omitempty"`
}

// Error implements the error interface
func (e *IncompleteAnswersError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "unanswered: "+joinKeys(e.Missing))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid: "+joinKeys(e.Invalid))
	}
	return "incomplete answers (" + strings.Join(parts, "; ") + ")"
}

func joinKeys(keys []QuestionKey) string {
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = string(k)
	}
	return strings.Join(s, ", ")
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
