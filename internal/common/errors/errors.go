// Package errors provides the standardized error taxonomy for the chat service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Extraction collaborator errors. Both are recovered inside the turn
	// pipeline by substituting an all-absent parameter set.
	ErrCodeExtractionFailed  ErrorCode = "EXTRACTION_FAILED"
	ErrCodeExtractionTimeout ErrorCode = "EXTRACTION_TIMEOUT"

	// Generation collaborator errors. Recovered with a template reply.
	ErrCodeGenerationFailed  ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	// Dataset errors. DATASET_UNAVAILABLE is surfaced as 503 and leaves the
	// conversation state untouched so the turn can be retried.
	ErrCodeDatasetUnavailable ErrorCode = "DATASET_UNAVAILABLE"
	ErrCodeDatasetQueryFailed ErrorCode = "DATASET_QUERY_FAILED"

	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeStateStoreFailed     ErrorCode = "STATE_STORE_FAILED"

	// Extracted value outside the fixed enumerations. Never surfaced to the
	// caller; the value is dropped during sanitization. The code exists so the
	// event can be counted and logged uniformly.
	ErrCodeInvalidDomainValue ErrorCode = "INVALID_DOMAIN_VALUE"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewExtractionFailedError creates a retryable extraction API error.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Parameter extraction API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionTimeoutError creates a retryable extraction timeout error.
func NewExtractionTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionTimeout,
		Message:   "Parameter extraction API timeout",
		Details:   "API call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError creates a retryable generation API error.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Reply generation API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationTimeoutError creates a retryable generation timeout error.
func NewGenerationTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationTimeout,
		Message:   "Reply generation API timeout",
		Details:   "API call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatasetUnavailableError creates a retryable dataset load error.
func NewDatasetUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatasetUnavailable,
		Message:   "Enrollment dataset snapshot unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatasetQueryFailedError creates a retryable dataset query error.
func NewDatasetQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatasetQueryFailed,
		Message:   "Enrollment dataset query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConversationNotFoundError creates a non-retryable lookup error.
func NewConversationNotFoundError(conversationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationNotFound,
		Message:   "Conversation not found",
		Details:   fmt.Sprintf("conversationId: %s", conversationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateStoreFailedError creates a retryable state store error.
func NewStateStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateStoreFailed,
		Message:   "Conversation state store error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidDomainValueError records an out-of-domain extracted value.
func NewInvalidDomainValueError(field, value string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDomainValue,
		Message:   "Extracted value outside the fixed value domain",
		Details:   fmt.Sprintf("field: %s, value: %s", field, value),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable bad request error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. HTTP Mapping
// ==========================

// httpStatusMapping maps internal error codes to HTTP status codes.
var httpStatusMapping = map[ErrorCode]int{
	ErrCodeExtractionFailed:     http.StatusBadGateway,
	ErrCodeExtractionTimeout:    http.StatusGatewayTimeout,
	ErrCodeGenerationFailed:     http.StatusBadGateway,
	ErrCodeGenerationTimeout:    http.StatusGatewayTimeout,
	ErrCodeDatasetUnavailable:   http.StatusServiceUnavailable,
	ErrCodeDatasetQueryFailed:   http.StatusInternalServerError,
	ErrCodeConversationNotFound: http.StatusNotFound,
	ErrCodeStateStoreFailed:     http.StatusInternalServerError,
	ErrCodeInvalidRequest:       http.StatusBadRequest,
}

// HTTPStatus returns the HTTP status code for an error. Unknown errors map to
// 500.
func HTTPStatus(err error) int {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		if status, ok := httpStatusMapping[stdErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// AsStandard unwraps err to a *StandardError if possible.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}
