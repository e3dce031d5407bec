// Package errors provides the standardized error taxonomy used across the
// segment research pipeline and its HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeProviderError      ErrorCode = "PROVIDER_ERROR"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeParseFailure       ErrorCode = "PARSE_FAILURE"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeAdvanceInProgress  ErrorCode = "ADVANCE_IN_PROGRESS"
	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSegmentNotSelected ErrorCode = "SEGMENT_NOT_SELECTED"
	ErrCodeStageAbandoned     ErrorCode = "STAGE_ABANDONED"
	ErrCodeSessionStore       ErrorCode = "SESSION_STORE_ERROR"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: IsRetryableErrorCode(code),
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewInvalidInputError is returned before any provider call is made.
func NewInvalidInputError(details string, cause error) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid stage input", details, cause)
}

// NewProviderError carries the upstream status and raw body for diagnostics.
func NewProviderError(status int, body string, cause error) *StandardError {
	msg := "Completion provider error"
	switch {
	case status >= 200 && status < 300:
		msg = "Invalid response format from completion provider"
	case status > 0:
		msg = fmt.Sprintf("Completion provider error: %d", status)
	}
	err := newError(ErrCodeProviderError, msg, body, cause).WithMetadata("status", status)
	// Only throttling and upstream faults are worth another attempt.
	err.Retryable = status == http.StatusTooManyRequests || status >= 500
	return err
}

func NewProviderTimeoutError(cause error) *StandardError {
	return newError(ErrCodeProviderTimeout, "Completion provider timeout", "request exceeded the configured deadline", cause)
}

// NewParseFailureError is informational; callers fall back to raw text.
func NewParseFailureError(raw string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeParseFailure, "Failed to parse LLM response as JSON. Returning raw content.", details, cause).
		WithMetadata("rawLength", len(raw))
}

func NewInvalidTransitionError(from, to string, cause error) *StandardError {
	return newError(ErrCodeInvalidTransition, "Invalid stage transition",
		fmt.Sprintf("cannot advance from %s to %s", from, to), cause)
}

func NewAdvanceInProgressError(cause error) *StandardError {
	return newError(ErrCodeAdvanceInProgress, "A stage is already running for this pipeline", "", cause)
}

func NewSessionNotFoundError(sessionID string) *StandardError {
	return newError(ErrCodeSessionNotFound, "Session not found", fmt.Sprintf("sessionId: %s", sessionID), nil)
}

func NewSegmentNotSelectedError(details string, cause error) *StandardError {
	return newError(ErrCodeSegmentNotSelected, "No valid segment selected", details, cause)
}

// NewStageAbandonedError reports a stage whose caller went away before the
// result could be applied. The result is discarded.
func NewStageAbandonedError(stage string, cause error) *StandardError {
	return newError(ErrCodeStageAbandoned, "Stage result discarded", fmt.Sprintf("stage %s abandoned", stage), cause).
		WithMetadata("stage", stage)
}

// NewSessionStoreError wraps failures of the shared session backend.
func NewSessionStoreError(sessionID string, cause error) *StandardError {
	details := fmt.Sprintf("sessionId: %s", sessionID)
	if cause != nil {
		details += ": " + cause.Error()
	}
	return newError(ErrCodeSessionStore, "Session store unavailable", details, cause)
}

func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeInternal, "Unexpected error", details, err)
}

// HTTPStatus maps an error code onto the status returned by the API layer.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeSegmentNotSelected:
		return http.StatusBadRequest
	case ErrCodeInvalidTransition, ErrCodeAdvanceInProgress:
		return http.StatusConflict
	case ErrCodeSessionNotFound:
		return http.StatusNotFound
	case ErrCodeStageAbandoned:
		return http.StatusRequestTimeout
	case ErrCodeSessionStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeProviderError, ErrCodeProviderTimeout, ErrCodeAdvanceInProgress,
		ErrCodeStageAbandoned, ErrCodeSessionStore:
		return true
	default:
		return false
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROVIDER"):
		return "PROVIDER"
	case strings.Contains(codeStr, "PARSE"):
		return "PARSE"
	case strings.Contains(codeStr, "TRANSITION"), strings.Contains(codeStr, "ADVANCE"), strings.Contains(codeStr, "ABANDONED"):
		return "STATE"
	case strings.Contains(codeStr, "INVALID"), strings.Contains(codeStr, "SELECTED"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	default:
		return "OTHER"
	}
}

// Normalize guarantees a *StandardError, wrapping anything else as internal.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}
