package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Queue-related errors
	ErrQueueUnavailable = errors.New("execution queue unavailable")
	ErrPayloadExpired   = errors.New("execution payload expired")

	// Graph-related errors
	ErrCyclicWorkflow = errors.New("workflow contains a cycle")
	ErrUnknownNode    = errors.New("connection references unknown node")

	// Execution errors
	ErrUnknownExecutionType = errors.New("unknown execution type")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrMaxRetriesExceeded   = errors.New("maximum retries exceeded")

	// Intake errors
	ErrWebhookNotFound  = errors.New("webhook not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("stale webhook timestamp")
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
)

// EngineError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type EngineError struct {
	Op      string // Operation that failed (e.g., "queue.Dequeue")
	Kind    string // Error kind (e.g., "queue", "dag", "intake")
	ID      string // Optional execution or node id involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *EngineError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError
func NewEngineError(op, kind string, err error) *EngineError {
	return &EngineError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQueueUnavailable) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed)
}

// IsPermanent checks if an error makes a job terminally failed regardless
// of remaining retry budget.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrCyclicWorkflow) ||
		errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrUnknownExecutionType)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
