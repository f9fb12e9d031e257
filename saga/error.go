package saga

import (
	"errors"
	"fmt"
)

type ErrorReason string

const (
	// REASON_RETRYABLE marks transient network/5xx failures. Safe to retry
	// unchanged since the backend operations are idempotent.
	REASON_RETRYABLE ErrorReason = "RETRYABLE"
	// REASON_DRAFT_REJECTED is a terminal business rejection of the draft
	// (event closed, capacity reached, already registered).
	REASON_DRAFT_REJECTED ErrorReason = "DRAFT_REJECTED"
	// REASON_DRAFT_NOT_FOUND means the registration id is stale or invalid;
	// the caller must restart from drafting.
	REASON_DRAFT_NOT_FOUND ErrorReason = "DRAFT_NOT_FOUND"
	// REASON_ORDER_CREATION_FAILED is terminal for this order attempt.
	REASON_ORDER_CREATION_FAILED ErrorReason = "ORDER_CREATION_FAILED"
	// REASON_GATEWAY_FAILED is the widget reporting a declined charge. Not
	// authoritative; the status resolver has the final word.
	REASON_GATEWAY_FAILED ErrorReason = "GATEWAY_FAILED"
	// REASON_SESSION_LOST means no identifiers could be recovered; the only
	// case where the user must start over instead of resuming.
	REASON_SESSION_LOST ErrorReason = "SESSION_LOST"
	// REASON_STORE_FAILED is a correlation store read/write failure.
	REASON_STORE_FAILED ErrorReason = "STORE_FAILED"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newSagaError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewRetryableError(message string, cause error) *Error {
	return newSagaError(REASON_RETRYABLE, message, cause)
}

func NewDraftRejectedError(message string, cause error) *Error {
	return newSagaError(REASON_DRAFT_REJECTED, message, cause)
}

func NewDraftNotFoundError(message string, cause error) *Error {
	return newSagaError(REASON_DRAFT_NOT_FOUND, message, cause)
}

func NewOrderCreationFailedError(message string, cause error) *Error {
	return newSagaError(REASON_ORDER_CREATION_FAILED, message, cause)
}

func NewGatewayFailedError(message string) *Error {
	return newSagaError(REASON_GATEWAY_FAILED, message, nil)
}

func NewSessionLostError(message string, cause error) *Error {
	return newSagaError(REASON_SESSION_LOST, message, cause)
}

func NewStoreFailedError(message string, cause error) *Error {
	return newSagaError(REASON_STORE_FAILED, message, cause)
}

// HasReason reports whether err is a saga error with the given reason.
func HasReason(err error, reason ErrorReason) bool {
	var sagaErr *Error
	return errors.As(err, &sagaErr) && sagaErr.Reason == reason
}

func IsRetryable(err error) bool {
	return HasReason(err, REASON_RETRYABLE)
}

func IsSessionLost(err error) bool {
	return HasReason(err, REASON_SESSION_LOST)
}
