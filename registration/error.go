package registration

import "fmt"

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_REGISTRATION_DOES_NOT_EXIST     ErrorReason = "REGISTRATION_DOES_NOT_EXIST"
	REASON_REGISTRATION_ALREADY_EXISTS     ErrorReason = "REGISTRATION_ALREADY_EXISTS"
	REASON_ALREADY_REGISTERED              ErrorReason = "ALREADY_REGISTERED"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_INVALID_CURSOR                  ErrorReason = "INVALID_CURSOR"
	REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST ErrorReason = "ASSOCIATED_EVENT_DOES_NOT_EXIST"
	REASON_REGISTRATION_IS_CLOSED          ErrorReason = "REGISTRATION_IS_CLOSED"
	REASON_EVENT_FULL                      ErrorReason = "EVENT_FULL"
	REASON_TEAM_SIZE_NOT_ALLOWED           ErrorReason = "TEAM_SIZE_NOT_ALLOWED"
	REASON_INVALID_PARTICIPANTS            ErrorReason = "INVALID_PARTICIPANTS"
	REASON_NO_PAYMENT_DUE                  ErrorReason = "NO_PAYMENT_DUE"
	REASON_ORDER_MISMATCH                  ErrorReason = "ORDER_MISMATCH"
	REASON_STATUS_REGRESSION               ErrorReason = "STATUS_REGRESSION"
	REASON_VERSION_CONFLICT                ErrorReason = "VERSION_CONFLICT"
)

// FieldError carries field-level detail for invalid participant input.
type FieldError struct {
	Field   string
	Message string
}

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
	Fields  []FieldError
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newRegistrationError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewRegistrationAlreadyExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_ALREADY_EXISTS, message, cause)
}

func NewAlreadyRegisteredError(message string) *Error {
	return newRegistrationError(REASON_ALREADY_REGISTERED, message, nil)
}

func NewRegistrationDoesNotExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_DOES_NOT_EXIST, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewInvalidCursorError(message string, cause error) *Error {
	return newRegistrationError(REASON_INVALID_CURSOR, message, cause)
}

func NewAssociatedEventDoesNotExistError(message string, cause error) *Error {
	return newRegistrationError(REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST, message, cause)
}

func NewRegistrationIsClosedError(message string) *Error {
	return newRegistrationError(REASON_REGISTRATION_IS_CLOSED, message, nil)
}

func NewEventFullError(message string) *Error {
	return newRegistrationError(REASON_EVENT_FULL, message, nil)
}

func NewTeamSizeNotAllowedError(teamSize, minSize, maxSize int) *Error {
	return newRegistrationError(REASON_TEAM_SIZE_NOT_ALLOWED, fmt.Sprintf("Team size must be within %d and %d. Size is %d", minSize, maxSize, teamSize), nil)
}

func NewInvalidParticipantsError(message string, fields []FieldError) *Error {
	err := newRegistrationError(REASON_INVALID_PARTICIPANTS, message, nil)
	err.Fields = fields
	return err
}

func NewNoPaymentDueError(message string) *Error {
	return newRegistrationError(REASON_NO_PAYMENT_DUE, message, nil)
}

func NewOrderMismatchError(message string) *Error {
	return newRegistrationError(REASON_ORDER_MISMATCH, message, nil)
}

func NewStatusRegressionError(from, to Status) *Error {
	return newRegistrationError(REASON_STATUS_REGRESSION, fmt.Sprintf("Status cannot move from %s to %s", from, to), nil)
}

func NewVersionConflictError(message string, cause error) *Error {
	return newRegistrationError(REASON_VERSION_CONFLICT, message, cause)
}
