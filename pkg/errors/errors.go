package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones keep matching
// the predefined kinds below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment taxonomy.
var (
	ErrUnknownStudent    = New("UNKNOWN_STUDENT", http.StatusNotFound, "student not found")
	ErrUnknownCourse     = New("UNKNOWN_COURSE", http.StatusNotFound, "course not found")
	ErrAlreadyEnrolled   = New("ALREADY_ENROLLED", http.StatusConflict, "student already enrolled in course")
	ErrNotEnrolled       = New("NOT_ENROLLED", http.StatusConflict, "student not enrolled in course")
	ErrCreditCapExceeded = New("CREDIT_CAP_EXCEEDED", http.StatusUnprocessableEntity, "credit cap exceeded")
	ErrCapacityExceeded  = New("CAPACITY_EXCEEDED", http.StatusConflict, "course capacity exceeded")
	ErrDuplicateKey      = New("DUPLICATE_KEY", http.StatusConflict, "duplicate key")
)

// CreditCapExceeded reports the would-be credit total against the cap.
func CreditCapExceeded(total, maxCredits int) *Error {
	e := Clone(ErrCreditCapExceeded, fmt.Sprintf("credit cap exceeded: %d > %d", total, maxCredits))
	e.Details = map[string]interface{}{"requested_total": total, "max_credits": maxCredits}
	return e
}

// CapacityExceeded reports the seat usage of a full course.
func CapacityExceeded(consumed, capacity int) *Error {
	e := Clone(ErrCapacityExceeded, fmt.Sprintf("course capacity exceeded: %d/%d seats taken", consumed, capacity))
	e.Details = map[string]interface{}{"consumed_seats": consumed, "capacity": capacity}
	return e
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if err.Details != nil {
		clone.Details = make(map[string]interface{}, len(err.Details))
		for k, v := range err.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}
