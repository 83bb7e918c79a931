package errors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of a domain error
type ErrorCode int

const (
	ErrValidation ErrorCode = iota + 1000
	ErrConflict
	ErrPermission
	ErrInvalidTransition
	ErrNotFound
	ErrInternal
)

// AppError represents an application error. Every kind except ErrInternal is
// recoverable from the caller's perspective; Details carries enough context
// (offending field, current status) for the caller to decide whether to retry.
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a named detail to the error and returns it.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error constructors
func NewValidation(field, message string) *AppError {
	e := &AppError{
		Code:    ErrValidation,
		Message: message,
	}
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

func NewConflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
	}
}

func NewPermission(message string) *AppError {
	return &AppError{
		Code:    ErrPermission,
		Message: message,
	}
}

func NewInvalidTransition(message string, current interface{}) *AppError {
	e := &AppError{
		Code:    ErrInvalidTransition,
		Message: message,
	}
	return e.WithDetail("current_status", current)
}

func NewNotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError unwraps err into an *AppError, if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
