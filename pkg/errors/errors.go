package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
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

// Common error codes
const (
	ErrUnauthorized ErrorCode = iota + 1000
	ErrInvalidRecord
	ErrSubmission
	ErrTokenMissing
	ErrIDMissing
)

// Error constructors
func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "login rejected by target",
		Err:     err,
	}
}

func InvalidRecord(name string, err error) *AppError {
	return &AppError{
		Code:    ErrInvalidRecord,
		Message: fmt.Sprintf("record %q failed validation", name),
		Err:     err,
	}
}

func Submission(what string, err error) *AppError {
	return &AppError{
		Code:    ErrSubmission,
		Message: fmt.Sprintf("%s submission failed", what),
		Err:     err,
	}
}

func TokenMissing(formURL string) *AppError {
	return &AppError{
		Code:    ErrTokenMissing,
		Message: fmt.Sprintf("no csrf token on form page %s", formURL),
	}
}

func IDMissing(what string) *AppError {
	return &AppError{
		Code:    ErrIDMissing,
		Message: fmt.Sprintf("could not extract %s from response", what),
	}
}

// IsUnauthorized reports whether err is a fatal login failure.
// Everything else is skippable under the best-effort policy.
func IsUnauthorized(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrUnauthorized
	}
	return false
}
