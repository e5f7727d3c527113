// Package errors provides the error taxonomy shared by the client core.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrPermission ErrorCode = "PERMISSION_DENIED"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Remote API errors
	ErrNetwork    ErrorCode = "NETWORK_ERROR"
	ErrAuthFailed ErrorCode = "AUTH_FAILED"
	ErrServer     ErrorCode = "SERVER_ERROR"

	// Local errors
	ErrStorage         ErrorCode = "STORAGE_ERROR"
	ErrCryptoFailed    ErrorCode = "CRYPTO_FAILED"
	ErrPushUnsupported ErrorCode = "PUSH_UNSUPPORTED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	// Status is the HTTP status reported by the remote API, zero otherwise.
	Status int

	// Fields holds per-field messages for validation failures.
	Fields FieldErrors
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error, or any error it wraps, carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in the chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Message converts err into the text shown to the user.
// Server-supplied and validation messages win; everything else falls back.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return fallback
	}
	switch appErr.Code {
	case ErrServer, ErrNotFound, ErrAuthFailed, ErrPermission:
		if appErr.Message != "" {
			return appErr.Message
		}
	case ErrValidation:
		if len(appErr.Fields) > 0 {
			return appErr.Fields.String()
		}
		if appErr.Message != "" {
			return appErr.Message
		}
	}
	return fallback
}

// FieldErrors maps a form field to its validation message.
type FieldErrors map[string]string

// String renders the messages in field order.
func (f FieldErrors) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, f[k])
	}
	return strings.Join(msgs, "; ")
}

// Validation builds a validation error from field messages.
// It returns nil when fields is empty.
func Validation(fields FieldErrors) error {
	if len(fields) == 0 {
		return nil
	}
	return &AppError{
		Code:    ErrValidation,
		Message: "validation failed",
		Fields:  fields,
	}
}
