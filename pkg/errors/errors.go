package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies failures so the transport can pick a status code
type ErrorCategory string

const (
	// NotFound - session or artifact absent, a routine outcome
	CategoryNotFound ErrorCategory = "not_found"
	// Validation - request carried nothing acceptable
	CategoryValidation ErrorCategory = "validation"
	// PayloadTooLarge - request body exceeded the configured cap
	CategoryPayloadTooLarge ErrorCategory = "payload_too_large"
	// Internal - I/O, decode or unexpected failures
	CategoryInternal ErrorCategory = "internal"
)

// IntakeError is the typed error returned across package boundaries
type IntakeError struct {
	Category  ErrorCategory
	Module    string
	Operation string
	Message   string
	Cause     error
	Context   map[string]string
}

// Error implements the error interface
func (e *IntakeError) Error() string {
	if e.Cause != nil && e.Category == CategoryInternal {
		return fmt.Sprintf("%s: %s: %v", e.Module, e.Message, e.Cause)
	}
	if e.Module != "" {
		return fmt.Sprintf("%s: %s", e.Module, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for error unwrapping
func (e *IntakeError) Unwrap() error {
	return e.Cause
}

// Is matches another IntakeError of the same category and module, or the cause
func (e *IntakeError) Is(target error) bool {
	if other, ok := target.(*IntakeError); ok {
		return e.Category == other.Category && (other.Module == "" || e.Module == other.Module)
	}
	return false
}

// WithContext adds string context information to the error
func (e *IntakeError) WithContext(key, value string) *IntakeError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithOperation records the operation that failed
func (e *IntakeError) WithOperation(op string) *IntakeError {
	e.Operation = op
	return e
}

// New creates a new IntakeError
func New(module, message string, category ErrorCategory) *IntakeError {
	return &IntakeError{
		Module:   module,
		Message:  message,
		Category: category,
	}
}

// NotFound creates a not-found error
func NotFound(module, message string) *IntakeError {
	return New(module, message, CategoryNotFound)
}

// Validation creates a validation error
func Validation(module, message string) *IntakeError {
	return New(module, message, CategoryValidation)
}

// Validationf creates a validation error with formatted message
func Validationf(module, format string, args ...interface{}) *IntakeError {
	return New(module, fmt.Sprintf(format, args...), CategoryValidation)
}

// PayloadTooLarge creates a size-limit error
func PayloadTooLarge(module, message string) *IntakeError {
	return New(module, message, CategoryPayloadTooLarge)
}

// Internalf creates an internal error with formatted message
func Internalf(module, format string, args ...interface{}) *IntakeError {
	return New(module, fmt.Sprintf(format, args...), CategoryInternal)
}

// Wrap wraps err as an internal failure unless it already carries a category
func Wrap(err error, module, message string) *IntakeError {
	if err == nil {
		return nil
	}

	wrapped := &IntakeError{
		Module:   module,
		Message:  message,
		Cause:    err,
		Category: CategoryInternal,
	}

	var existing *IntakeError
	if errors.As(err, &existing) {
		wrapped.Category = existing.Category
		wrapped.Operation = existing.Operation
		wrapped.Context = existing.Context
		if existing.Category != CategoryInternal {
			wrapped.Message = existing.Message
		}
	}
	return wrapped
}

// CategoryOf returns the category of err, CategoryInternal when untyped
func CategoryOf(err error) ErrorCategory {
	var typed *IntakeError
	if errors.As(err, &typed) {
		return typed.Category
	}
	return CategoryInternal
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return err != nil && CategoryOf(err) == CategoryNotFound
}

// ContextOf returns the context map of the outermost IntakeError in err
func ContextOf(err error) map[string]string {
	var typed *IntakeError
	if errors.As(err, &typed) {
		return typed.Context
	}
	return nil
}

// MessageOf returns the client-facing message of err. Causes are left out
// so internal details stay in the logs.
func MessageOf(err error) string {
	var typed *IntakeError
	if errors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}
