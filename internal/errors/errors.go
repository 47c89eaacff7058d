package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for codecontext.
// It carries a machine-readable code and kind plus a human-readable message.
type Error struct {
	// Code is the unique error code (e.g., "ERR_405_NOT_INDEXED").
	Code string

	// Kind is the propagation class derived from Code.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against sentinel values built with New.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Kind, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	kind := kindFromCode(code)
	return &Error{
		Code:      code,
		Kind:      kind,
		Message:   message,
		Severity:  severityFromKind(kind),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new Error with a formatted message and no cause.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// FileError creates a filesystem error for a single file.
func FileError(path string, cause error) *Error {
	return New(ErrCodeFileUnreadable, fmt.Sprintf("cannot read %s", path), cause).
		WithDetail("path", path)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// StoreError creates a vector store write error.
func StoreError(message string, cause error) *Error {
	return New(ErrCodeVectorStoreWrite, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether any error in err's chain carries the given code.
func Is(err error, code string) bool {
	e, ok := As(err)
	for ok {
		if e.Code == code {
			return true
		}
		e, ok = As(e.Cause)
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err's chain carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	for ok {
		if e.Kind == kind {
			return true
		}
		e, ok = As(e.Cause)
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current indexing call.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if err carries no Error.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
