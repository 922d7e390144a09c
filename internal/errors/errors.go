package errors

import "fmt"

// ErrorCode represents a keep error code.
type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"           // id or version missing
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"       // malformed tag, oversized inline text, conflicting flags
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE" // embedding or LLM provider unreachable
	ErrTxAborted          ErrorCode = "TX_ABORTED"          // retryable store-level failure
	ErrCorruption         ErrorCode = "CORRUPTION"          // integrity check failed on a stored row
	ErrInternal           ErrorCode = "INTERNAL"            // everything else
)

// KeepError represents a structured error with code and details.
type KeepError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *KeepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFound creates an error for when an item cannot be found.
func NewNotFound(id string) *KeepError {
	return &KeepError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewVersionNotFound creates an error for a version offset beyond history.
func NewVersionNotFound(id string, offset int) *KeepError {
	return &KeepError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("no version @V{%d} for %s", offset, id),
		Details: map[string]any{"id": id, "offset": offset},
	}
}

// NewInvalidInput creates an error for invalid request parameters.
func NewInvalidInput(msg string) *KeepError {
	return &KeepError{
		Code:    ErrInvalidInput,
		Message: msg,
	}
}

// NewBackendUnavailable creates an error for an unreachable provider.
// The kind names the provider ("embedding", "summarization", "vector").
func NewBackendUnavailable(kind string, err error) *KeepError {
	msg := kind + " backend unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s backend unavailable: %v", kind, err)
	}
	return &KeepError{
		Code:    ErrBackendUnavailable,
		Message: msg,
		Details: map[string]any{"backend": kind},
	}
}

// NewTxAborted creates a retryable error for an aborted store transaction.
func NewTxAborted(err error) *KeepError {
	return &KeepError{
		Code:    ErrTxAborted,
		Message: fmt.Sprintf("transaction aborted: %v", err),
	}
}

// NewCorruption creates a fatal error for a failed row integrity check.
func NewCorruption(msg string) *KeepError {
	return &KeepError{
		Code:    ErrCorruption,
		Message: msg,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *KeepError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &KeepError{
		Code:    ErrInternal,
		Message: msg,
	}
}

// Is checks if an error is a KeepError with the given code.
func Is(err error, code ErrorCode) bool {
	if kErr, ok := err.(*KeepError); ok {
		return kErr.Code == code
	}
	return false
}
