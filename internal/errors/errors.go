package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a capsule error code.
type ErrorCode string

const (
	ErrIncompatibleVersion ErrorCode = "INCOMPATIBLE_VERSION" // exit 90
	ErrMissingHandler      ErrorCode = "MISSING_HANDLER"      // exit 90
	ErrCapsuleRuntime      ErrorCode = "CAPSULE_RUNTIME"      // exit 90
	ErrLoadFailed          ErrorCode = "LOAD_FAILED"          // never fatal, skipped at discovery
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // exit 90
	ErrToolUnavailable     ErrorCode = "TOOL_UNAVAILABLE"     // exit 127
	ErrInternal            ErrorCode = "INTERNAL"             // exit 90
)

// Reserved exit codes. Anything else is the Result of a command or of task itself.
const (
	ExitCapsuleError    = 90
	ExitToolUnavailable = 127
)

// CapsuleError represents a structured error with code, capsule, and details.
type CapsuleError struct {
	Code     ErrorCode
	Capsule  string // empty when no single capsule is at fault
	Message  string
	ExitCode int
	Details  map[string]any
	Err      error
}

// Error implements the error interface.
func (e *CapsuleError) Error() string {
	if e.Capsule != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Capsule, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CapsuleError) Unwrap() error {
	return e.Err
}

// NewIncompatibleVersion creates an error for a violated compatibility range.
// what is "taskwarrior-capsules" or "taskwarrior".
func NewIncompatibleVersion(capsule, what, current, min, max string) *CapsuleError {
	msg := fmt.Sprintf("not compatible with version %s of %s; minimum version: %s; maximum version: %s",
		current, what, displayBound(min), displayBound(max))
	return &CapsuleError{
		Code:     ErrIncompatibleVersion,
		Capsule:  capsule,
		ExitCode: ExitCapsuleError,
		Message:  msg,
		Details:  map[string]any{"against": what, "current": current, "min_version": min, "max_version": max},
	}
}

// NewInvalidVersion creates an error for a version string that cannot be parsed.
func NewInvalidVersion(capsule, field, value string, err error) *CapsuleError {
	return &CapsuleError{
		Code:     ErrIncompatibleVersion,
		Capsule:  capsule,
		ExitCode: ExitCapsuleError,
		Message:  fmt.Sprintf("invalid %s %q", field, value),
		Details:  map[string]any{"field": field, "value": value},
		Err:      err,
	}
}

// NewMissingHandler creates an error for a capsule registered for a role it
// does not implement.
func NewMissingHandler(capsule, role, handler string) *CapsuleError {
	return &CapsuleError{
		Code:     ErrMissingHandler,
		Capsule:  capsule,
		ExitCode: ExitCapsuleError,
		Message:  fmt.Sprintf("called as a %s but the %s handler is not implemented", role, handler),
		Details:  map[string]any{"role": role, "handler": handler},
	}
}

// NewCapsuleRuntime wraps an error raised by a capsule's own handler logic.
func NewCapsuleRuntime(capsule string, err error) *CapsuleError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &CapsuleError{
		Code:     ErrCapsuleRuntime,
		Capsule:  capsule,
		ExitCode: ExitCapsuleError,
		Message:  msg,
		Err:      err,
	}
}

// NewCapsuleFailure creates a runtime error from a plain message, for
// capsules that fail without an underlying Go error.
func NewCapsuleFailure(capsule, msg string) *CapsuleError {
	return &CapsuleError{
		Code:     ErrCapsuleRuntime,
		Capsule:  capsule,
		ExitCode: ExitCapsuleError,
		Message:  msg,
	}
}

// NewLoadFailed creates an error for a discovery candidate that cannot be loaded.
func NewLoadFailed(source string, err error) *CapsuleError {
	msg := "load failed"
	if err != nil {
		msg = err.Error()
	}
	return &CapsuleError{
		Code:     ErrLoadFailed,
		Message:  msg,
		ExitCode: ExitCapsuleError,
		Details:  map[string]any{"source": source},
		Err:      err,
	}
}

// NewInvalidRequest creates an error for invalid arguments to a capsule.
func NewInvalidRequest(msg string) *CapsuleError {
	return &CapsuleError{
		Code:     ErrInvalidRequest,
		Message:  msg,
		ExitCode: ExitCapsuleError,
	}
}

// NewToolUnavailable creates an error for when the external tool cannot be started.
func NewToolUnavailable(binary string, err error) *CapsuleError {
	return &CapsuleError{
		Code:     ErrToolUnavailable,
		Message:  fmt.Sprintf("could not run %s: %v", binary, err),
		ExitCode: ExitToolUnavailable,
		Details:  map[string]any{"binary": binary},
		Err:      err,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *CapsuleError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CapsuleError{
		Code:     ErrInternal,
		Message:  msg,
		ExitCode: ExitCapsuleError,
		Err:      err,
	}
}

// Is checks if an error is (or wraps) a CapsuleError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CapsuleError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// As returns the CapsuleError wrapped by err, if any.
func As(err error) (*CapsuleError, bool) {
	var cErr *CapsuleError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

// ExitCode returns the exit status a failed run should terminate with.
func ExitCode(err error) int {
	if cErr, ok := As(err); ok && cErr.ExitCode != 0 {
		return cErr.ExitCode
	}
	return ExitCapsuleError
}

func displayBound(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
