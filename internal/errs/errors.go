// Package errs provides the unified error type used across autopg.
//
// Every boundary layer (config reading and writing, pool generation,
// system probing, env overrides) wraps its native errors into *errs.Error
// before returning them. The CLI uses the Is* predicates to decide how to
// report a failure without caring which layer produced it.
//
// Usage:
//
//	// In a writer, wrap the os error:
//	return errs.Wrap(errs.ErrKindIOFailed, "write postgresql.conf", err)
//
//	// In a command, check the kind:
//	if errs.IsInvalidInput(err) {
//	    fmt.Fprintln(stderr, "configuration is invalid:", err)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing the failing layer.
// The computation packages never return errors; only the I/O, probing and
// validation boundaries map their failures to one of these kinds.
type ErrKind int

const (
	ErrKindUnknown      ErrKind = iota
	ErrKindNotFound             // missing config file or command
	ErrKindInvalidInput         // validation failure, bad override
	ErrKindParseFailed          // malformed TOML/YAML, unparsable version
	ErrKindUnsupported          // feature deliberately not implemented
	ErrKindIOFailed             // read/write/backup failure
	ErrKindProbeFailed          // system fact could not be collected
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindParseFailed:
		return "parse_failed"
	case ErrKindUnsupported:
		return "unsupported"
	case ErrKindIOFailed:
		return "io_failed"
	case ErrKindProbeFailed:
		return "probe_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by autopg's boundary layers.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // underlying os/parser error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing file or command.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsInvalidInput reports whether err is a validation failure.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsParseFailed reports whether err came from a malformed document or string.
func IsParseFailed(err error) bool {
	return kindOf(err) == ErrKindParseFailed
}

// IsUnsupported reports whether err signals a feature that is not implemented.
func IsUnsupported(err error) bool {
	return kindOf(err) == ErrKindUnsupported
}

// IsIOFailed reports whether err is a filesystem failure.
func IsIOFailed(err error) bool {
	return kindOf(err) == ErrKindIOFailed
}

// IsProbeFailed reports whether err is a system probe failure.
func IsProbeFailed(err error) bool {
	return kindOf(err) == ErrKindProbeFailed
}

// KindOf returns the ErrKind of the first *Error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
