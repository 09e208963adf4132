// Package corekind provides the typed error taxonomy shared by every core
// subsystem: the scheduler, the component kernel, and the MCP surface all
// return *Error values so callers at any layer can classify a failure with
// errors.As instead of matching on error strings.
package corekind

import (
	"errors"
	"fmt"
)

// Kind is a stable, flat error classification surfaced across package
// boundaries. The JSON-RPC layer maps each Kind to a wire error code.
type Kind string

const (
	ConfigInvalid          Kind = "config_invalid"
	ComponentMissingDep    Kind = "component_missing_dep"
	ComponentCycle         Kind = "component_cycle"
	ComponentInitFailed    Kind = "component_init_failed"
	QueueClosed            Kind = "queue_closed"
	WorkerPanic            Kind = "worker_panic"
	Cancelled              Kind = "cancelled"
	DeadlineExceeded       Kind = "deadline_exceeded"
	ToolNotFound           Kind = "tool_not_found"
	ToolInvalidInput       Kind = "tool_invalid_input"
	ToolInvalidOutput      Kind = "tool_invalid_output"
	ToolExecutionFailed    Kind = "tool_execution_failed"
	SessionExpired         Kind = "session_expired"
	CapabilityUnsupported  Kind = "capability_unsupported"
	ProtocolParseError     Kind = "protocol_parse_error"
	ProtocolInvalidRequest Kind = "protocol_invalid_request"
	ProtocolInvalidParams  Kind = "protocol_invalid_params"
	ProtocolMethodNotFound Kind = "protocol_method_not_found"
	ResourceNotFound       Kind = "resource_not_found"
	Unauthorized           Kind = "unauthorized"
	InternalError          Kind = "internal_error"
)

// Error is the structured error value returned by core packages. Message is
// the human-readable summary; Details carries structured context (the path
// that failed, the dependency name, the offending field) for logging and for
// the JSON-RPC error.data field.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any, so errors.Is/As traverse it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithDetails attaches structured details and returns the same *Error for
// chaining at the call site.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Is reports whether err carries the given Kind, unwrapping wrapped errors.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts the *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind carried by err, or InternalError if err is not a
// *Error (or is nil, in which case the zero Kind is returned with ok=false).
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	if e, ok := As(err); ok {
		return e.Kind, true
	}
	return InternalError, false
}
