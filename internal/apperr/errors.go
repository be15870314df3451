// Package apperr classifies errors surfaced by the synthesis, resolution,
// and execution layers so handlers can map them to HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind partitions errors by how callers must react to them.
type Kind int

const (
	// KindNotFound indicates an unknown framework, application, or template.
	KindNotFound Kind = iota
	// KindConflict indicates the applicationId already exists in the
	// writable layer.
	KindConflict
	// KindValidation indicates bad caller input (missing required
	// parameter, malformed upload destination, unresolved mandatory enum).
	KindValidation
	// KindExecution indicates a remote command failed; carried in the
	// execute message log rather than returned synchronously.
	KindExecution
	// KindConfiguration indicates a defect in the template graph itself,
	// such as a reference to an undeclared output.
	KindConfiguration
)

// Error is a classified error with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Execution builds a KindExecution error.
func Execution(format string, args ...any) *Error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...)}
}

// Configuration builds a KindConfiguration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
