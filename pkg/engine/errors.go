// Package engine implements the evaluation core: the declaration store,
// the reference graph builder, the resolver/evaluator, and the
// sensitivity tracker.
package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine errors by the failure they represent.
// Declaration- and graph-build-time kinds abort before any provisioning
// call is made; evaluation-time kinds surface alongside partial results.
type ErrorKind string

const (
	// ErrDuplicateIdentifier reports an identifier reused across any
	// declaration namespace.
	ErrDuplicateIdentifier ErrorKind = "duplicate_identifier"

	// ErrTypeMismatch reports a variable default or override that does
	// not conform to the variable's declared type.
	ErrTypeMismatch ErrorKind = "type_mismatch"

	// ErrInvalidDeclaration reports a declaration that is structurally
	// unusable, such as an expression that does not parse.
	ErrInvalidDeclaration ErrorKind = "invalid_declaration"

	// ErrUndeclaredReference reports an expression referencing an
	// identifier that no declaration defines.
	ErrUndeclaredReference ErrorKind = "undeclared_reference"

	// ErrCycleDetected reports a reference cycle; the message names one
	// representative cycle.
	ErrCycleDetected ErrorKind = "cycle_detected"

	// ErrMissingRequiredVariable reports a variable with neither a
	// default nor an override.
	ErrMissingRequiredVariable ErrorKind = "missing_required_variable"

	// ErrProvisioning wraps a failure reported by the provisioning
	// collaborator.
	ErrProvisioning ErrorKind = "provisioning"

	// ErrBlockedByDependency reports a node that was never attempted
	// because a node it references did not resolve.
	ErrBlockedByDependency ErrorKind = "blocked_by_dependency"
)

// Error is a classified engine error carrying the declaration it relates
// to. It never embeds evaluated values, so it is always safe to log.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Node is the declaration identifier the error relates to, if any.
	Node string `json:"node,omitempty"`

	// Attr is the attribute within the declaration, if applicable.
	Attr string `json:"attr,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var where string
	switch {
	case e.Node != "" && e.Attr != "":
		where = fmt.Sprintf(" (node=%s, attr=%s)", e.Node, e.Attr)
	case e.Node != "":
		where = fmt.Sprintf(" (node=%s)", e.Node)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s%s: %v", e.Kind, e.Message, where, e.Err)
	}
	return fmt.Sprintf("[%s] %s%s", e.Kind, e.Message, where)
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is. Two engine errors match when
// their kinds match and, if the target names a node, the nodes match too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Node == "" || e.Node == t.Node
}

// newError creates a classified engine error.
func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithNode adds the declaration identifier the error relates to.
func (e *Error) WithNode(node string) *Error {
	e.Node = node
	return e
}

// WithAttr adds the attribute name the error relates to.
func (e *Error) WithAttr(attr string) *Error {
	e.Attr = attr
	return e
}

// Wrap attaches the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the classification of an error, if it is an engine error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
