// Package apperr defines the error taxonomy shared by all sharing and
// team services. Every mutating operation either fully succeeds or
// returns exactly one of these kinds; storage failures are wrapped
// unchanged so callers can still unwrap the driver error.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// KindValidation marks a missing or malformed required identifier,
	// rejected before any I/O.
	KindValidation Kind = iota + 1
	// KindNotFound marks a token, relationship, membership, or note that
	// does not exist.
	KindNotFound
	// KindExpired marks an invite token past its expiry.
	KindExpired
	// KindConflict marks a structural invariant violation, e.g. removing
	// the last admin of a team.
	KindConflict
	// KindStore wraps an underlying persistence failure.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by the service layer.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

// NotFound returns a KindNotFound error.
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

// Expired returns a KindExpired error.
func Expired(msg string) *Error { return &Error{Kind: KindExpired, Msg: msg} }

// Conflict returns a KindConflict error.
func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

// Store wraps err as a KindStore error. msg names the failed operation.
func Store(msg string, err error) *Error { return &Error{Kind: KindStore, Msg: msg, Err: err} }

// IsKind reports whether err is (or wraps) an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
