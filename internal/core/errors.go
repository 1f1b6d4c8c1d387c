package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ledger failures so adapters can map them without string matching.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindInvariant  ErrorKind = "invariant"
)

// Error is returned for every rejected ledger operation. Infrastructure failures
// (connection loss, unexpected SQL errors) are plain wrapped errors instead.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Remaining is set on box-count conflicts to the number of unchecked boxes left.
	Remaining *int
}

func (e *Error) Error() string { return e.Msg }

// Is matches a bare sentinel of the same kind, so errors.Is(err, ErrConflict) works
// through any amount of %w wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrInvariant  = &Error{Kind: KindInvariant}
)

// KindOf returns the kind of a ledger error, or "" for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invariantf(format string, args ...any) error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

func remainingConflict(requested, remaining int) error {
	r := remaining
	return &Error{
		Kind:      KindConflict,
		Msg:       fmt.Sprintf("cannot check more boxes than remaining: requested %d, remaining %d", requested, remaining),
		Remaining: &r,
	}
}

// NewError builds a ledger error of the given kind for layers outside core.
func NewError(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
