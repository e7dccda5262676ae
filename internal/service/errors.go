package service

import (
	"errors"
	"fmt"
)

// Kind is the implementation-neutral error taxonomy from spec.md §7, used
// by the HTTP binding to map errors onto status codes.
type Kind string

const (
	KindInvalidInput  Kind = "InvalidInput"
	KindUnauthorized  Kind = "Unauthorized"
	KindForbidden     Kind = "Forbidden"
	KindNotFound      Kind = "NotFound"
	KindConflict      Kind = "Conflict"
	KindInternal      Kind = "Internal"
)

// Error is the single structured error type every Service method returns
// instead of ad hoc sentinels, carrying just enough shape (Kind) for
// transport-layer status mapping plus a human-readable Detail that never
// exposes internals.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error  { return newError(KindInvalidInput, format, args...) }
func unauthorized(format string, args ...any) error   { return newError(KindUnauthorized, format, args...) }
func forbidden(format string, args ...any) error      { return newError(KindForbidden, format, args...) }
func notFound(format string, args ...any) error       { return newError(KindNotFound, format, args...) }
func conflict(format string, args ...any) error       { return newError(KindConflict, format, args...) }
func internal(format string, args ...any) error       { return newError(KindInternal, format, args...) }

// AsError reports whether err is (or wraps) a *Error, matching the
// "already-typed errors are re-raised unchanged" rule of spec.md §7.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
