// Package apperr classifies failures so callers can decide whether to
// report, re-read or retry.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class.
type Kind string

const (
	KindValidation Kind = "validation" // malformed request or illegal move; nothing changed
	KindConflict   Kind = "conflict"   // lost a race or stale ownership; re-read and retry
	KindNotFound   Kind = "not_found"  // target vanished between read and write
	KindTransient  Kind = "transient"  // storage or transport hiccup; safe to retry
	KindInternal   Kind = "internal"
)

// Error is a classified error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is through arbitrary wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrTransient  = &Error{Kind: KindTransient}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }

func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Transient wraps an I/O failure. A nil err yields nil.
func Transient(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// KindOf reports the kind of the first classified error in the chain,
// or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
