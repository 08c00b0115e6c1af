// Package errors provides the typed errors used by the collaborators,
// persistence and HTTP layers. Checks go through errors.Is / errors.As, or
// the Is helper below with one of the Err* sentinels.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindDB         Kind = "db"
	KindExternal   Kind = "external"
	KindConfig     Kind = "config"
	KindConflict   Kind = "conflict"
)

// Error carries where a failure happened and a message safe to show an
// operator. System names the remote service for KindExternal.
type Error struct {
	Kind   Kind
	Op     string
	Msg    string
	System string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := string(e.Kind)
	if e.Kind == KindExternal && e.System != "" {
		prefix = e.System
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, which makes the sentinels
// below usable with the standard errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Kind == e.Kind
}

func NewValidation(op, msg string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Err: err}
}

func NewNotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func NewDB(op, msg string, err error) error {
	return &Error{Kind: KindDB, Op: op, Msg: msg, Err: err}
}

func NewExternal(op, system, msg string, err error) error {
	return &Error{Kind: KindExternal, Op: op, System: system, Msg: msg, Err: err}
}

func NewConfig(op, msg string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Msg: msg, Err: err}
}

func NewConflict(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// Sentinels for kind checks: errors.Is(err, ErrNotFound).
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrDB         = &Error{Kind: KindDB}
	ErrExternal   = &Error{Kind: KindExternal}
	ErrConfig     = &Error{Kind: KindConfig}
	ErrConflict   = &Error{Kind: KindConflict}
)

// Is reports whether err carries the same kind as target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// KindOf returns the kind of the outermost *Error in the chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
