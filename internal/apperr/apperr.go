// Package apperr defines the error taxonomy shared by workflows and handlers.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindLocked            Kind = "locked"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInvalidTransition Kind = "invalid_transition"
	KindNoOp              Kind = "no_op"
	KindInternal          Kind = "internal"
)

// Error is a classified failure with a stable code and a client-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error

	// LockedUntil is set for KindLocked.
	LockedUntil *time.Time
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when the target has one, code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an underlying cause to a new error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, "validation_error", message) }

func NotFound(message string) *Error { return New(KindNotFound, "not_found", message) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, "unauthorized", message) }

func Forbidden(message string) *Error { return New(KindForbidden, "forbidden", message) }

func NoOp(message string) *Error { return New(KindNoOp, "no_op", message) }

func InsufficientFunds(message string) *Error {
	return New(KindInsufficientFunds, "insufficient_funds", message)
}

func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, "invalid_transition", message)
}

// Locked reports an active lockout window ending at until.
func Locked(until time.Time) *Error {
	u := until.UTC()
	return &Error{Kind: KindLocked, Code: "account_locked", Message: "account is temporarily locked", LockedUntil: &u}
}

// Internal wraps an unexpected failure. The message is never shown to clients.
func Internal(err error, op string) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the *Error in err's chain, wrapping unclassified errors as internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "unexpected error")
}

// Postgres error codes classified by FromDB.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgInvalidTextRepresent = "22P02"
)

// FromDB classifies a driver error from operation op. Classified errors pass through.
func FromDB(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(err, KindNotFound, "not_found", op+": not found")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return Wrap(err, KindConflict, "conflict", op+": already exists")
		case pgForeignKeyViolation:
			return Wrap(err, KindNotFound, "not_found", op+": referenced record not found")
		case pgCheckViolation, pgInvalidTextRepresent:
			return Wrap(err, KindValidation, "validation_error", op+": invalid value")
		}
	}
	return Internal(err, op)
}
