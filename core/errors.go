package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// AuthorizationError indicates that a record is locked and the acting
// role does not permit overriding it. It is never downgraded to a no-op.
type AuthorizationError struct {
	Err error
}

func NewAuthorizationError(msg string) error {
	return &AuthorizationError{errors.New(msg)}
}

func (err AuthorizationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// MalformedStateError indicates that a persisted record or history entry
// failed schema validation on read. The offending payload is quarantined
// by the storage adapter; it is never silently dropped since the history
// ledger is the audit trail of record.
type MalformedStateError struct {
	Key    string
	Detail string
	Err    error
}

func NewMalformedStateError(key, detail string, err error) error {
	return &MalformedStateError{Key: key, Detail: detail, Err: err}
}

func (err MalformedStateError) Error() string {
	return fmt.Sprintf("malformed stored state for %q: %s", err.Key, err.Detail)
}

func (err MalformedStateError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
