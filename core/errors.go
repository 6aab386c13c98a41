package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// AuthenticationError indicates that the upstream service rejected our
// credentials or refused a privilege elevation.
type AuthenticationError struct {
	Op  string
	Err error
}

func NewAuthenticationError(op string, err error) error {
	return &AuthenticationError{Op: op, Err: err}
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return e.Op + ": authentication rejected"
	}
	return fmt.Sprintf("%s: authentication rejected: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func IsAuthenticationError(err error) bool {
	_, ok := errors.Cause(err).(*AuthenticationError)
	return ok
}

// TransientUpstreamError is any other upstream fetch failure (network error,
// unexpected response shape). In practice it is most often a silently expired
// session, so it gets the same invalidate-and-retry treatment as an
// AuthenticationError.
type TransientUpstreamError struct {
	Op  string
	Err error
}

func NewTransientUpstreamError(op string, err error) error {
	return &TransientUpstreamError{Op: op, Err: err}
}

func (e *TransientUpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream error: %v", e.Op, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

func IsTransientUpstreamError(err error) bool {
	_, ok := errors.Cause(err).(*TransientUpstreamError)
	return ok
}

// IsRetryable reports whether a fetch failure warrants a session renewal and
// another attempt at the same page/key.
func IsRetryable(err error) bool {
	return IsAuthenticationError(err) || IsTransientUpstreamError(err)
}

// DataShapeError flags an upstream row missing a mandatory field.
// The offending row is skipped and logged; it is never fatal to its batch.
type DataShapeError struct {
	Entity string
	Reason string
}

func NewDataShapeError(entity, reason string) error {
	return &DataShapeError{Entity: entity, Reason: reason}
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("%s: malformed upstream row: %s", e.Entity, e.Reason)
}

func IsDataShapeError(err error) bool {
	_, ok := errors.Cause(err).(*DataShapeError)
	return ok
}

// IntegrityViolation indicates that synchronized data broke a referential
// invariant the analytics engine relies on. It is never recovered from since
// it implies the sync itself is inconsistent.
type IntegrityViolation struct {
	msg string
}

func NewIntegrityViolation(format string, args ...interface{}) error {
	return &IntegrityViolation{msg: fmt.Sprintf(format, args...)}
}

func (e *IntegrityViolation) Error() string { return e.msg }

func IsIntegrityViolation(err error) bool {
	_, ok := errors.Cause(err).(*IntegrityViolation)
	return ok
}
