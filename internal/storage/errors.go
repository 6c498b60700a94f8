package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a remote storage call did not succeed
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindRemoteUnavailable ErrorKind = "remote_unavailable"
	KindAuthRequired      ErrorKind = "auth_required"
	KindTimeout           ErrorKind = "timeout"
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindUnknown           ErrorKind = "unknown"
)

var (
	// ErrNotFound is returned by remote stores when a document does not exist
	ErrNotFound = errors.New("not found")

	ErrRemoteNotConfigured = &Error{Op: "remote", Kind: KindRemoteUnavailable, Err: errors.New("remote storage not configured")}
	ErrNoIdentity          = &Error{Op: "remote", Kind: KindAuthRequired, Err: errors.New("identity not resolved")}
)

// Error is a classified storage failure
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PartialWriteError reports that the leading Applied entries of a batch were
// written before Err stopped it
type PartialWriteError struct {
	Applied int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d entries applied: %v", e.Applied, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind
func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the classification of err. Unclassified errors are KindUnknown,
// except context deadlines which are KindTimeout.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// Classify wraps err for op. Callers pass a driver specific predicate for
// permission errors; everything else falls back to KindOf.
func Classify(op string, err error, denied func(error) bool) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if denied != nil && denied(err) {
		return NewError(op, KindPermissionDenied, err)
	}
	return NewError(op, KindOf(err), err)
}
