// ABOUTME: Error taxonomy for widget client failures
// ABOUTME: ErrorKind classifies failures; Error wraps the cause with a user-facing reason

package widget

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by backends and stores when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies a client-side failure.
type ErrorKind string

const (
	ErrorConfigLoad   ErrorKind = "CONFIG_LOAD_FAILURE"
	ErrorValidation   ErrorKind = "VALIDATION_FAILURE"
	ErrorStart        ErrorKind = "START_FAILURE"
	ErrorSend         ErrorKind = "SEND_FAILURE"
	ErrorHistoryFetch ErrorKind = "HISTORY_FETCH_FAILURE"
	ErrorResume       ErrorKind = "RESUME_FAILURE"
)

// Fatal reports whether the kind aborts widget construction.
func (k ErrorKind) Fatal() bool {
	return k == ErrorConfigLoad
}

// Error is a classified failure. Reason is safe to show to the guest.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("widget: %s (%s)", e.Kind, e.Reason)
	}
	return fmt.Sprintf("widget: %s (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var werr *Error
	if !errors.As(err, &werr) {
		return false
	}
	return werr.Kind == kind
}
