package executor

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMalformedMessage    ErrorKind = "malformed_message"
	KindRunNotFound         ErrorKind = "run_not_found"
	KindActionNotRegistered ErrorKind = "action_not_registered"
	KindHandlerFailure      ErrorKind = "handler_failure"
	KindStoreFailure        ErrorKind = "store_failure"
)

var (
	ErrMalformedMessage    = &Error{Kind: KindMalformedMessage}
	ErrRunNotFound         = &Error{Kind: KindRunNotFound}
	ErrActionNotRegistered = &Error{Kind: KindActionNotRegistered}
	ErrHandlerFailure      = &Error{Kind: KindHandlerFailure}
	ErrStoreFailure        = &Error{Kind: KindStoreFailure}
)

// Error is returned by Execute. Matching with errors.Is compares the kind
// only, so errors.Is(err, ErrHandlerFailure) holds for any handler failure.
type Error struct {
	Kind  ErrorKind
	RunID string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.RunID != "" {
		msg = fmt.Sprintf("%s (run %s)", msg, e.RunID)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

// KindOf returns the kind of an executor error, or an empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}
