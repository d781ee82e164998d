package errclass

import (
	"context"
	"errors"
	"fmt"
)

// Error is a classified client error.
type Error struct {
	Kind      Kind
	Message   string
	RequestID string // Request that produced the error, if any
	Terminal  bool   // Session must be discarded; never retried
	Err       error  // Underlying cause
}

// New creates an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err returns nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, New(KindRoomFull, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Classification returns the table entry for the error's kind.
func (e *Error) Classification() Classification {
	return Classify(e.Kind)
}

// KindOf extracts the kind of err. Context deadlines map to a timeout,
// anything else unclassified is unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectionTimeout
	}
	return KindUnknown
}

// From returns err as an *Error, wrapping it with KindOf(err) if needed.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Wrap(KindOf(err), err)
}

// IsRetryable reports whether err's classification allows a retry.
// Terminal errors are never retryable.
func IsRetryable(err error) bool {
	ce := From(err)
	if ce == nil || ce.Terminal {
		return false
	}
	return Classify(ce.Kind).Retryable
}
