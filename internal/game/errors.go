package game

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an intent or lobby request was rejected.
type ErrorKind string

const (
	KindIllegalIntent ErrorKind = "illegal_intent"
	KindNotFound      ErrorKind = "not_found"
	KindCapacity      ErrorKind = "capacity"
	KindForbidden     ErrorKind = "forbidden"
)

// IntentError is returned for every rejected request. It never implies a state change.
type IntentError struct {
	Kind   ErrorKind
	Reason string
}

func (e *IntentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func illegal(format string, args ...interface{}) error {
	return &IntentError{Kind: KindIllegalIntent, Reason: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) error {
	return &IntentError{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func capacity(format string, args ...interface{}) error {
	return &IntentError{Kind: KindCapacity, Reason: fmt.Sprintf(format, args...)}
}

func forbidden(format string, args ...interface{}) error {
	return &IntentError{Kind: KindForbidden, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind of err, or "" when err is not an IntentError.
func KindOf(err error) ErrorKind {
	var ie *IntentError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// ErrRoomNotFound is returned by the store when a room code is unknown.
var ErrRoomNotFound = &IntentError{Kind: KindNotFound, Reason: "room not found"}
