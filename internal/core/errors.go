package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the sync layer.
type ErrorKind string

const (
	KindTransport     ErrorKind = "transport"
	KindAuthorization ErrorKind = "authorization"
	KindServerLogic   ErrorKind = "server_logic"
	KindLocalStorage  ErrorKind = "local_storage"
	KindInvalidState  ErrorKind = "invalid_state"
)

// Error is a classified failure. errors.Is matches any two errors of the same kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinel errors for use with errors.Is.
var (
	ErrTransport     = &Error{Kind: KindTransport, Message: "remote service unreachable"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "authorization expired"}
	ErrServerLogic   = &Error{Kind: KindServerLogic, Message: "request rejected by server"}
	ErrLocalStorage  = &Error{Kind: KindLocalStorage, Message: "local storage failure"}
	ErrInvalidState  = &Error{Kind: KindInvalidState, Message: "entity is not loaded"}
)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Transport wraps a failure where no response reached the client.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Message: ErrTransport.Message, Err: err}
}

// Authorization reports an expired or rejected session.
func Authorization(message string) error {
	if message == "" {
		message = ErrAuthorization.Message
	}
	return &Error{Kind: KindAuthorization, Message: message}
}

// ServerLogic carries the message the server returned when rejecting an operation.
func ServerLogic(message string) error {
	if message == "" {
		message = ErrServerLogic.Message
	}
	return &Error{Kind: KindServerLogic, Message: message}
}

// LocalStorage wraps a persistent store failure.
func LocalStorage(err error) error {
	return &Error{Kind: KindLocalStorage, Message: ErrLocalStorage.Message, Err: err}
}

// InvalidState reports a mutation against an entity the caller does not hold.
func InvalidState(id string) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf("entity %q is not loaded", id)}
}

// IsUserVisible returns true for failures the UI should surface.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrServerLogic)
}

// IsRetryable returns true for failures where repeating the same call may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
