package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched (errors.Is) by every configuration failure:
// missing credentials, unresolved conversation key, unreachable store at setup.
var ErrConfiguration = errors.New("configuration error")

// ErrStoreFailure is matched (errors.Is) by every failed store operation.
var ErrStoreFailure = errors.New("store failure")

// ErrorKind categorizes activation failures.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindStoreFailure  ErrorKind = "store_failure"
)

// Error is the failure returned by an activation. It carries the operation that
// failed and the underlying cause.
type Error struct {
	Kind ErrorKind
	// Op names the failed step, e.g. "list_append" or "connect".
	Op string
	// Key is the conversation key, when known.
	Key string
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (conversation=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets callers match on the kind sentinels.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrStoreFailure:
		return e.Kind == KindStoreFailure
	}
	return false
}

// ConfigError builds a configuration failure.
func ConfigError(op, key string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Key: key, Err: err}
}

// StoreError builds a store failure.
func StoreError(op, key string, err error) *Error {
	return &Error{Kind: KindStoreFailure, Op: op, Key: key, Err: err}
}

// KindOf reports the kind of err, or "" when err is not an activation failure.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsUnavailable reports whether err is a failure to reach the store at all, as
// opposed to a bad activation.
func IsUnavailable(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindConfiguration && de.Op == "connect"
}
