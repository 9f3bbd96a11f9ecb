package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCIOError                         // 1: The engine failed (disk, path, capacity, corruption, closed store).
	RetCDecodeError                     // 2: A stored key or value is not valid UTF-8.
	RetCConcurrencyError                // 3: The handle's lock is poisoned, the handle is unusable.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCIOError:
		return "IOError"
	case RetCDecodeError:
		return "DecodeError"
	case RetCConcurrencyError:
		return "ConcurrencyError"
	default:
		return "Unknown"
	}
}

// ErrLockPoisoned is wrapped by every RetCConcurrencyError: an engine call panicked
// while it held the handle's lock.
var ErrLockPoisoned = errors.New("store lock is poisoned by a failed operation")

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the classified error returned by all store handles.
// It wraps the underlying cause, so errors.Is works with engine errors such as
// engine.ErrSearchDisabled.
type Error struct {
	Code RetCode // The classification
	Op   string  // The operation that failed, e.g. "get"
	Err  error   // The underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("scdb %s (%s): %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new classified error.
func NewError(code RetCode, op string, err error) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Err:  err,
	}
}

// CodeOf returns the classification of err: RetCSuccess for nil, the code of a
// wrapped *Error, or RetCIOError for any other error.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCIOError
}

// IsIOError reports whether err is classified as an engine failure.
func IsIOError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCIOError
}

// IsDecodeError reports whether err is classified as an invalid UTF-8 failure.
func IsDecodeError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCDecodeError
}

// IsConcurrencyError reports whether err is classified as a poisoned lock.
func IsConcurrencyError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == RetCConcurrencyError
}
