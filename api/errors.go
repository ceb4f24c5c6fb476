// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-netmap.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrDeviceOpen       = errors.New("netmap device open failed")
	ErrRegistration     = errors.New("netmap registration failed")
	ErrMapping          = errors.New("netmap memory mapping failed")
	ErrInvalidRingIndex = errors.New("invalid ring index")
	ErrSync             = errors.New("netmap ring sync failed")
	ErrOutOfBounds      = errors.New("offset outside mapped region")
	ErrInterfaceName    = errors.New("invalid interface name")
	ErrSessionClosed    = errors.New("netmap session is closed")
	ErrStreamClosed     = errors.New("ring stream is closed")
	ErrReactorClosed    = errors.New("reactor is closed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotSupported     = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeDeviceOpen
	ErrCodeRegistration
	ErrCodeMapping
	ErrCodeInvalidRingIndex
	ErrCodeSync
	ErrCodeOutOfBounds
	ErrCodeInvalidArgument
	ErrCodeNotSupported
	ErrCodeInternal
)

var codeSentinels = map[ErrorCode]error{
	ErrCodeDeviceOpen:       ErrDeviceOpen,
	ErrCodeRegistration:     ErrRegistration,
	ErrCodeMapping:          ErrMapping,
	ErrCodeInvalidRingIndex: ErrInvalidRingIndex,
	ErrCodeSync:             ErrSync,
	ErrCodeOutOfBounds:      ErrOutOfBounds,
	ErrCodeInvalidArgument:  ErrInvalidArgument,
	ErrCodeNotSupported:     ErrNotSupported,
}

// String returns the short name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeDeviceOpen:
		return "device_open"
	case ErrCodeRegistration:
		return "registration"
	case ErrCodeMapping:
		return "mapping"
	case ErrCodeInvalidRingIndex:
		return "invalid_ring_index"
	case ErrCodeSync:
		return "sync"
	case ErrCodeOutOfBounds:
		return "out_of_bounds"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotSupported:
		return "not_supported"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
// errors.Is matches both the wrapped cause and the sentinel of its code.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's code.
func (e *Error) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error carrying cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
