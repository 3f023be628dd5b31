// Package ascom defines the error taxonomy the device protocol reports to
// clients. Every failure returned by the driver core is either nil or maps
// onto one of these codes.
package ascom

import (
	"context"
	"errors"
	"fmt"
)

type Code int

const (
	OK                   Code = 0
	NotImplemented       Code = 0x400
	InvalidValue         Code = 0x401
	ValueNotSet          Code = 0x402
	NotConnected         Code = 0x407
	InvalidWhileParked   Code = 0x408
	InvalidOperation     Code = 0x40B
	ActionNotImplemented Code = 0x40C
	UnspecifiedError     Code = 0x500
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NotImplemented:
		return "NotImplemented"
	case InvalidValue:
		return "InvalidValue"
	case ValueNotSet:
		return "ValueNotSet"
	case NotConnected:
		return "NotConnected"
	case InvalidWhileParked:
		return "InvalidWhileParked"
	case InvalidOperation:
		return "InvalidOperation"
	case ActionNotImplemented:
		return "ActionNotImplemented"
	}
	return fmt.Sprintf("Code(%#x)", int(c))
}

// Error is a device error with a protocol error number. Err, if set, is
// the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ascom.ErrNotConnected) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotImplemented       = &Error{Code: NotImplemented}
	ErrInvalidValue         = &Error{Code: InvalidValue}
	ErrValueNotSet          = &Error{Code: ValueNotSet}
	ErrNotConnected         = &Error{Code: NotConnected}
	ErrInvalidWhileParked   = &Error{Code: InvalidWhileParked}
	ErrInvalidOperation     = &Error{Code: InvalidOperation}
	ErrActionNotImplemented = &Error{Code: ActionNotImplemented}
)

func Errorf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error with code whose message describes err and that
// unwraps to err.
func Wrap(code Code, err error, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

func NotImplementedf(format string, args ...interface{}) error {
	return Errorf(NotImplemented, format, args...)
}

func InvalidValuef(format string, args ...interface{}) error {
	return Errorf(InvalidValue, format, args...)
}

func ValueNotSetf(format string, args ...interface{}) error {
	return Errorf(ValueNotSet, format, args...)
}

func NotConnectedf(format string, args ...interface{}) error {
	return Errorf(NotConnected, format, args...)
}

func InvalidWhileParkedf(format string, args ...interface{}) error {
	return Errorf(InvalidWhileParked, format, args...)
}

func InvalidOperationf(format string, args ...interface{}) error {
	return Errorf(InvalidOperation, format, args...)
}

// CodeOf returns the protocol error number for err. A caller that gave up
// waiting gets InvalidOperation. Any other error outside the taxonomy
// reports UnspecifiedError.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return InvalidOperation
	}
	return UnspecifiedError
}

// Message returns the text a client should see for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
