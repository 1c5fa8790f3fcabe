package domain

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrorKind tags every failure the core can report so callers branch on the
// kind instead of matching message text.
type ErrorKind string

const (
	KindUnknown           ErrorKind = ""
	KindNoInputMap        ErrorKind = "no_input_map"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindInputBusy         ErrorKind = "input_busy"
	KindQueueFull         ErrorKind = "queue_full"
	KindDeviceUnreachable ErrorKind = "device_unreachable"
	KindPrinter           ErrorKind = "printer"
	KindSessionNotActive  ErrorKind = "session_not_active"
	KindSessionState      ErrorKind = "session_state"
	KindSessionExists     ErrorKind = "session_exists"
	KindSessionNotFound   ErrorKind = "session_not_found"
	KindNoJobFields       ErrorKind = "no_job_fields"
	KindEncoding          ErrorKind = "encoding"
	KindPoolNotFound      ErrorKind = "pool_not_found"
	KindPoolExhausted     ErrorKind = "pool_exhausted"
)

// Error is the tagged error returned by every conductor component.
// Host and Port are only set for device errors.
type Error struct {
	Kind ErrorKind
	Msg  string
	Host string
	Port int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Host != "" {
		msg = fmt.Sprintf("%s (%s)", msg, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind carrying no
// message, which is how the sentinels below are declared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrNoInputMap        = &Error{Kind: KindNoInputMap}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrInputBusy         = &Error{Kind: KindInputBusy}
	ErrQueueFull         = &Error{Kind: KindQueueFull}
	ErrDeviceUnreachable = &Error{Kind: KindDeviceUnreachable}
	ErrPrinter           = &Error{Kind: KindPrinter}
	ErrSessionNotActive  = &Error{Kind: KindSessionNotActive}
	ErrSessionState      = &Error{Kind: KindSessionState}
	ErrSessionExists     = &Error{Kind: KindSessionExists}
	ErrNoJobFields       = &Error{Kind: KindNoJobFields}
	ErrEncoding          = &Error{Kind: KindEncoding}
	ErrPoolNotFound      = &Error{Kind: KindPoolNotFound}
	ErrPoolExhausted     = &Error{Kind: KindPoolExhausted}
)

// ErrSessionNotFound is returned by session stores when no record exists for a lot.
var ErrSessionNotFound = &Error{Kind: KindSessionNotFound}

// Errorf builds a tagged error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with kind.
func Wrap(kind ErrorKind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// DeviceUnreachable builds the error reported when a device cannot be reached.
func DeviceUnreachable(host string, port int, cause error) *Error {
	return &Error{
		Kind: KindDeviceUnreachable,
		Msg:  "device unreachable",
		Host: host,
		Port: port,
		Err:  cause,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsConfiguration reports errors the dispatcher treats as configuration problems.
func IsConfiguration(err error) bool {
	switch KindOf(err) {
	case KindNoInputMap, KindInvalidInput:
		return true
	}
	return false
}

// BlinkCode maps a failure to the number of pulses an operator lamp should
// show for it. Zero means no dedicated code.
func BlinkCode(err error) int {
	switch KindOf(err) {
	case KindNoJobFields:
		return 2
	case KindPrinter, KindDeviceUnreachable:
		return 3
	}
	return 0
}
