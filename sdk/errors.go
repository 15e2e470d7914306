package sdk

import (
	"errors"
	"fmt"

	"rfid_session_go/internal/protocol/tmr"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindConnectFailed
	KindNotConnected
	KindInvalidPlan
	KindTagBufferFull
	KindEmbeddedOpFailed
	KindAuthDenied
	KindUnsupported
	KindNoSupportedRegion
	KindSessionBusy
	KindDevice
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectFailed:
		return "connect failed"
	case KindNotConnected:
		return "not connected"
	case KindInvalidPlan:
		return "invalid read plan"
	case KindTagBufferFull:
		return "tag buffer full"
	case KindEmbeddedOpFailed:
		return "embedded operation failed"
	case KindAuthDenied:
		return "authentication denied"
	case KindUnsupported:
		return "unsupported"
	case KindNoSupportedRegion:
		return "no supported region"
	case KindSessionBusy:
		return "session busy"
	case KindDevice:
		return "device error"
	case KindTransport:
		return "transport error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type returned by the session.
// Code carries the device status or embedded operation code when there is one.
type Error struct {
	Kind ErrorKind
	Op   string
	Code uint16
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (0x%04X)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, sdk.ErrTimeout).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == 0 || t.Code == e.Code
}

var (
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrConnectFailed     = &Error{Kind: KindConnectFailed}
	ErrNotConnected      = &Error{Kind: KindNotConnected}
	ErrInvalidPlan       = &Error{Kind: KindInvalidPlan}
	ErrTagBufferFull     = &Error{Kind: KindTagBufferFull}
	ErrEmbeddedOpFailed  = &Error{Kind: KindEmbeddedOpFailed}
	ErrAuthDenied        = &Error{Kind: KindAuthDenied}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
	ErrNoSupportedRegion = &Error{Kind: KindNoSupportedRegion}
	ErrSessionBusy       = &Error{Kind: KindSessionBusy}
	ErrTransport         = &Error{Kind: KindTransport}
)

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a session error, or 0 for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// statusError maps a non-ok device status onto the error taxonomy.
func statusError(op string, status uint16) *Error {
	kind := KindDevice
	switch status {
	case tmr.StatusTagBufferFull:
		kind = KindTagBufferFull
	case tmr.StatusUnsupported, tmr.StatusInvalidOpcode:
		kind = KindUnsupported
	case tmr.StatusInvalidParam:
		kind = KindInvalidPlan
	}
	return &Error{Kind: kind, Op: op, Code: status, Err: errors.New(tmr.StatusText(status))}
}
