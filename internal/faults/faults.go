// Package faults defines the error taxonomy shared by every device-facing
// operation: transport failures, vendor rejections and missing device
// configuration all surface as *Error values carrying a Kind.
//
// Callers test the class with errors.Is against the sentinels:
//
//	if errors.Is(err, faults.ErrNotFound) { ... }
//
// or extract the details with errors.As:
//
//	var fe *faults.Error
//	if errors.As(err, &fe) && fe.VendorCode == 2 { ... } // device busy
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a device-facing failure.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAuthentication
	KindBadRequest
	KindConnection
	KindTimeout
	KindDevice
	KindSession
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindNotFound:       "not_found",
	KindAuthentication: "authentication",
	KindBadRequest:     "bad_request",
	KindConnection:     "connection",
	KindTimeout:        "timeout",
	KindDevice:         "device",
	KindSession:        "session",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels matched by (*Error).Is. They never appear wrapped on their own.
var (
	ErrNotFound       = errors.New("faults: not found")
	ErrAuthentication = errors.New("faults: authentication failed")
	ErrBadRequest     = errors.New("faults: bad request")
	ErrConnection     = errors.New("faults: connection failed")
	ErrTimeout        = errors.New("faults: timed out")
	ErrDevice         = errors.New("faults: device error")
	ErrSession        = errors.New("faults: session acquisition failed")
)

var kindSentinels = map[Kind]error{
	KindNotFound:       ErrNotFound,
	KindAuthentication: ErrAuthentication,
	KindBadRequest:     ErrBadRequest,
	KindConnection:     ErrConnection,
	KindTimeout:        ErrTimeout,
	KindDevice:         ErrDevice,
	KindSession:        ErrSession,
}

// Error is a classified device-facing failure.
type Error struct {
	Kind     Kind
	Op       string // operation, e.g. "sync_users" or "GET /ISAPI/System/status"
	DeviceID string

	// StatusCode is the HTTP status, when the failure came from a response.
	StatusCode int

	// Vendor fields from an ISAPI ResponseStatus body.
	VendorCode   int
	VendorStatus string
	SubStatus    string

	Message string
	Err     error
}

// Error renders "op [device]: kind: message: cause".
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.DeviceID != "" {
			b.WriteString(" [")
			b.WriteString(e.DeviceID)
			b.WriteString("]")
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. It returns nil for a nil err.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithDevice returns a copy of e tagged with deviceID.
func (e *Error) WithDevice(deviceID string) *Error {
	cp := *e
	cp.DeviceID = deviceID
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransport reports whether err is a connection, timeout or authentication
// failure; the classes that make a whole device unusable rather than one
// record.
func IsTransport(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindTimeout, KindAuthentication:
		return true
	default:
		return false
	}
}
