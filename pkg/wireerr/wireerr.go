// Package wireerr implements the closed error taxonomy of the CQL wire
// protocol error codes, and the recovery policy that decides whether an
// error is surfaced to the client, closes the connection, or both.
package wireerr

import "fmt"

// Code is a wire-protocol error code, serialized as a 2-byte value in an
// ERROR body.
type Code uint16

const (
	ServerError          Code = 0x0000
	ProtocolError        Code = 0x000A
	BadCredentials       Code = 0x0100
	UnavailableException Code = 0x1000
	Overloaded           Code = 0x1001
	IsBootstrapping      Code = 0x1002
	TruncateError        Code = 0x1003
	WriteTimeout         Code = 0x1100
	ReadTimeout          Code = 0x1200
	SyntaxError          Code = 0x2000
	Unauthorized         Code = 0x2100
	Invalid              Code = 0x2200
	ConfigError          Code = 0x2300
	AlreadyExists        Code = 0x2400
	Unprepared           Code = 0x2500
)

// Disposition describes what a node does after surfacing an error. It is a
// bitmask: TruncateError and ServerError are both logged and close the
// connection.
type Disposition int

const (
	// ConnectionClosed, if set, means the TCP connection is torn down
	// after the error is surfaced (surfacing may itself be best-effort).
	ConnectionClosed Disposition = 1 << iota
	// Logged, if set, means the error is recorded server-side.
	Logged
)

// SessionUnchanged is the zero Disposition: the error is returned to the
// client and the session is otherwise untouched.
const SessionUnchanged Disposition = 0

// dispositions maps each code to its §7 recovery policy. Codes absent here
// default to ConnectionClosed (unrecognized errors are treated as fatal).
var dispositions = map[Code]Disposition{
	SyntaxError:          SessionUnchanged,
	Invalid:              SessionUnchanged,
	ConfigError:          SessionUnchanged,
	AlreadyExists:        SessionUnchanged,
	Unauthorized:         SessionUnchanged,
	BadCredentials:       SessionUnchanged,
	Unprepared:           SessionUnchanged,
	UnavailableException: SessionUnchanged,
	ReadTimeout:          SessionUnchanged,
	WriteTimeout:         SessionUnchanged,
	TruncateError:        Logged | ConnectionClosed,
	ServerError:          Logged | ConnectionClosed,
	ProtocolError:        ConnectionClosed,
}

// Disposition reports the recovery policy for a code, defaulting to
// closing the connection for anything unrecognized.
func (c Code) Disposition() Disposition {
	if d, ok := dispositions[c]; ok {
		return d
	}
	return ConnectionClosed
}

// Error is a wire-protocol error: a code plus a human-readable message,
// exactly what an ERROR frame body carries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a wire code to an underlying error, preserving it for
// errors.Unwrap/errors.Is chains while fixing the message seen by clients.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}
