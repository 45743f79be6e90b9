package status

import (
	"errors"
	"fmt"
)

const (
	// IO indicates a file or process I/O failure
	IO Type = 1

	// Config indicates a configuration parse, schema or write failure
	Config Type = 2

	// Crypto indicates a key decoding or length mismatch
	Crypto Type = 3

	// Device indicates an external device command failed or could not be invoked
	Device Type = 4

	// Network indicates a socket bind or socket option failure
	Network Type = 5

	// NotFound indicates that the requested peer doesn't exist in the registry
	NotFound Type = 6

	// Internal indicates some generic internal error
	Internal Type = 7

	// InvalidArgument indicates that the caller passed a malformed value
	InvalidArgument Type = 8
)

// Type is a type of the Error
type Type int32

func (t Type) String() string {
	switch t {
	case IO:
		return "io"
	case Config:
		return "config"
	case Crypto:
		return "crypto"
	case Device:
		return "device"
	case Network:
		return "network"
	case NotFound:
		return "not found"
	case Internal:
		return "internal"
	case InvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

// Error is an internal error
type Error struct {
	ErrorType Type
	Message   string
	// Err is the underlying cause, if any
	Err error
}

// Type returns the Type of the error
func (e *Error) Type() Type {
	return e.ErrorType
}

// Error is an error string
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf returns Error(ErrorType, fmt.Sprintf(format, a...)).
func Errorf(errorType Type, format string, a ...interface{}) error {
	return &Error{
		ErrorType: errorType,
		Message:   fmt.Sprintf(format, a...),
	}
}

// Wrap returns an Error of the given type that keeps err as its cause.
// A nil err yields nil.
func Wrap(errorType Type, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		ErrorType: errorType,
		Message:   fmt.Sprintf(format, a...),
		Err:       err,
	}
}

// FromError returns Error, true if the provided error is of type of Error. nil, false otherwise
func FromError(err error) (s *Error, ok bool) {
	if err == nil {
		return nil, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err, or any error it wraps, is an Error of the given type
func Is(err error, errorType Type) bool {
	if err == nil {
		return false
	}
	s, ok := FromError(err)
	return ok && s.Type() == errorType
}

// NewPeerNotFoundError creates a new Error with NotFound type for a missing peer
func NewPeerNotFoundError(peerKey string) error {
	return Errorf(NotFound, "peer not found: %s", peerKey)
}
