package protocol

import (
	"errors"
	"fmt"
)

// ReturnCode is the management return code carried in a response payload.
type ReturnCode int

// Return codes reported by the peripheral.
const (
	// RCOK indicates the command was executed successfully
	RCOK ReturnCode = 0

	// RCUnknown indicates an unknown error occurred
	RCUnknown ReturnCode = 1

	// RCNoMemory indicates the peripheral ran out of memory
	RCNoMemory ReturnCode = 2

	// RCInvalid indicates the request payload is invalid
	RCInvalid ReturnCode = 3

	// RCTimeout indicates the peripheral timed out internally
	RCTimeout ReturnCode = 4

	// RCNoEntry indicates the requested entry does not exist
	RCNoEntry ReturnCode = 5

	// RCBadState indicates the peripheral is in the wrong state for the command
	RCBadState ReturnCode = 6

	// RCMsgSize indicates the response would exceed the buffer size
	RCMsgSize ReturnCode = 7

	// RCNotSupported indicates the command is not supported
	RCNotSupported ReturnCode = 8

	// RCCorrupt indicates corrupted data
	RCCorrupt ReturnCode = 9

	// RCBusy indicates the peripheral is busy with another command
	RCBusy ReturnCode = 10
)

func (rc ReturnCode) String() string {
	switch rc {
	case RCOK:
		return "success"
	case RCUnknown:
		return "unknown error"
	case RCNoMemory:
		return "out of memory"
	case RCInvalid:
		return "invalid payload"
	case RCTimeout:
		return "timeout"
	case RCNoEntry:
		return "no such entry"
	case RCBadState:
		return "bad state"
	case RCMsgSize:
		return "message too large"
	case RCNotSupported:
		return "not supported"
	case RCCorrupt:
		return "corrupt"
	case RCBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown return code %d", int(rc))
	}
}

// RemoteError is returned when the peripheral explicitly rejects a command.
type RemoteError struct {
	// Command is the (group, id) pair that failed
	Command CommandKey

	// Code is the return code from the peripheral
	Code ReturnCode
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s (%d)", e.Command, e.Code, int(e.Code))
}

// Is lets errors.Is match a RemoteError against another RemoteError by code.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	return ok && t.Code == e.Code
}

// ErrNoEntry matches any RemoteError carrying RCNoEntry via errors.Is.
var ErrNoEntry = &RemoteError{Code: RCNoEntry}

// IsRemoteError returns true if err is or wraps a RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsNoEntry returns true if err reports a missing entry.
func IsNoEntry(err error) bool {
	return errors.Is(err, ErrNoEntry)
}

// DecodeError indicates a frame or payload that could not be decoded.
type DecodeError struct {
	// Reason describes what was wrong with the frame
	Reason string

	// Err is the underlying decoder error, if any
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
