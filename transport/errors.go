package transport

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when no link is established.
var ErrNotConnected = errors.New("transport: not connected")

// ConnectError indicates the link could not be established.
type ConnectError struct {
	// Address is the peripheral address that was dialed
	Address string

	// Err is the underlying failure
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// LinkError indicates the link failed while it was in use.
type LinkError struct {
	// Op is the operation that failed, e.g. "send" or "read"
	Op string

	// Err is the underlying failure
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// IsConnectError returns true if err is or wraps a ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// IsLinkError returns true if err is or wraps a LinkError or ErrNotConnected.
func IsLinkError(err error) bool {
	var le *LinkError
	return errors.As(err, &le) || errors.Is(err, ErrNotConnected)
}
