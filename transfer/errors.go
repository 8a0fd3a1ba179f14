package transfer

import (
	"errors"
	"fmt"
)

// ErrCanceled is the error carried by a canceled session.
var ErrCanceled = errors.New("transfer canceled")

// ErrAlreadyStarted is returned by Start on a session that has been started.
var ErrAlreadyStarted = errors.New("transfer already started")

// ErrMTUTooSmall indicates the link MTU leaves no room for chunk data.
var ErrMTUTooSmall = errors.New("mtu too small for chunk overhead")

// InterruptedError indicates the same chunk kept failing at the transport
// level until the retry budget ran out.
type InterruptedError struct {
	Path     string
	Offset   uint64
	Attempts int
	Err      error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("transfer %s interrupted at offset %d after %d attempts: %v",
		e.Path, e.Offset, e.Attempts, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// StalledError indicates the peripheral kept acknowledging without advancing
// its offset.
type StalledError struct {
	Path     string
	Offset   uint64
	Attempts int
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("transfer %s stalled at offset %d after %d acknowledgements",
		e.Path, e.Offset, e.Attempts)
}

// OffsetError indicates the peripheral reported an offset outside the transfer.
type OffsetError struct {
	Path   string
	Offset uint64
	Total  uint64
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("transfer %s: peer offset %d beyond length %d", e.Path, e.Offset, e.Total)
}

// SizeError indicates the peripheral announced a download larger than allowed.
type SizeError struct {
	Path  string
	Size  uint64
	Limit uint64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("transfer %s: peer length %d exceeds limit %d", e.Path, e.Size, e.Limit)
}

// IsInterrupted returns true if err is or wraps an InterruptedError.
func IsInterrupted(err error) bool {
	var ie *InterruptedError
	return errors.As(err, &ie)
}

// IsStalled returns true if err is or wraps a StalledError.
func IsStalled(err error) bool {
	var se *StalledError
	return errors.As(err, &se)
}
