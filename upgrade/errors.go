package upgrade

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is the result of a workflow canceled by the caller.
	ErrCanceled = errors.New("upgrade canceled")

	// ErrAlreadyStarted is returned by Start on a workflow that already ran.
	ErrAlreadyStarted = errors.New("upgrade already started")

	// ErrReconnectTimeout indicates the device did not come back after a
	// reset within the reconnect timeout. The firmware state is unknown and
	// the workflow does not retry.
	ErrReconnectTimeout = errors.New("device did not reconnect after reset")
)

// CannotCancelError is returned by Cancel once the workflow is past the
// point where canceling is safe.
type CannotCancelError struct {
	Phase Phase
}

func (e *CannotCancelError) Error() string {
	return fmt.Sprintf("cannot cancel upgrade in phase %s", e.Phase)
}

// PhaseError records the phase in which the workflow failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("upgrade failed in phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ImageMismatchError indicates the device does not report the uploaded image
// where the workflow expects it.
type ImageMismatchError struct {
	Expected []byte
	Actual   []byte
	Reason   string
}

func (e *ImageMismatchError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("image %x: %s", e.Expected, e.Reason)
	}
	return fmt.Sprintf("image %x: %s (device has %x)", e.Expected, e.Reason, e.Actual)
}

// FailedPhase returns the phase recorded in err, if any.
func FailedPhase(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return PhaseIdle, false
}
