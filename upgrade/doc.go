// Package upgrade drives a firmware image through the MCUboot upgrade
// sequence: validate, optionally erase, upload, test-boot, reset and
// confirm.
//
// # Phases
//
// The workflow is linear. Depending on the mode some phases are skipped:
//
//	test-and-confirm: validating, [erasing], uploading, awaiting-test-boot,
//	                  testing, awaiting-reset, resetting, confirming, done
//	test-only:        validating, [erasing], uploading, awaiting-test-boot,
//	                  testing, awaiting-reset, resetting, done
//	confirm-only:     validating, [erasing], uploading, confirming, done
//
// Each reset drops the connection and reconnects within a bounded timeout.
// A device that does not come back fails the workflow with
// ErrReconnectTimeout; the firmware state is then unknown, so the workflow
// is never retried automatically.
//
// # Cancellation
//
// Cancel is accepted while validating or uploading. Afterwards the device
// may be mid-transition and Cancel returns a *CannotCancelError.
//
// # Errors
//
// A failed workflow returns a *PhaseError naming the phase that failed:
//
//	if err := up.Wait(); err != nil {
//	    var pe *upgrade.PhaseError
//	    if errors.As(err, &pe) && pe.Phase == upgrade.PhaseResetting {
//	        // device state unknown, inspect manually
//	    }
//	}
package upgrade
