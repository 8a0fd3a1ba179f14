package upgrade

import "fmt"

// Phase is one step of the upgrade workflow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseErasing
	PhaseUploading
	PhaseAwaitingTestBoot
	PhaseTesting
	PhaseAwaitingReset
	PhaseResetting
	PhaseConfirming
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseIdle:             "idle",
	PhaseValidating:       "validating",
	PhaseErasing:          "erasing",
	PhaseUploading:        "uploading",
	PhaseAwaitingTestBoot: "awaiting-test-boot",
	PhaseTesting:          "testing",
	PhaseAwaitingReset:    "awaiting-reset",
	PhaseResetting:        "resetting",
	PhaseConfirming:       "confirming",
	PhaseDone:             "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// cancelable reports whether the workflow may still be canceled in p.
// Once the device has been asked to reset it is mid-transition.
func (p Phase) cancelable() bool {
	return p == PhaseValidating || p == PhaseUploading
}

// Mode selects how far the workflow drives the new image.
type Mode int

const (
	// ModeTestAndConfirm test-boots the image, then confirms it once it runs
	ModeTestAndConfirm Mode = iota

	// ModeConfirmOnly marks the uploaded image permanent without a test boot.
	// The swap happens on the next reset, which the workflow does not issue.
	ModeConfirmOnly

	// ModeTestOnly test-boots the image and leaves it unconfirmed
	ModeTestOnly
)

func (m Mode) String() string {
	switch m {
	case ModeTestAndConfirm:
		return "test-and-confirm"
	case ModeConfirmOnly:
		return "confirm-only"
	case ModeTestOnly:
		return "test-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "test-and-confirm":
		return ModeTestAndConfirm, nil
	case "confirm-only":
		return ModeConfirmOnly, nil
	case "test-only":
		return ModeTestOnly, nil
	default:
		return 0, fmt.Errorf("unknown upgrade mode %q", s)
	}
}

// State is the overall status of a workflow.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
