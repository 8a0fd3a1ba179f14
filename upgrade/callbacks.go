package upgrade

import "time"

// Progress contains information about the workflow progress.
// Passed to ProgressCallback on every phase change and upload acknowledgement.
type Progress struct {
	// Phase is the current workflow phase
	Phase Phase

	// BytesSent is the number of image bytes the device acknowledged
	BytesSent uint64

	// TotalBytes is the image size
	TotalBytes uint64

	// Percentage is the upload completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the workflow started
	ElapsedTime time.Duration
}

// ProgressCallback is called during the workflow to report progress.
// Implementations should return quickly to avoid stalling the upload.
type ProgressCallback func(Progress)

// StateCallback is called with the phase and overall state after every
// change. The final call carries a terminal state.
type StateCallback func(phase Phase, state State)
