package bridge

import "github.com/google/uuid"

// Event names pushed to the EventSink.
const (
	EventFileUploadProgress  = "fileUploadProgress"
	EventUploadProgress      = "uploadProgress"
	EventUpgradeStateChanged = "upgradeStateChanged"
)

// Event is one push notification keyed by instance identifier.
type Event struct {
	Name string `json:"-"`
	ID   string `json:"id"`

	// transfer progress
	Progress  int    `json:"progress,omitempty"`
	BytesSent uint64 `json:"bytesSent,omitempty"`
	TotalSize uint64 `json:"totalSize,omitempty"`

	// upgrade state
	Phase string `json:"phase,omitempty"`
	State string `json:"state,omitempty"`
}

// EventSink receives events. Emit is called from operation goroutines and
// must not block for long.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

type discard struct{}

func (discard) Emit(Event) {}

// NewID returns a random instance identifier.
func NewID() string {
	return uuid.NewString()
}
