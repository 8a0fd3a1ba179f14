package transport

import "context"

// DefaultMTU is the frame size assumed when a link does not negotiate one.
const DefaultMTU = 256

// State is the connection state of a Transport.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// FrameHandler receives one complete inbound frame.
// The slice is owned by the handler once delivered.
type FrameHandler func(frame []byte)

// StateHandler receives connection state changes.
type StateHandler func(State)

// Transport is one physical link to one peripheral.
type Transport interface {
	// Connect establishes the link. It fails with *ConnectError.
	Connect(ctx context.Context) error

	// Send writes one complete frame.
	Send(frame []byte) error

	// Subscribe registers h for inbound frames and returns a function removing it.
	Subscribe(h FrameHandler) (unsubscribe func())

	// Watch registers h for state changes and returns a function removing it.
	Watch(h StateHandler) (unwatch func())

	// Disconnect releases the link. Calling it more than once is a no-op.
	Disconnect() error

	// MTU returns the largest frame the link currently carries.
	MTU() int

	// State returns the current connection state.
	State() State
}
