package transport

import "sync"

// Hub tracks connection state and fans inbound frames out to subscribers.
// Handlers are always called without the hub lock held, so a handler may
// subscribe, unsubscribe or send.
type Hub struct {
	mu       sync.Mutex
	state    State
	nextID   int
	frames   map[int]FrameHandler
	watchers map[int]StateHandler

	// deliver serializes Deliver calls so frames reach subscribers in order.
	deliver sync.Mutex
}

// Subscribe implements Transport.Subscribe.
func (h *Hub) Subscribe(fn FrameHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.frames == nil {
		h.frames = make(map[int]FrameHandler)
	}
	id := h.nextID
	h.nextID++
	h.frames[id] = fn

	return func() {
		h.mu.Lock()
		delete(h.frames, id)
		h.mu.Unlock()
	}
}

// Watch implements Transport.Watch.
func (h *Hub) Watch(fn StateHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watchers == nil {
		h.watchers = make(map[int]StateHandler)
	}
	id := h.nextID
	h.nextID++
	h.watchers[id] = fn

	return func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}
}

// State returns the last state set.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState records s and notifies watchers if it changed.
func (h *Hub) SetState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	h.state = s
	watchers := make([]StateHandler, 0, len(h.watchers))
	for _, w := range h.watchers {
		watchers = append(watchers, w)
	}
	h.mu.Unlock()

	for _, w := range watchers {
		w(s)
	}
}

// Deliver hands a copy of frame to every subscriber.
func (h *Hub) Deliver(frame []byte) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	subs := make([]FrameHandler, 0, len(h.frames))
	for _, s := range h.frames {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		s(cp)
	}
}
