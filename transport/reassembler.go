package transport

import "github.com/moffa90/go-mcumgr/protocol"

// Reassembler rebuilds complete SMP frames from fragments. Links such as BLE
// notifications split one frame across several packets; the header length
// field tells how many bytes belong to the current frame.
type Reassembler struct {
	buf []byte
}

// Push appends a fragment and returns every frame completed by it.
// A fragment that cannot start a valid header discards the buffered bytes
// and returns the decode error; later fragments start a fresh frame.
func (r *Reassembler) Push(fragment []byte) ([][]byte, error) {
	r.buf = append(r.buf, fragment...)

	var frames [][]byte
	for len(r.buf) >= protocol.HeaderSize {
		n, err := protocol.FrameLength(r.buf)
		if err != nil {
			r.buf = nil
			return frames, err
		}
		if len(r.buf) < n {
			break
		}

		frame := make([]byte, n)
		copy(frame, r.buf[:n])
		frames = append(frames, frame)
		r.buf = r.buf[n:]
	}

	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frames, nil
}

// Pending returns the number of buffered bytes not yet part of a complete frame.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset drops buffered bytes, e.g. after a reconnect.
func (r *Reassembler) Reset() {
	r.buf = nil
}
