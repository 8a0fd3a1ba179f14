package simulator

import "github.com/moffa90/go-mcumgr/protocol"

type faults struct {
	disconnectAfter int
	dropResponses   int
	corruptNext     int
	stallUploads    int
	writeLimit      int
	refuseConnects  bool
	errors          map[protocol.CommandKey][]protocol.ReturnCode
}

// DisconnectAfter drops the link when the n-th request from now arrives.
// That request is not processed.
func (d *Device) DisconnectAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.disconnectAfter = n
}

// DropResponses processes the next n requests without answering them.
func (d *Device) DropResponses(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.dropResponses = n
}

// CorruptNext sends a malformed frame before each of the next n responses.
func (d *Device) CorruptNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.corruptNext = n
}

// StallUploads answers the next n upload chunks with the current offset
// without accepting their data.
func (d *Device) StallUploads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.stallUploads = n
}

// LimitWrites accepts at most n bytes of each upload chunk. Zero removes the limit.
func (d *Device) LimitWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.writeLimit = n
}

// RefuseConnects makes Connect fail while refuse is true.
func (d *Device) RefuseConnects(refuse bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults.refuseConnects = refuse
}

// InjectError answers the next request for (group, id) with rc.
// Calls queue up in order.
func (d *Device) InjectError(group protocol.Group, id uint8, rc protocol.ReturnCode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faults.errors == nil {
		d.faults.errors = make(map[protocol.CommandKey][]protocol.ReturnCode)
	}
	key := protocol.CommandKey{Group: group, ID: id}
	d.faults.errors[key] = append(d.faults.errors[key], rc)
}

// SetMTU changes the frame size reported to the host.
func (d *Device) SetMTU(mtu int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtu = mtu
}

// injectedError pops a queued return code for key. Must hold d.mu.
func (d *Device) injectedError(key protocol.CommandKey) (protocol.ReturnCode, bool) {
	queue := d.faults.errors[key]
	if len(queue) == 0 {
		return protocol.RCOK, false
	}
	d.faults.errors[key] = queue[1:]
	return queue[0], true
}
