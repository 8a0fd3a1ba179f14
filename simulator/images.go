package simulator

import (
	"bytes"
	"crypto/sha256"

	"github.com/moffa90/go-mcumgr/protocol"
)

type slot struct {
	data      []byte
	hash      [sha256.Size]byte
	version   string
	confirmed bool
	pending   bool
	permanent bool
}

type pendingImage struct {
	data []byte
	size uint64
	sha  []byte
}

// Image returns the image in slot n, or nil when the slot is empty.
func (d *Device) Image(n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 || n >= len(d.slots) || d.slots[n] == nil {
		return nil
	}
	return append([]byte(nil), d.slots[n].data...)
}

// ActiveVersion returns the version of the running image.
func (d *Device) ActiveVersion() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[0].version
}

// Confirmed reports whether the running image is confirmed.
func (d *Device) Confirmed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[0].confirmed
}

func (d *Device) imageState() *protocol.ImageStateResponse {
	rsp := &protocol.ImageStateResponse{}
	for i, s := range d.slots {
		if s == nil {
			continue
		}
		rsp.Images = append(rsp.Images, protocol.ImageSlot{
			Slot:      uint32(i),
			Version:   s.version,
			Hash:      append([]byte(nil), s.hash[:]...),
			Bootable:  true,
			Pending:   s.pending,
			Confirmed: s.confirmed,
			Active:    i == 0,
			Permanent: s.permanent,
		})
	}
	return rsp
}

func (d *Device) imageUpload(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.ImageUploadRequest
	if err := req.Unmarshal(&r); err != nil {
		return d.fail(req, protocol.RCInvalid)
	}
	if r.Image != 0 {
		return d.fail(req, protocol.RCNotSupported)
	}

	if r.Off == 0 {
		if r.Len == nil {
			return d.fail(req, protocol.RCInvalid)
		}
		if d.slots[1] != nil && d.slots[1].pending {
			return d.fail(req, protocol.RCBadState)
		}
		d.staging = &pendingImage{size: *r.Len, sha: r.SHA}
		d.slots[1] = nil
	}
	up := d.staging
	if up == nil {
		return d.fail(req, protocol.RCBadState)
	}

	held := uint64(len(up.data))
	if r.Off == held && d.faults.stallUploads == 0 {
		chunk := r.Data
		if d.faults.writeLimit > 0 && len(chunk) > d.faults.writeLimit {
			chunk = chunk[:d.faults.writeLimit]
		}
		if held+uint64(len(chunk)) > up.size {
			return d.fail(req, protocol.RCInvalid)
		}
		up.data = append(up.data, chunk...)
	} else if d.faults.stallUploads > 0 {
		d.faults.stallUploads--
	}

	rsp := &protocol.ImageUploadResponse{Off: uint64(len(up.data))}
	if uint64(len(up.data)) == up.size {
		sum := sha256.Sum256(up.data)
		if up.sha != nil {
			match := bytes.Equal(up.sha, sum[:])
			rsp.Match = &match
		}
		d.slots[1] = &slot{data: up.data, hash: sum, version: d.opts.UploadVersion}
		d.staging = nil
	}
	return d.reply(req, rsp)
}

func (d *Device) imageStateWrite(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.ImageStateWriteRequest
	if err := req.Unmarshal(&r); err != nil {
		return d.fail(req, protocol.RCInvalid)
	}

	switch {
	case len(r.Hash) == 0 && r.Confirm:
		d.slots[0].confirmed = true
	case len(r.Hash) == 0:
		return d.fail(req, protocol.RCInvalid)
	case bytes.Equal(r.Hash, d.slots[0].hash[:]):
		if r.Confirm {
			d.slots[0].confirmed = true
		}
	case d.slots[1] != nil && bytes.Equal(r.Hash, d.slots[1].hash[:]):
		d.slots[1].pending = true
		d.slots[1].permanent = r.Confirm
	default:
		return d.fail(req, protocol.RCNoEntry)
	}
	return d.reply(req, d.imageState())
}

func (d *Device) imageErase(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.ImageEraseRequest
	if err := req.Unmarshal(&r); err != nil {
		return d.fail(req, protocol.RCInvalid)
	}
	if d.slots[1] != nil && d.slots[1].pending {
		return d.fail(req, protocol.RCBadState)
	}
	d.slots[1] = nil
	d.staging = nil
	return d.reply(req, &protocol.EmptyResponse{})
}

// bootSwap applies MCUboot-like swap semantics on reboot. Must hold d.mu.
//
// A pending image in slot 1 is swapped in. A test swap leaves it unconfirmed;
// a permanent swap confirms it. An unconfirmed running image is reverted.
func (d *Device) bootSwap() {
	primary, secondary := d.slots[0], d.slots[1]

	switch {
	case secondary != nil && secondary.pending:
		secondary.pending = false
		secondary.confirmed = secondary.permanent
		secondary.permanent = false
		primary.pending, primary.permanent = false, false
		d.slots[0], d.slots[1] = secondary, primary
	case !primary.confirmed && secondary != nil:
		secondary.confirmed = true
		d.slots[0], d.slots[1] = secondary, primary
	}
}
