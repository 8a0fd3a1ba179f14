package simulator

import (
	"crypto/sha256"

	"github.com/moffa90/go-mcumgr/protocol"
)

type pendingFile struct {
	data []byte
	size uint64
}

// handle processes one request and returns its response. Must hold d.mu.
func (d *Device) handle(req *protocol.Envelope) (*protocol.Envelope, bool) {
	if rc, ok := d.injectedError(req.Key()); ok {
		return d.reply(req, &protocol.EmptyResponse{Result: protocol.Result{RC: int(rc)}}), false
	}

	switch req.Key() {
	case protocol.CommandKey{Group: protocol.GroupOS, ID: protocol.OSCmdEcho}:
		var r protocol.EchoRequest
		if err := req.Unmarshal(&r); err != nil {
			return d.fail(req, protocol.RCInvalid), false
		}
		return d.reply(req, &protocol.EchoResponse{R: r.D}), false

	case protocol.CommandKey{Group: protocol.GroupOS, ID: protocol.OSCmdReset}:
		return d.reply(req, &protocol.EmptyResponse{}), true

	case protocol.CommandKey{Group: protocol.GroupFS, ID: protocol.FSCmdStatus}:
		return d.fileStatus(req), false

	case protocol.CommandKey{Group: protocol.GroupFS, ID: protocol.FSCmdHash}:
		return d.fileHash(req), false

	case protocol.CommandKey{Group: protocol.GroupFS, ID: protocol.FSCmdFile}:
		if req.Header.Op == protocol.OpWrite {
			return d.fileUpload(req), false
		}
		return d.fileDownload(req), false

	case protocol.CommandKey{Group: protocol.GroupImage, ID: protocol.ImageCmdState}:
		if req.Header.Op == protocol.OpWrite {
			return d.imageStateWrite(req), false
		}
		return d.reply(req, d.imageState()), false

	case protocol.CommandKey{Group: protocol.GroupImage, ID: protocol.ImageCmdUpload}:
		return d.imageUpload(req), false

	case protocol.CommandKey{Group: protocol.GroupImage, ID: protocol.ImageCmdErase}:
		return d.imageErase(req), false
	}

	return d.fail(req, protocol.RCNotSupported), false
}

func (d *Device) reply(req *protocol.Envelope, v interface{}) *protocol.Envelope {
	rsp, err := protocol.NewResponse(req, v)
	if err != nil {
		d.log.Error("build response", "command", req.Key().String(), "error", err)
		return nil
	}
	return rsp
}

func (d *Device) fail(req *protocol.Envelope, rc protocol.ReturnCode) *protocol.Envelope {
	return d.reply(req, &protocol.EmptyResponse{Result: protocol.Result{RC: int(rc)}})
}

func (d *Device) fileStatus(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.FileStatusRequest
	if err := req.Unmarshal(&r); err != nil || r.Name == "" {
		return d.fail(req, protocol.RCInvalid)
	}
	data, ok := d.files[r.Name]
	if !ok {
		return d.fail(req, protocol.RCNoEntry)
	}
	return d.reply(req, &protocol.FileStatusResponse{Len: uint64(len(data))})
}

func (d *Device) fileHash(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.FileHashRequest
	if err := req.Unmarshal(&r); err != nil || r.Name == "" {
		return d.fail(req, protocol.RCInvalid)
	}
	if r.Type != "" && r.Type != protocol.HashTypeSHA256 {
		return d.fail(req, protocol.RCNotSupported)
	}
	data, ok := d.files[r.Name]
	if !ok {
		return d.fail(req, protocol.RCNoEntry)
	}
	sum := sha256.Sum256(data)
	return d.reply(req, &protocol.FileHashResponse{
		Type:   protocol.HashTypeSHA256,
		Len:    uint64(len(data)),
		Output: sum[:],
	})
}

// fileUpload accepts a chunk only at the offset it expects and always
// answers with the offset it holds, so the host can realign.
func (d *Device) fileUpload(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.FileUploadRequest
	if err := req.Unmarshal(&r); err != nil || r.Name == "" {
		return d.fail(req, protocol.RCInvalid)
	}

	up := d.uploads[r.Name]
	if r.Off == 0 {
		if r.Len == nil {
			return d.fail(req, protocol.RCInvalid)
		}
		up = &pendingFile{size: *r.Len, data: make([]byte, 0, *r.Len)}
		d.uploads[r.Name] = up
	}
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

	if uint64(len(up.data)) == up.size {
		d.files[r.Name] = up.data
		delete(d.uploads, r.Name)
	}
	return d.reply(req, &protocol.FileUploadResponse{Off: uint64(len(up.data))})
}

func (d *Device) fileDownload(req *protocol.Envelope) *protocol.Envelope {
	var r protocol.FileDownloadRequest
	if err := req.Unmarshal(&r); err != nil || r.Name == "" {
		return d.fail(req, protocol.RCInvalid)
	}
	data, ok := d.files[r.Name]
	if !ok {
		return d.fail(req, protocol.RCNoEntry)
	}
	if r.Off > uint64(len(data)) {
		return d.fail(req, protocol.RCInvalid)
	}

	end := r.Off + uint64(d.opts.DownloadChunk)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	rsp := &protocol.FileDownloadResponse{Off: r.Off, Data: data[r.Off:end]}
	if r.Off == 0 {
		size := uint64(len(data))
		rsp.Len = &size
	}
	return d.reply(req, rsp)
}
