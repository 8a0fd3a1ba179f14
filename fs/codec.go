package fs

import (
	"fmt"

	"github.com/moffa90/go-mcumgr/protocol"
)

// uploadCodec frames fs upload chunks.
type uploadCodec struct {
	name string
}

func (c uploadCodec) Path() string { return c.name }

func (c uploadCodec) Chunk(off uint64, data []byte, total uint64, first bool) (*protocol.Envelope, error) {
	var ln *uint64
	if first {
		ln = &total
	}
	return protocol.BuildFileUploadCmd(c.name, off, data, ln)
}

func (c uploadCodec) Acked(rsp protocol.Response) (uint64, error) {
	r, ok := rsp.(*protocol.FileUploadResponse)
	if !ok {
		return 0, fmt.Errorf("unexpected upload response %T", rsp)
	}
	return r.Off, nil
}

// downloadCodec frames fs download reads.
type downloadCodec struct {
	name string
}

func (c downloadCodec) Path() string { return c.name }

func (c downloadCodec) Read(off uint64) (*protocol.Envelope, error) {
	return protocol.BuildFileDownloadCmd(c.name, off)
}

func (c downloadCodec) Chunk(rsp protocol.Response) (uint64, []byte, *uint64, error) {
	r, ok := rsp.(*protocol.FileDownloadResponse)
	if !ok {
		return 0, nil, nil, fmt.Errorf("unexpected download response %T", rsp)
	}
	return r.Off, r.Data, r.Len, nil
}
