package image

import (
	"errors"
	"fmt"

	"github.com/moffa90/go-mcumgr/protocol"
)

// ErrHashMismatch is returned when the peripheral reports that the uploaded
// image does not match the digest sent with the first chunk.
var ErrHashMismatch = errors.New("image: uploaded image does not match its hash")

// UploadCodec frames image upload chunks for one image number. The digest
// is sent with the first chunk so the peripheral can check the result.
type UploadCodec struct {
	Image uint32
	SHA   []byte
}

// Path names the upload target in logs and errors.
func (c UploadCodec) Path() string {
	return fmt.Sprintf("image-%d", c.Image)
}

func (c UploadCodec) Chunk(off uint64, data []byte, total uint64, first bool) (*protocol.Envelope, error) {
	if !first {
		return protocol.BuildImageUploadCmd(c.Image, off, data, nil, nil)
	}
	return protocol.BuildImageUploadCmd(c.Image, off, data, &total, c.SHA)
}

func (c UploadCodec) Acked(rsp protocol.Response) (uint64, error) {
	r, ok := rsp.(*protocol.ImageUploadResponse)
	if !ok {
		return 0, fmt.Errorf("unexpected image upload response %T", rsp)
	}
	if r.Match != nil && !*r.Match {
		return 0, ErrHashMismatch
	}
	return r.Off, nil
}
