package protocol

import "fmt"

// FileStatusRequest is the payload of an fs status query.
type FileStatusRequest struct {
	Name string `cbor:"name"`
}

// FileHashRequest is the payload of an fs hash query.
type FileHashRequest struct {
	Name string `cbor:"name"`
	Type string `cbor:"type"`
}

// FileUploadRequest is the payload of one fs upload chunk.
// Len is only set on the first chunk so the peripheral can pre-allocate.
type FileUploadRequest struct {
	Name string  `cbor:"name"`
	Off  uint64  `cbor:"off"`
	Data []byte  `cbor:"data"`
	Len  *uint64 `cbor:"len,omitempty"`
}

// FileDownloadRequest is the payload of one fs download round trip.
type FileDownloadRequest struct {
	Name string `cbor:"name"`
	Off  uint64 `cbor:"off"`
}

// ImageUploadRequest is the payload of one image upload chunk.
// Len and SHA are only set on the first chunk.
type ImageUploadRequest struct {
	Image uint32  `cbor:"image,omitempty"`
	Off   uint64  `cbor:"off"`
	Data  []byte  `cbor:"data"`
	Len   *uint64 `cbor:"len,omitempty"`
	SHA   []byte  `cbor:"sha,omitempty"`
}

// ImageStateWriteRequest marks an image for test (Confirm=false) or confirms it.
// An empty Hash with Confirm=true confirms the running image.
type ImageStateWriteRequest struct {
	Hash    []byte `cbor:"hash,omitempty"`
	Confirm bool   `cbor:"confirm"`
}

// ImageEraseRequest is the payload of an image erase command.
type ImageEraseRequest struct {
	Slot uint32 `cbor:"slot,omitempty"`
}

// EchoRequest is the payload of an OS echo command.
type EchoRequest struct {
	D string `cbor:"d"`
}

// BuildFileStatusCmd constructs an fs status query for name.
//
// Payload:
//
//	{name: <path>}
func BuildFileStatusCmd(name string) (*Envelope, error) {
	if name == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	return NewEnvelope(OpRead, GroupFS, FSCmdStatus, &FileStatusRequest{Name: name})
}

// BuildFileHashCmd constructs an fs hash query for name using SHA-256.
//
// Payload:
//
//	{name: <path>, type: "sha256"}
func BuildFileHashCmd(name string) (*Envelope, error) {
	if name == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	return NewEnvelope(OpRead, GroupFS, FSCmdHash, &FileHashRequest{Name: name, Type: HashTypeSHA256})
}

// BuildFileUploadCmd constructs one fs upload chunk.
// total must be non-nil on the first chunk only.
//
// Payload:
//
//	{name: <path>, off: <uint>, data: <bytes>, len: <uint, first chunk only>}
func BuildFileUploadCmd(name string, off uint64, data []byte, total *uint64) (*Envelope, error) {
	if name == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if data == nil {
		data = []byte{}
	}
	return NewEnvelope(OpWrite, GroupFS, FSCmdFile, &FileUploadRequest{
		Name: name,
		Off:  off,
		Data: data,
		Len:  total,
	})
}

// BuildFileDownloadCmd constructs one fs download request starting at off.
func BuildFileDownloadCmd(name string, off uint64) (*Envelope, error) {
	if name == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	return NewEnvelope(OpRead, GroupFS, FSCmdFile, &FileDownloadRequest{Name: name, Off: off})
}

// BuildImageUploadCmd constructs one image upload chunk.
// total and sha must be set on the first chunk only.
func BuildImageUploadCmd(image uint32, off uint64, data []byte, total *uint64, sha []byte) (*Envelope, error) {
	if data == nil {
		data = []byte{}
	}
	if sha != nil && len(sha) != SHA256Size {
		return nil, fmt.Errorf("image hash must be exactly %d bytes, got %d", SHA256Size, len(sha))
	}
	return NewEnvelope(OpWrite, GroupImage, ImageCmdUpload, &ImageUploadRequest{
		Image: image,
		Off:   off,
		Data:  data,
		Len:   total,
		SHA:   sha,
	})
}

// BuildImageStateReadCmd constructs a request listing image slots.
func BuildImageStateReadCmd() (*Envelope, error) {
	return NewEnvelope(OpRead, GroupImage, ImageCmdState, nil)
}

// BuildImageTestCmd constructs a request marking the image with hash for a test boot.
func BuildImageTestCmd(hash []byte) (*Envelope, error) {
	if len(hash) != SHA256Size {
		return nil, fmt.Errorf("image hash must be exactly %d bytes, got %d", SHA256Size, len(hash))
	}
	return NewEnvelope(OpWrite, GroupImage, ImageCmdState, &ImageStateWriteRequest{Hash: hash, Confirm: false})
}

// BuildImageConfirmCmd constructs a request confirming an image.
// A nil hash confirms the image currently running.
func BuildImageConfirmCmd(hash []byte) (*Envelope, error) {
	if hash != nil && len(hash) != SHA256Size {
		return nil, fmt.Errorf("image hash must be exactly %d bytes, got %d", SHA256Size, len(hash))
	}
	return NewEnvelope(OpWrite, GroupImage, ImageCmdState, &ImageStateWriteRequest{Hash: hash, Confirm: true})
}

// BuildImageEraseCmd constructs a request erasing an image slot.
func BuildImageEraseCmd(slot uint32) (*Envelope, error) {
	return NewEnvelope(OpWrite, GroupImage, ImageCmdErase, &ImageEraseRequest{Slot: slot})
}

// BuildResetCmd constructs a device reset request.
func BuildResetCmd() (*Envelope, error) {
	return NewEnvelope(OpWrite, GroupOS, OSCmdReset, nil)
}

// BuildEchoCmd constructs an echo request.
func BuildEchoCmd(text string) (*Envelope, error) {
	return NewEnvelope(OpWrite, GroupOS, OSCmdEcho, &EchoRequest{D: text})
}
