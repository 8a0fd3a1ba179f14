package protocol

import "fmt"

// GroupError is the SMP v2 error map some peripherals send instead of rc.
type GroupError struct {
	Group uint16 `cbor:"group"`
	RC    int    `cbor:"rc"`
}

// Result holds the return code fields common to every response.
type Result struct {
	RC  int         `cbor:"rc,omitempty"`
	Err *GroupError `cbor:"err,omitempty"`
}

// Code returns the return code of the response. An absent code means RCOK.
func (r *Result) Code() ReturnCode {
	if r.RC != 0 {
		return ReturnCode(r.RC)
	}
	if r.Err != nil {
		return ReturnCode(r.Err.RC)
	}
	return RCOK
}

// Response is implemented by every typed response.
type Response interface {
	Code() ReturnCode
}

// FileStatusResponse answers an fs status query.
type FileStatusResponse struct {
	Result
	Len uint64 `cbor:"len"`
}

// FileHashResponse answers an fs hash query.
type FileHashResponse struct {
	Result
	Type   string `cbor:"type,omitempty"`
	Off    uint64 `cbor:"off"`
	Len    uint64 `cbor:"len"`
	Output []byte `cbor:"output"`
}

// FileUploadResponse acknowledges an fs upload chunk.
// Off is the number of bytes the peripheral holds so far.
type FileUploadResponse struct {
	Result
	Off uint64 `cbor:"off"`
}

// FileDownloadResponse carries one chunk of a file read.
// Len is only present in the response to the first chunk.
type FileDownloadResponse struct {
	Result
	Off  uint64  `cbor:"off"`
	Data []byte  `cbor:"data"`
	Len  *uint64 `cbor:"len,omitempty"`
}

// ImageUploadResponse acknowledges an image upload chunk.
type ImageUploadResponse struct {
	Result
	Off   uint64 `cbor:"off"`
	Match *bool  `cbor:"match,omitempty"`
}

// ImageSlot describes one image slot reported by the peripheral.
type ImageSlot struct {
	Image     uint32 `cbor:"image,omitempty"`
	Slot      uint32 `cbor:"slot"`
	Version   string `cbor:"version"`
	Hash      []byte `cbor:"hash"`
	Bootable  bool   `cbor:"bootable,omitempty"`
	Pending   bool   `cbor:"pending,omitempty"`
	Confirmed bool   `cbor:"confirmed,omitempty"`
	Active    bool   `cbor:"active,omitempty"`
	Permanent bool   `cbor:"permanent,omitempty"`
}

// ImageStateResponse lists image slots. It answers both state reads and writes.
type ImageStateResponse struct {
	Result
	Images      []ImageSlot `cbor:"images"`
	SplitStatus int         `cbor:"splitStatus,omitempty"`
}

// EchoResponse answers an OS echo command.
type EchoResponse struct {
	Result
	R string `cbor:"r"`
}

// EmptyResponse answers commands that carry nothing but a return code.
type EmptyResponse struct {
	Result
}

// responseKey selects a response type by direction as well as command, since
// fs file reads and writes share a command id but not a payload shape.
type responseKey struct {
	CommandKey
	Op Op
}

var responseTable = map[responseKey]func() Response{
	{CommandKey{GroupOS, OSCmdEcho}, OpWriteRsp}:         func() Response { return &EchoResponse{} },
	{CommandKey{GroupOS, OSCmdReset}, OpWriteRsp}:        func() Response { return &EmptyResponse{} },
	{CommandKey{GroupImage, ImageCmdState}, OpReadRsp}:   func() Response { return &ImageStateResponse{} },
	{CommandKey{GroupImage, ImageCmdState}, OpWriteRsp}:  func() Response { return &ImageStateResponse{} },
	{CommandKey{GroupImage, ImageCmdUpload}, OpWriteRsp}: func() Response { return &ImageUploadResponse{} },
	{CommandKey{GroupImage, ImageCmdErase}, OpWriteRsp}:  func() Response { return &EmptyResponse{} },
	{CommandKey{GroupFS, FSCmdFile}, OpWriteRsp}:         func() Response { return &FileUploadResponse{} },
	{CommandKey{GroupFS, FSCmdFile}, OpReadRsp}:          func() Response { return &FileDownloadResponse{} },
	{CommandKey{GroupFS, FSCmdStatus}, OpReadRsp}:        func() Response { return &FileStatusResponse{} },
	{CommandKey{GroupFS, FSCmdHash}, OpReadRsp}:          func() Response { return &FileHashResponse{} },
}

// DecodeResponse decodes a response envelope into its typed response.
// Commands missing from the table decode to *EmptyResponse.
func DecodeResponse(env *Envelope) (Response, error) {
	if !env.Header.Op.IsResponse() {
		return nil, &DecodeError{Reason: fmt.Sprintf("%s: op %s is not a response", env.Key(), env.Header.Op)}
	}

	newResponse, ok := responseTable[responseKey{env.Key(), env.Header.Op}]
	if !ok {
		newResponse = func() Response { return &EmptyResponse{} }
	}

	rsp := newResponse()
	if err := env.Unmarshal(rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// CheckResponse returns a *RemoteError when rsp carries a non-zero return code.
func CheckResponse(env *Envelope, rsp Response) error {
	if code := rsp.Code(); code != RCOK {
		return &RemoteError{Command: env.Key(), Code: code}
	}
	return nil
}

// NewResponse builds the response envelope answering req with v as payload.
// It is used by peripheral-side code such as the simulator.
func NewResponse(req *Envelope, v interface{}) (*Envelope, error) {
	env, err := NewEnvelope(req.Header.Op.Response(), req.Header.Group, req.Header.ID, v)
	if err != nil {
		return nil, err
	}
	env.Header.Seq = req.Header.Seq
	return env, nil
}
