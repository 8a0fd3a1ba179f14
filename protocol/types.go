package protocol

import "fmt"

// Header is the fixed binary prefix of every envelope.
type Header struct {
	// Op is the operation kind
	Op Op

	// Flags is reserved and sent as zero
	Flags uint8

	// Length is the payload length in bytes, header excluded
	Length uint16

	// Group is the management group
	Group Group

	// Seq is the sequence number matching a response to its request
	Seq uint16

	// ID is the command identifier within Group
	ID uint8
}

// Key returns the (group, command id) pair identifying the command.
func (h Header) Key() CommandKey {
	return CommandKey{Group: h.Group, ID: h.ID}
}

// Envelope is one framed request or response.
// An Envelope is treated as immutable once it has been sent.
type Envelope struct {
	Header Header

	// Payload is the CBOR-encoded payload map
	Payload []byte
}

// Key returns the (group, command id) pair of the envelope.
func (e *Envelope) Key() CommandKey {
	return e.Header.Key()
}

// WithSeq returns a copy of the envelope carrying the given sequence number.
// Retries build a fresh envelope this way rather than mutating one already sent.
func (e *Envelope) WithSeq(seq uint16) *Envelope {
	cp := *e
	cp.Header.Seq = seq
	return &cp
}

// Answers reports whether e is the response to req.
func (e *Envelope) Answers(req *Envelope) bool {
	return e.Header.Op == req.Header.Op.Response() &&
		e.Header.Group == req.Header.Group &&
		e.Header.ID == req.Header.ID &&
		e.Header.Seq == req.Header.Seq
}

func (e *Envelope) String() string {
	return fmt.Sprintf("%s %s seq=%d len=%d", e.Header.Op, e.Key(), e.Header.Seq, len(e.Payload))
}

// CommandKey identifies a command by group and command id.
type CommandKey struct {
	Group Group
	ID    uint8
}

func (k CommandKey) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("%s/%d", k.Group, k.ID)
}

var commandNames = map[CommandKey]string{
	{GroupOS, OSCmdEcho}:         "os echo",
	{GroupOS, OSCmdReset}:        "os reset",
	{GroupImage, ImageCmdState}:  "image state",
	{GroupImage, ImageCmdUpload}: "image upload",
	{GroupImage, ImageCmdErase}:  "image erase",
	{GroupFS, FSCmdFile}:         "fs file",
	{GroupFS, FSCmdStatus}:       "fs status",
	{GroupFS, FSCmdHash}:         "fs hash",
}
