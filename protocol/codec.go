package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Struct field order is kept as declared so payload maps go out in a
	// stable order.
	encMode, err = cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 512,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalPayload encodes v as a CBOR payload map.
func MarshalPayload(v interface{}) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(data), MaxPayloadSize)
	}
	return data, nil
}

// NewEnvelope builds an envelope for the given command with v encoded as payload.
// A nil v produces an empty map.
func NewEnvelope(op Op, group Group, id uint8, v interface{}) (*Envelope, error) {
	if v == nil {
		v = struct{}{}
	}

	payload, err := MarshalPayload(v)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Header: Header{
			Op:     op,
			Length: uint16(len(payload)),
			Group:  group,
			ID:     id,
		},
		Payload: payload,
	}, nil
}

// Encode serializes the envelope into a frame ready to hand to a transport.
func (e *Envelope) Encode() ([]byte, error) {
	if len(e.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(e.Payload), MaxPayloadSize)
	}

	frame := make([]byte, HeaderSize, HeaderSize+len(e.Payload))
	frame[0] = byte(e.Header.Op)
	frame[1] = e.Header.Flags
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(e.Payload)))
	binary.BigEndian.PutUint16(frame[4:6], uint16(e.Header.Group))
	binary.BigEndian.PutUint16(frame[6:8], e.Header.Seq)
	frame[8] = e.Header.ID

	return append(frame, e.Payload...), nil
}

// ParseHeader decodes the fixed header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &DecodeError{
			Reason: fmt.Sprintf("frame too short: got %d bytes, minimum is %d", len(b), HeaderSize),
		}
	}

	h := Header{
		Op:     Op(b[0] & 0x07),
		Flags:  b[1],
		Length: binary.BigEndian.Uint16(b[2:4]),
		Group:  Group(binary.BigEndian.Uint16(b[4:6])),
		Seq:    binary.BigEndian.Uint16(b[6:8]),
		ID:     b[8],
	}
	if h.Op > OpWriteRsp {
		return Header{}, &DecodeError{Reason: fmt.Sprintf("invalid op %d", h.Op)}
	}

	return h, nil
}

// FrameLength returns the full frame length announced by the header in b.
func FrameLength(b []byte) (int, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return 0, err
	}
	return HeaderSize + int(h.Length), nil
}

// Decode validates a complete frame and returns the envelope it carries.
// The payload must be well-formed CBOR.
func Decode(frame []byte) (*Envelope, error) {
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}

	expected := HeaderSize + int(h.Length)
	if len(frame) != expected {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("frame length mismatch: got %d bytes, expected %d (HeaderSize=%d + len=%d)",
				len(frame), expected, HeaderSize, h.Length),
		}
	}

	payload := make([]byte, h.Length)
	copy(payload, frame[HeaderSize:])

	if len(payload) > 0 {
		if err := decMode.Wellformed(payload); err != nil {
			return nil, &DecodeError{Reason: "malformed payload", Err: err}
		}
	}

	return &Envelope{Header: h, Payload: payload}, nil
}

// Unmarshal decodes the envelope payload into v.
func (e *Envelope) Unmarshal(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(e.Payload, v); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("%s payload", e.Key()), Err: err}
	}
	return nil
}
