package serial

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// Console framing markers. A frame is sent as one or more text lines; the
// first starts with frameStart and the rest with frameContinue.
var (
	frameStart    = []byte{0x06, 0x09}
	frameContinue = []byte{0x04, 0x14}
)

// maxLineSize bounds one console line including the two marker bytes and the
// trailing newline.
const maxLineSize = 127

var errBadCRC = errors.New("serial: frame crc mismatch")

// encodeFrame wraps an SMP frame as console lines:
// base64(len(2) + frame + crc16(2)), where len counts frame and crc.
func encodeFrame(frame []byte) [][]byte {
	packet := make([]byte, 2, 2+len(frame)+2)
	binary.BigEndian.PutUint16(packet, uint16(len(frame)+2))
	packet = append(packet, frame...)
	packet = binary.BigEndian.AppendUint16(packet, crc16(frame))

	encoded := base64.StdEncoding.EncodeToString(packet)
	body := maxLineSize - len(frameStart) - 1

	var lines [][]byte
	for first := true; len(encoded) > 0 || first; first = false {
		n := body
		if n > len(encoded) {
			n = len(encoded)
		}

		line := make([]byte, 0, maxLineSize)
		if first {
			line = append(line, frameStart...)
		} else {
			line = append(line, frameContinue...)
		}
		line = append(line, encoded[:n]...)
		line = append(line, '\n')

		lines = append(lines, line)
		encoded = encoded[n:]
	}
	return lines
}

// frameDecoder accumulates console lines into SMP frames.
type frameDecoder struct {
	body   []byte
	active bool
}

// feed consumes one line without its newline. It returns a frame once the
// accumulated packet is complete. Lines without a marker are console noise
// and are ignored.
func (d *frameDecoder) feed(line []byte) ([]byte, error) {
	line = bytes.TrimRight(line, "\r")

	switch {
	case bytes.HasPrefix(line, frameStart):
		d.body = append(d.body[:0], line[len(frameStart):]...)
		d.active = true
	case bytes.HasPrefix(line, frameContinue) && d.active:
		d.body = append(d.body, line[len(frameContinue):]...)
	default:
		return nil, nil
	}

	packet, err := base64.StdEncoding.DecodeString(string(d.body))
	if err != nil {
		// Padding only appears on the last line, so a partial body may not decode yet.
		if len(d.body)%4 != 0 {
			return nil, nil
		}
		d.reset()
		return nil, fmt.Errorf("serial: base64: %w", err)
	}
	if len(packet) < 2 {
		return nil, nil
	}

	want := int(binary.BigEndian.Uint16(packet[:2]))
	if len(packet)-2 < want {
		return nil, nil
	}
	d.reset()

	if want < 2 {
		return nil, fmt.Errorf("serial: packet length %d too short", want)
	}
	payload := packet[2 : 2+want]
	frame := payload[:len(payload)-2]
	if crc16(frame) != binary.BigEndian.Uint16(payload[len(payload)-2:]) {
		return nil, errBadCRC
	}
	return frame, nil
}

func (d *frameDecoder) reset() {
	d.body = d.body[:0]
	d.active = false
}
