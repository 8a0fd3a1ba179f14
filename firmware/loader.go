package firmware

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Intel HEX record types.
const (
	recordData           = 0x00
	recordEOF            = 0x01
	recordExtSegmentAddr = 0x02
	recordStartSegment   = 0x03
	recordExtLinearAddr  = 0x04
	recordStartLinear    = 0x05

	// minimumRecordLength is ':' plus count, address, type and checksum in hex
	minimumRecordLength = 11

	// maxHexSpan bounds the flattened size of an Intel HEX image
	maxHexSpan = 64 << 20
)

// Load reads a firmware image from the given file path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadReader(f)
}

// LoadReader reads a firmware image from any io.Reader.
func LoadReader(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == ':' {
		return parseIntelHex(trimmed)
	}
	return New(data), nil
}

type segment struct {
	addr uint32
	data []byte
}

// parseIntelHex flattens an Intel HEX file into one contiguous image.
func parseIntelHex(data []byte) (*Image, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024), 1<<20)

	var segments []segment
	var base uint32
	sawEOF := false
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: record after end of file", lineNum)
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.kind {
		case recordData:
			if len(rec.data) > 0 {
				segments = append(segments, segment{addr: base + uint32(rec.addr), data: rec.data})
			}
		case recordEOF:
			sawEOF = true
		case recordExtSegmentAddr:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended segment address needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case recordExtLinearAddr:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended linear address needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		case recordStartSegment, recordStartLinear:
			// entry point, not part of the image
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, rec.kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sawEOF {
		return nil, fmt.Errorf("missing end of file record")
	}
	if len(segments) == 0 {
		return nil, ErrEmpty
	}

	flat, start, err := flatten(segments)
	if err != nil {
		return nil, err
	}
	img := New(flat)
	img.Format = FormatIntelHex
	img.BaseAddress = start
	return img, nil
}

type record struct {
	kind byte
	addr uint16
	data []byte
}

// parseRecord decodes one ":LLAAAATT<data>CC" line and verifies its checksum.
func parseRecord(line string) (record, error) {
	if line[0] != ':' {
		return record{}, fmt.Errorf("record must start with ':'")
	}
	if len(line) < minimumRecordLength {
		return record{}, fmt.Errorf("record too short: got %d characters, minimum is %d", len(line), minimumRecordLength)
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return record{}, fmt.Errorf("invalid hex data: %w", err)
	}

	count := int(raw[0])
	if len(raw) != count+5 {
		return record{}, fmt.Errorf("data length mismatch: got %d bytes, expected %d", len(raw)-5, count)
	}

	checksum := raw[len(raw)-1]
	if calculated := recordChecksum(raw[:len(raw)-1]); checksum != calculated {
		return record{}, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", checksum, calculated)
	}

	return record{
		kind: raw[3],
		addr: uint16(raw[1])<<8 | uint16(raw[2]),
		data: append([]byte(nil), raw[4:4+count]...),
	}, nil
}

// recordChecksum is the two's complement of the byte sum.
func recordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}

func flatten(segments []segment) ([]byte, uint32, error) {
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].addr < segments[j].addr })

	start := segments[0].addr
	var end uint64
	for _, s := range segments {
		if e := uint64(s.addr) + uint64(len(s.data)); e > end {
			end = e
		}
	}
	if end-uint64(start) > maxHexSpan {
		return nil, 0, &SizeError{Size: int(end - uint64(start)), Max: maxHexSpan}
	}

	flat := bytes.Repeat([]byte{0xFF}, int(end-uint64(start)))
	written := make([]bool, len(flat))
	for _, s := range segments {
		off := int(s.addr - start)
		for i := range s.data {
			if written[off+i] {
				return nil, 0, fmt.Errorf("overlapping data at address 0x%08X", s.addr+uint32(i))
			}
			written[off+i] = true
		}
		copy(flat[off:], s.data)
	}
	return flat, start, nil
}
