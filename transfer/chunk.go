package transfer

import "github.com/moffa90/go-mcumgr/protocol"

// dataHeaderSlack is the growth of the CBOR byte string header from an empty
// probe (1 byte) to a chunk of up to 65535 bytes (3 bytes).
const dataHeaderSlack = 2

// ChunkSize returns the data bytes that fit in one request: mtu minus
// overhead, capped at max when max > 0, rounded down to alignment.
func ChunkSize(mtu, overhead, alignment, max int) int {
	size := mtu - overhead
	if max > 0 && size > max {
		size = max
	}
	if alignment > 1 {
		size -= size % alignment
	}
	if size < 0 {
		return 0
	}
	return size
}

// Overhead returns the bytes a chunk request spends besides data, measured by
// encoding a worst-case probe: the largest offset of the transfer, the total
// length present and an empty data field.
func Overhead(codec UploadCodec, total uint64) (int, error) {
	probe, err := codec.Chunk(total, nil, total, true)
	if err != nil {
		return 0, err
	}
	return protocol.HeaderSize + len(probe.Payload) + dataHeaderSlack, nil
}
