// Package protocol implements the SMP (Simple Management Protocol) message codec.
//
// This package builds request envelopes and decodes response envelopes exchanged
// with a device-management peripheral. Every envelope is a fixed binary header
// followed by a CBOR-encoded payload map.
//
// # Frame Overview
//
//	[OP][FLAGS][LEN_H][LEN_L][GROUP_H][GROUP_L][SEQ_H][SEQ_L][ID][CBOR PAYLOAD...]
//
// Where:
//   - OP = operation kind (read=0, read response=1, write=2, write response=3)
//   - LEN = 16-bit payload length (big-endian), header excluded
//   - GROUP = 16-bit management group (OS, image, file system, ...)
//   - SEQ = 16-bit sequence number echoed by the peripheral
//   - ID = command identifier within the group
//
// # Command Builders
//
// Use the Build* functions to create request envelopes:
//
//	env, err := protocol.BuildFileStatusCmd("/lfs/data.bin")
//	env, err := protocol.BuildFileUploadCmd("/lfs/data.bin", 0, chunk, &total)
//	// ... etc
//
// Sequence numbers are left at zero; the smp.Client assigns them when sending.
//
// # Response Decoding
//
// Decode turns raw bytes into an Envelope, and DecodeResponse maps the envelope
// to a typed response through a table keyed by (group, command id):
//
//	env, err := protocol.Decode(frame)
//	rsp, err := protocol.DecodeResponse(env)
//	status := rsp.(*protocol.FileStatusResponse)
//
// # Error Handling
//
// Malformed frames fail with *DecodeError. A well-formed response carrying a
// non-zero return code is reported by CheckResponse as *RemoteError:
//
//	if err := protocol.CheckResponse(env, rsp); err != nil {
//	    if protocol.IsNoEntry(err) {
//	        // file does not exist
//	    }
//	}
package protocol
