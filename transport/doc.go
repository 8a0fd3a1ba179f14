// Package transport defines the physical link contract used by the SMP client.
//
// A Transport owns exactly one connection to one peripheral. It sends complete
// SMP frames, delivers complete inbound frames to subscribers in arrival order,
// and publishes connection state changes to watchers. Implementations live in
// the serial, ble and quic subpackages; the simulator package provides an
// in-memory peripheral for tests.
//
// Hub and Reassembler are helpers for implementations: Hub fans frames and
// state changes out to subscribers, Reassembler rebuilds frames from a byte
// stream using the length field of the SMP header.
//
// # Errors
//
// Connect fails with *ConnectError when the link cannot be established.
// Send fails with *LinkError when the link drops mid-send, or with
// ErrNotConnected when there is no link at all.
package transport
