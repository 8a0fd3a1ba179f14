// Package simulator provides an in-memory SMP peripheral.
//
// Device implements transport.Transport: the host side talks to it exactly as
// it would to a real link. Behind the link the device keeps a small file
// system, a two-slot image store with test/confirm/revert semantics and a
// reboot cycle triggered by reset.
//
// Faults can be injected at any time to exercise host-side recovery:
//
//	dev := simulator.New(simulator.WithMTU(128))
//	dev.DisconnectAfter(3)    // drop the link on the 3rd request from now
//	dev.DropResponses(1)      // swallow the next response
//	dev.StallUploads(2)       // acknowledge two chunks without accepting data
//	dev.InjectError(protocol.GroupFS, protocol.FSCmdStatus, protocol.RCNoMemory)
package simulator
