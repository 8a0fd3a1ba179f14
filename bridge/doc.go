// Package bridge exposes file management and firmware upgrades to a host
// application layer: instances are created and addressed by an opaque
// identifier, every operation completes through a Future, and progress is
// pushed to an EventSink.
//
// A host binding typically owns one Registry:
//
//	reg := bridge.NewRegistry(dial, bridge.WithEventSink(sink))
//	id := bridge.NewID()
//	if err := reg.CreateFileManager(id, "AA:BB:CC:DD:EE:FF"); err != nil {
//	    return err
//	}
//	size, err := reg.Status(ctx, id, "/lfs/settings.bin").Await(ctx)
package bridge
