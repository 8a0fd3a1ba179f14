// Package fs implements the file management operations of the SMP file
// system group: size and hash queries, chunked upload and download.
//
// A Manager allows one stateful operation at a time. A request made while
// another is pending fails immediately with ErrBusy and is not started;
// callers serialize their requests or use another Manager.
//
// Size and hash queries treat a missing file as a normal result:
//
//	size, err := m.Status(ctx, "/lfs/settings.bin")
//	if err != nil {
//	    return err
//	}
//	if size == fs.NotFound {
//	    // file does not exist
//	}
//
//	digest, ok, err := m.Hash(ctx, "/lfs/settings.bin")
//	if err == nil && !ok {
//	    // file does not exist
//	}
package fs
