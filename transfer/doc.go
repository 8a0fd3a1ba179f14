// Package transfer implements the chunked, resumable transfer session used
// for file and image uploads and for file downloads.
//
// A Session moves one byte sequence between host and peripheral in many
// request/response rounds. It keeps exactly one request in flight, sizes each
// chunk from the link MTU at the time it is sent, treats the offset reported
// by the peripheral as authoritative, retries the same chunk after transport
// failures and reports progress after every acknowledgement.
//
// Every session ends in exactly one terminal state (Completed, Failed or
// Canceled) and fires exactly one terminal notification:
//
//	s := transfer.NewUpload(client, codec, data,
//	    transfer.WithProgressCallback(func(p transfer.Progress) {
//	        fmt.Printf("%.1f%%\n", p.Percentage)
//	    }),
//	)
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	res := s.Wait()
package transfer
