// Package smp sequences SMP requests over a transport.Transport.
//
// A Client assigns a 16-bit sequence number to every request, matches each
// inbound response to its request strictly by sequence, and keeps at most one
// envelope outstanding on the connection. Responses without a matching
// outstanding request are dropped and logged. Malformed frames are logged,
// counted and dropped without tearing the connection down.
//
// Basic usage:
//
//	client := smp.New(tr, smp.WithTimeout(5*time.Second))
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	req, _ := protocol.BuildFileStatusCmd("/lfs/config.bin")
//	_, rsp, err := client.Do(ctx, req)
package smp
