// Package loopback connects two binder Processes living in the same Go
// process. It is the transport used by tests, examples and the demo
// command.
//
//	link, err := loopback.Pair(ctx)
//	if err != nil {
//	    return err
//	}
//	defer link.Close()
//
//	h, _ := link.Server().Publish(answer)
//	ref, _ := link.Client().Proxy(ctx, h)
//	defer ref.Release()
//
// Transactions are copied on Send, so neither side ever sees the other's
// buffers. Kill simulates a crash of the peer: both Processes observe the
// death and every obituary fires.
package loopback
