// Package binder implements the object model: local objects, proxies to
// objects in a peer process and the Transact calling convention shared by
// both.
//
// # Objects
//
// IBinder has exactly two implementations. A *Local runs its handlers in
// this process, on the caller's goroutine. A *Proxy forwards each call to
// the peer through the Process transport and blocks for the reply unless
// FlagOneWay is set. Callers that do not care which one they hold use
// Transact, Call or AsInterface:
//
//	answer := proc.NewLocal("example.answer", nil)
//	answer.Register(0x1001, func(ctx context.Context, args value.Value) (value.Value, error) {
//	    return value.Int32(42), nil
//	})
//
//	v, err := binder.Call(ctx, target, 0x1001, value.Undefined())
//
// # Processes
//
// A Process is the context one side of a connection runs in. It exports
// Locals to the peer under handles, caches one Proxy per peer handle and
// owns the Transport. There is no process-wide state: tests can run any
// number of Processes side by side.
//
// Object references cross the connection inside parcels. Each one carries
// a reference on the exported object, so an object stays alive while the
// peer can still reach it. A Proxy returns its references when it is
// finalized.
//
// # Death Notification
//
// Link registers an obituary: when the linked object dies, the target
// receives a one-way CodeObituary transaction carrying the bindings Value.
// For a Proxy death is the peer going away; for a Local it is
// finalization. Each obituary is delivered at most once and Unlink before
// death cancels it.
package binder
