// Package resource provides the handle tables a process uses to share
// objects with a peer.
//
// # Export Table
//
// An ExportTable maps integer handles to local values the peer holds
// references to. Exporting the same value twice yields the same handle, and
// the table counts the peer's strong and weak references separately:
//
//	table := resource.NewExportTable()
//
//	// The peer receives a reference; the handle goes on the wire.
//	h, counts, err := table.Export(kindLocal, obj, false)
//
//	// The peer releases it; at zero strong and weak the entry is dropped.
//	counts, err = table.Release(h, false)
//
// Values implementing Dropper are dropped when their entry goes away, which
// is how an export lets go of the local reference it was holding.
//
// # Weak Cache
//
// A WeakCache maps handles received from the peer to the proxy objects
// standing in for them. Entries are weak, so a proxy dies with its last
// strong reference and removes itself:
//
//	ref, created := cache.GetOrCreate(h, owner, func() *Proxy { return newProxy(h) })
//	defer ref.Release()
//
// # Observers
//
// Register observers to track export lifecycle events:
//
//	table.Subscribe(observer)
//
// Events are delivered after the table lock is released, in the order the
// operations completed.
package resource
