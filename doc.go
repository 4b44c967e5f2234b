// Package binderkit provides distributed object references, a self-describing
// copy-on-write value type and a transaction-based call protocol between
// processes on one host.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	binderkit/           Root package with the FourCC tag type
//	├── errors/          Structured error kinds and fatal contract violations
//	├── syncx/           Mutex, ConditionVariable and Event primitives
//	├── atom/            Strong/weak reference counting, typed refs, leak tracker
//	├── value/           Value, CompositeMap, map pool and the archive format
//	├── parcel/          Transaction buffers that flatten values and object refs
//	├── resource/        Export and proxy handle tables used by a Process
//	├── binder/          IBinder, Local, Proxy, Process and death notification
//	├── transport/       Loopback and stream transports beneath the Parcel layer
//	├── component/       Local objects implemented by WebAssembly modules
//	├── metrics/         Prometheus collectors
//	├── config/          YAML/TOML configuration
//	└── cmd/binderctl/   Command line tool and live leak inspector
//
// # Quick Start
//
// Serve an object from one Process and call it from another:
//
//	link, err := loopback.Pair(ctx)
//	if err != nil {
//	    return err
//	}
//	defer link.Close()
//
//	answer := link.Server().NewLocal("example.answer", nil)
//	answer.Register(0x1001, func(ctx context.Context, args value.Value) (value.Value, error) {
//	    return value.Int32(42), nil
//	})
//	h, err := link.Server().Publish(answer)
//	if err != nil {
//	    return err
//	}
//
//	ref, err := link.Client().Proxy(ctx, h)
//	if err != nil {
//	    return err
//	}
//	defer ref.Release()
//	reply, err := binder.Call(ctx, ref.Get(), 0x1001, value.Undefined())
//	// reply == value.Int32(42)
//
// # Values
//
// A Value is a tagged cell: scalars of 4 bytes or fewer are stored inline,
// larger payloads live in an immutable shared buffer and composite values
// are backed by a sorted CompositeMap. Copying a Value is cheap; mutation
// through Join, Overlay or an Editor never affects other copies.
//
// # Thread Safety
//
// Atoms, Processes, Proxies and Locals are safe for concurrent use. A Value
// may be read concurrently; mutating one Value from several goroutines
// requires external synchronization. Parcels are single-use and not
// thread-safe.
package binderkit
