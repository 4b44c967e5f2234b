package binder

import (
	"context"

	"github.com/wippyai/binderkit"
	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/resource"
	"github.com/wippyai/binderkit/value"
)

// Code is an application-chosen transaction opcode, usually a FourCC.
type Code uint32

func (c Code) String() string {
	return binderkit.FourCC(c).String()
}

// Built-in transaction codes understood by every object.
var (
	CodePing      = Code(binderkit.ParseFourCC("_PNG"))
	CodeInterface = Code(binderkit.ParseFourCC("_NTF"))
	CodeObituary  = Code(binderkit.ParseFourCC("_OBT"))
)

// Control codes sent to handle 0 of the peer.
var (
	codeAcquire = Code(binderkit.ParseFourCC("_ACQ"))
	codeRelease = Code(binderkit.ParseFourCC("_REL"))
)

// Flags modify a transaction.
type Flags uint32

const (
	// FlagOneWay returns as soon as the transport accepts the request. No
	// reply is produced.
	FlagOneWay Flags = 1 << iota
)

// Handle identifies an object exported by the peer process.
type Handle = resource.Handle

// IBinder is the capability shared by local objects and proxies to remote
// ones. The set of implementations is closed: *Local and *Proxy.
type IBinder interface {
	atom.Object

	// Transact performs one call. data is the request; reply receives the
	// result and may be nil when the caller does not want one.
	Transact(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error

	// Link asks for an obituary to be delivered to target, carrying
	// bindings, when this object dies.
	Link(target IBinder, bindings value.Value, flags Flags) error

	// Unlink removes a registration made by Link. Removing one that does
	// not exist is not an error.
	Unlink(target IBinder, bindings value.Value, flags Flags) error

	// IsBinderAlive reports whether the object can still be called.
	IsBinderAlive() bool

	// Descriptor returns the interface descriptor of the object.
	Descriptor(ctx context.Context) (string, error)

	// Ping checks that the object answers.
	Ping(ctx context.Context) error

	sealed()
}

// Method handles one registered code. args is the request Value (undefined
// when the request is empty); the returned Value is written to the reply.
type Method func(ctx context.Context, args value.Value) (value.Value, error)

// Handler is the raw form of a transaction handler, used for codes without
// a registered Method.
type Handler func(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error
