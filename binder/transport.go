package binder

import (
	"context"
	"time"

	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
)

// Transaction is one request on its way to the peer.
type Transaction struct {
	Data    []byte
	Objects []parcel.FlatObject
	Handle  Handle
	Code    Code
	Flags   Flags
}

// OneWay reports whether the sender expects no reply.
func (t *Transaction) OneWay() bool { return t.Flags&FlagOneWay != 0 }

// Reply is the answer to a two-way Transaction.
type Reply struct {
	Detail  string
	Data    []byte
	Objects []parcel.FlatObject
	Status  errors.Status
}

// Err converts a failed reply status into an error.
func (r *Reply) Err() error {
	return errors.FromStatus(r.Status, r.Detail)
}

// Transport moves transactions between a Process and its peer.
//
// Send delivers tx. For a two-way transaction it blocks until the reply
// arrives, ctx is done, or the peer dies; for a one-way transaction it
// returns once the transaction is queued. When Send returns without error
// the transit references in tx.Objects belong to the peer.
type Transport interface {
	Send(ctx context.Context, tx *Transaction) (*Reply, error)
	Close() error
}

// Receiver is the transport-facing side of a Process.
type Receiver interface {
	// Receive dispatches an incoming transaction. The returned reply is
	// nil for one-way transactions.
	Receive(ctx context.Context, tx *Transaction) *Reply

	// PeerDied reports that the peer is gone. It is called at most once.
	PeerDied(cause error)
}

// Recorder observes transaction outcomes, typically for metrics.
type Recorder interface {
	// ObserveTransaction is called once per completed call. side is
	// "client" for calls made through a Proxy and "server" for calls
	// dispatched from the peer; outcome is empty on success.
	ObserveTransaction(side string, code Code, outcome errors.Kind, elapsed time.Duration)

	// ObserveObituaries is called with the number of obituaries delivered
	// after the peer died.
	ObserveObituaries(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransaction(string, Code, errors.Kind, time.Duration) {}
func (nopRecorder) ObserveObituaries(int)                                       {}
