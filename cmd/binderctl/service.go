package main

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/binderkit"
	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

const (
	counterDescriptor = "binderkit.demo.counter"
	ticketDescriptor  = "binderkit.demo.ticket"
)

var (
	codeAdd    = binder.Code(binderkit.ParseFourCC("add "))
	codeEcho   = binder.Code(binderkit.ParseFourCC("echo"))
	codeTicket = binder.Code(binderkit.ParseFourCC("tckt"))
	codeNumber = binder.Code(binderkit.ParseFourCC("numb"))
)

// counter is the demo service: a running total that also hands out
// ticket objects.
type counter struct {
	proc    *binder.Process
	opts    []binder.LocalOption
	total   atomic.Int64
	tickets atomic.Int64
}

func newCounter(p *binder.Process, opts []binder.LocalOption) *binder.Local {
	c := &counter{proc: p, opts: opts}
	l := p.NewLocal(counterDescriptor, c, opts...)
	l.Register(codeAdd, c.add)
	l.Register(codeEcho, func(_ context.Context, args value.Value) (value.Value, error) {
		return args, nil
	})
	l.Register(codeTicket, c.ticket)
	return l
}

func (c *counter) add(_ context.Context, args value.Value) (value.Value, error) {
	n, err := args.AsInt64()
	if err != nil {
		return value.Undefined(), errors.BadArgument("add expects an integer", err)
	}
	return value.Int64(c.total.Add(n)), nil
}

func (c *counter) ticket(context.Context, value.Value) (value.Value, error) {
	number := c.tickets.Add(1)
	t := c.proc.NewLocal(ticketDescriptor, nil, c.opts...)
	t.Register(codeNumber, func(context.Context, value.Value) (value.Value, error) {
		return value.Int64(number), nil
	})
	return value.Object(t), nil
}

// takeTicket asks the counter for a ticket and returns a strong reference
// to it owned by owner.
func takeTicket(ctx context.Context, counter binder.IBinder, owner string) (*atom.Ref[binder.IBinder], error) {
	reply := parcel.New(nil)
	defer reply.Free()
	if err := counter.Transact(ctx, codeTicket, nil, reply, 0); err != nil {
		return nil, err
	}
	obj, _, err := reply.ReadObjectRef()
	if err != nil {
		return nil, err
	}
	b, ok := obj.(binder.IBinder)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseTransact, atom.TypeName(obj), "binder object")
	}
	return atom.Acquire(b, owner), nil
}

// publishCounter publishes a counter on the session's server and returns
// the client's proxy to it together with the server side Local.
func publishCounter(ctx context.Context, o *options, s *session) (*binder.Local, *atom.Ref[*binder.Proxy], error) {
	svc := newCounter(s.server, o.localOptions())
	h, err := s.server.Publish(svc)
	if err != nil {
		return nil, nil, err
	}
	ref, err := s.client.Proxy(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	return svc, ref, nil
}
