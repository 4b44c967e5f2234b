package binder

import (
	"context"

	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

// Call writes args into a request, transacts code on b and returns the
// reply Value. The reply parcel is freed before Call returns, so object
// references in the result are only safe to use if the caller holds its
// own references to them; use Transact directly to keep the reply parcel.
func Call(ctx context.Context, b IBinder, code Code, args value.Value) (value.Value, error) {
	data := parcel.Get(flattenerFor(b))
	defer data.Recycle()
	if args.IsDefined() {
		if err := data.WriteValue(args); err != nil {
			return value.Undefined(), errors.BadArgument("arguments not writable", err)
		}
	}

	reply := parcel.Get(flattenerFor(b))
	defer reply.Recycle()
	if err := b.Transact(ctx, code, data, reply, 0); err != nil {
		return value.Undefined(), err
	}
	if reply.Remaining() == 0 {
		return value.Undefined(), nil
	}
	return reply.ReadValue()
}

// Send transacts code on b one-way with args as the request.
func Send(ctx context.Context, b IBinder, code Code, args value.Value) error {
	data := parcel.Get(flattenerFor(b))
	defer data.Recycle()
	if args.IsDefined() {
		if err := data.WriteValue(args); err != nil {
			return errors.BadArgument("arguments not writable", err)
		}
	}
	return b.Transact(ctx, code, data, nil, FlagOneWay)
}

// AsInterface returns b as interface T. A Local with a matching descriptor
// whose implementation satisfies T is returned directly; anything else is
// checked against descriptor and wrapped with newProxy.
func AsInterface[T any](ctx context.Context, b IBinder, descriptor string, newProxy func(IBinder) T) (T, error) {
	var zero T
	if b == nil {
		return zero, errors.InvalidInput(errors.PhaseTransact, "nil binder")
	}
	if l, ok := b.(*Local); ok && l.descriptor == descriptor {
		if impl, ok := l.impl.(T); ok {
			return impl, nil
		}
	}
	got, err := b.Descriptor(ctx)
	if err != nil {
		return zero, err
	}
	if got != descriptor {
		return zero, errors.TypeMismatch(errors.PhaseTransact, got, descriptor)
	}
	return newProxy(b), nil
}
