package binder

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
)

// Flatten implements parcel.Flattener. A Local is exported to the peer and
// the export count taken is the transit reference. A Proxy travels back to
// its owner as the owner's own handle, with a reference acquired from the
// owner as the transit reference.
func (p *Process) Flatten(obj atom.Object, weak bool) (parcel.FlatObject, error) {
	switch o := obj.(type) {
	case *Local:
		h, err := p.export(o, weak)
		if err != nil {
			return parcel.FlatObject{}, err
		}
		return parcel.FlatObject{Kind: parcel.KindLocal, Weak: weak, Handle: uint32(h)}, nil
	case *Proxy:
		if o.proc != p {
			return parcel.FlatObject{}, errors.Unsupported(errors.PhaseArchive, "proxy belongs to another process")
		}
		if !o.IsBinderAlive() {
			return parcel.FlatObject{}, errors.Unreachable(errors.PhaseArchive, "proxy is dead")
		}
		if err := p.acquireRemote(context.Background(), o.handle, weak); err != nil {
			return parcel.FlatObject{}, err
		}
		return parcel.FlatObject{Kind: parcel.KindRemote, Weak: weak, Handle: uint32(o.handle)}, nil
	default:
		return parcel.FlatObject{}, errors.Unsupported(errors.PhaseArchive, "cannot send "+atom.TypeName(obj))
	}
}

// Unflatten implements parcel.Flattener. A peer object becomes its cached
// Proxy, which keeps the transit reference unless it already holds one of
// the same strength. One of our own handles resolves to the exported Local
// and its transit reference is given back.
func (p *Process) Unflatten(fo parcel.FlatObject) (atom.Object, error) {
	h := Handle(fo.Handle)
	switch fo.Kind {
	case parcel.KindLocal:
		if !p.IsPeerAlive() {
			return nil, errors.Unreachable(errors.PhaseUnarchive, "peer is gone")
		}
		ref, _ := p.proxies.GetOrCreate(h, parcel.Owner, func() *Proxy { return newProxy(p, h) })
		px := ref.Get()
		if !px.adopt(fo.Weak) {
			p.sendRelease(h, fo.Weak)
		}
		return px, nil
	case parcel.KindRemote:
		v, ok := p.exports.Lookup(h)
		if !ok {
			return nil, errors.Unreachable(errors.PhaseUnarchive, "handle not exported")
		}
		l := v.(*Local)
		if !l.AttemptIncStrong(parcel.Owner) {
			return nil, errors.Unreachable(errors.PhaseUnarchive, "local object finalized")
		}
		if err := p.releaseExport(h, fo.Weak); err != nil {
			p.log.Debug("transit release failed", zap.Uint32("handle", fo.Handle), zap.Error(err))
		}
		return l, nil
	default:
		return nil, errors.InvalidData(errors.PhaseUnarchive, "unknown object kind "+fo.Kind.String())
	}
}

// Release implements parcel.Flattener for parcels this Process built and
// never sent.
func (p *Process) Release(fo parcel.FlatObject) {
	switch fo.Kind {
	case parcel.KindLocal:
		if err := p.releaseExport(Handle(fo.Handle), fo.Weak); err != nil {
			p.log.Debug("transit release failed", zap.Uint32("handle", fo.Handle), zap.Error(err))
		}
	case parcel.KindRemote:
		p.sendRelease(Handle(fo.Handle), fo.Weak)
	}
}

// Discard returns the references carried by objects received from the peer
// that will never be unflattened, such as those in a reply nobody waits for.
func (p *Process) Discard(objects []parcel.FlatObject) {
	if len(objects) == 0 {
		return
	}
	parcel.FromBytes(nil, objects, p.in).Free()
}

// inbound is the Flattener for parcels received from the peer. Unread peer
// references are returned to the peer.
type inbound struct{ p *Process }

func (in inbound) Flatten(obj atom.Object, weak bool) (parcel.FlatObject, error) {
	return in.p.Flatten(obj, weak)
}

func (in inbound) Unflatten(fo parcel.FlatObject) (atom.Object, error) {
	return in.p.Unflatten(fo)
}

func (in inbound) Release(fo parcel.FlatObject) {
	switch fo.Kind {
	case parcel.KindLocal:
		in.p.sendRelease(Handle(fo.Handle), fo.Weak)
	case parcel.KindRemote:
		if err := in.p.releaseExport(Handle(fo.Handle), fo.Weak); err != nil {
			in.p.log.Debug("transit release failed", zap.Uint32("handle", fo.Handle), zap.Error(err))
		}
	}
}

// directFlattener serves parcels handed straight to a Local. Objects are
// read back from the parcel's own table, so nothing is exported.
type directFlattener struct{}

func (directFlattener) Flatten(_ atom.Object, weak bool) (parcel.FlatObject, error) {
	return parcel.FlatObject{Kind: parcel.KindLocal, Weak: weak}, nil
}

func (directFlattener) Unflatten(parcel.FlatObject) (atom.Object, error) {
	return nil, errors.Unsupported(errors.PhaseUnarchive, "direct parcel has no handle space")
}

func (directFlattener) Release(parcel.FlatObject) {}

// flattenerFor returns the Flattener request parcels for b must be built
// with.
func flattenerFor(b IBinder) parcel.Flattener {
	if px, ok := b.(*Proxy); ok {
		return px.proc
	}
	return directFlattener{}
}

// NewParcel returns an empty request parcel suitable for b.
func NewParcel(b IBinder) *parcel.Parcel {
	return parcel.New(flattenerFor(b))
}
