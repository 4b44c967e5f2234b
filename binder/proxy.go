package binder

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

// Proxy stands in for an object exported by the peer. Calls are handed to
// the Process transport keyed by the peer's handle.
type Proxy struct {
	atom.Atom

	proc   *Process
	handle Handle
	dead   atomic.Bool

	// Remote references held on the peer's export. A Proxy holds at most
	// one of each strength and returns them when finalized.
	mu           sync.Mutex
	remoteStrong bool
	remoteWeak   bool
	descriptor   string

	links obituaries
}

func newProxy(p *Process, h Handle) *Proxy {
	px := &Proxy{proc: p, handle: h}
	px.Init(px, p.tracker)
	return px
}

// Handle returns the peer's handle for the object.
func (px *Proxy) Handle() Handle { return px.handle }

// Process returns the Process the Proxy belongs to.
func (px *Proxy) Process() *Process { return px.proc }

func (px *Proxy) String() string {
	return "proxy(" + px.proc.name + ":" + strconv.FormatUint(uint64(px.handle), 10) + ")"
}

// adopt takes ownership of a transit reference. It reports false when the
// Proxy already holds one of that strength, in which case the caller
// returns the redundant one.
func (px *Proxy) adopt(weak bool) bool {
	px.mu.Lock()
	defer px.mu.Unlock()
	held := &px.remoteStrong
	if weak {
		held = &px.remoteWeak
	}
	if *held {
		return false
	}
	*held = true
	return true
}

// ensureStrong acquires a remote strong reference unless one is held.
func (px *Proxy) ensureStrong(ctx context.Context) error {
	px.mu.Lock()
	held := px.remoteStrong
	px.mu.Unlock()
	if held {
		return nil
	}
	if err := px.proc.acquireRemote(ctx, px.handle, false); err != nil {
		return err
	}
	if !px.adopt(false) {
		px.proc.sendRelease(px.handle, false)
	}
	return nil
}

// Transact sends the call to the peer. Unless FlagOneWay is set it blocks
// until the reply arrives; the reply parcel then owns any object
// references the reply carries.
func (px *Proxy) Transact(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error {
	start := time.Now()
	err := px.transact(ctx, code, data, reply, flags)
	px.proc.rec.ObserveTransaction("client", code, errors.KindOf(err), time.Since(start))
	return err
}

func (px *Proxy) transact(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error {
	if !px.IsBinderAlive() {
		return errors.Unreachable(errors.PhaseTransact, "target is dead")
	}
	t := px.proc.currentTransport()
	if t == nil {
		return errors.Unreachable(errors.PhaseTransact, "process not connected")
	}

	tx := &Transaction{Handle: px.handle, Code: code, Flags: flags}
	if data != nil {
		if len(data.Objects()) > 0 && data.Flattener() != parcel.Flattener(px.proc) {
			return errors.Unsupported(errors.PhaseTransact, "request parcel was built for another process")
		}
		tx.Data = data.Bytes()
		tx.Objects = data.Objects()
	}

	rep, err := t.Send(ctx, tx)
	if err != nil {
		if ctx.Err() != nil && !errors.IsKind(err, errors.KindTimedOut) {
			return errors.Wrap(errors.PhaseTransact, errors.KindTimedOut, err, "transact canceled")
		}
		return err
	}
	if data != nil {
		data.TakeObjects()
	}
	if tx.OneWay() || rep == nil {
		return nil
	}
	if err := rep.Err(); err != nil {
		return err
	}
	if reply != nil {
		reply.Assign(rep.Data, rep.Objects, px.proc.in)
	} else {
		px.proc.Discard(rep.Objects)
	}
	return nil
}

// Link registers an obituary delivered when the peer dies.
func (px *Proxy) Link(target IBinder, bindings value.Value, flags Flags) error {
	if !px.IsBinderAlive() {
		return errors.Unreachable(errors.PhaseLink, "target is dead")
	}
	return px.links.link(target, bindings, flags)
}

// Unlink removes an obituary registration.
func (px *Proxy) Unlink(target IBinder, bindings value.Value, flags Flags) error {
	px.links.unlink(target, bindings, flags)
	return nil
}

// IsBinderAlive reports whether calls can still reach the peer. It turns
// false permanently when the peer dies.
func (px *Proxy) IsBinderAlive() bool {
	return !px.dead.Load() && px.proc.IsPeerAlive()
}

// Descriptor asks the peer for the interface descriptor once and caches it.
func (px *Proxy) Descriptor(ctx context.Context) (string, error) {
	px.mu.Lock()
	d := px.descriptor
	px.mu.Unlock()
	if d != "" {
		return d, nil
	}

	reply := parcel.New(nil)
	defer reply.Free()
	if err := px.Transact(ctx, CodeInterface, nil, reply, 0); err != nil {
		return "", err
	}
	v, err := reply.ReadValue()
	if err != nil {
		return "", err
	}
	d, err = v.AsString()
	if err != nil {
		return "", err
	}
	px.mu.Lock()
	px.descriptor = d
	px.mu.Unlock()
	return d, nil
}

// Ping checks that the peer object answers.
func (px *Proxy) Ping(ctx context.Context) error {
	return px.Transact(ctx, CodePing, nil, nil, 0)
}

// die marks the Proxy dead and fires its obituaries.
func (px *Proxy) die() int {
	if !px.dead.CompareAndSwap(false, true) {
		return 0
	}
	n := px.links.fire(px.proc.log)
	if n > 0 {
		px.proc.log.Debug("obituaries delivered", zap.Stringer("proxy", px), zap.Int("count", n))
	}
	return n
}

// OnLastStrongRef leaves the Process cache and returns the remote
// references the Proxy held.
func (px *Proxy) OnLastStrongRef(any) {
	px.proc.proxies.Remove(px.handle, px)
	px.links.discard()

	px.mu.Lock()
	strong, weak := px.remoteStrong, px.remoteWeak
	px.remoteStrong, px.remoteWeak = false, false
	px.mu.Unlock()

	if strong {
		px.proc.sendRelease(px.handle, false)
	}
	if weak {
		px.proc.sendRelease(px.handle, true)
	}
}

func (*Proxy) sealed() {}
