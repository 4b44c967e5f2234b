package binder

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/resource"
	"github.com/wippyai/binderkit/syncx"
)

// exportKindLocal is the resource kind recorded for exported Locals.
const exportKindLocal uint32 = 1

const dispatchOwner = "dispatch"

// Process is the runtime context one side of a connection runs in. It owns
// the table of Locals exported to the peer, the cache of Proxies standing
// in for the peer's objects and the transport between them.
type Process struct {
	id      uuid.UUID
	name    string
	log     *zap.Logger
	tracker *atom.Tracker
	rec     Recorder

	exports *resource.ExportTable
	proxies *resource.WeakCache[*Proxy]

	// mu serializes export count changes with the local references that
	// back them. References dropped under mu are released after unlock.
	mu      sync.Mutex
	holds   map[Handle]*exportHold
	pending []func()

	tmu       sync.RWMutex
	transport Transport

	peerAlive atomic.Bool
	closed    atomic.Bool
	peerGone  syncx.Event
	cause     atomic.Pointer[error]

	in inbound
}

// exportHold keeps an exported Local reachable: weakly for as long as it
// is exported and strongly while the peer holds strong references.
type exportHold struct {
	weak   *atom.WeakRef[*Local]
	strong *atom.Ref[*Local]
}

// Option configures a Process.
type Option func(*Process)

// WithName sets the name used in logs and leak reports.
func WithName(name string) Option {
	return func(p *Process) { p.name = name }
}

// WithLogger sets the Process logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Process) { p.log = log }
}

// WithProcessTracker tracks the Process's Proxies and the Locals it
// creates with NewLocal.
func WithProcessTracker(t *atom.Tracker) Option {
	return func(p *Process) { p.tracker = t }
}

// WithRecorder sets the transaction observer.
func WithRecorder(r Recorder) Option {
	return func(p *Process) { p.rec = r }
}

// NewProcess creates an unconnected Process.
func NewProcess(opts ...Option) *Process {
	p := &Process{
		id:      uuid.New(),
		log:     Logger(),
		rec:     nopRecorder{},
		exports: resource.NewExportTable(),
		proxies: resource.NewWeakCache[*Proxy](),
		holds:   make(map[Handle]*exportHold),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		p.name = p.id.String()[:8]
	}
	p.log = p.log.With(zap.String("process", p.name))
	p.in = inbound{p}
	p.exports.Subscribe(exportObserver{p})
	return p
}

// ID returns the Process identifier.
func (p *Process) ID() uuid.UUID { return p.id }

// Name returns the Process name.
func (p *Process) Name() string { return p.name }

func (p *Process) String() string { return "process(" + p.name + ")" }

// Tracker returns the leak tracker, or nil.
func (p *Process) Tracker() *atom.Tracker { return p.tracker }

// Exports returns the number of Locals currently exported to the peer.
func (p *Process) Exports() int { return p.exports.Len() }

// Proxies returns the number of cached Proxies.
func (p *Process) Proxies() int { return p.proxies.Len() }

// Connect attaches the transport to the peer. A Process connects once.
func (p *Process) Connect(t Transport) error {
	if p.closed.Load() {
		return errors.Closed(errors.PhaseTransport, "process")
	}
	p.tmu.Lock()
	defer p.tmu.Unlock()
	if p.transport != nil {
		return errors.InvalidInput(errors.PhaseTransport, "process already connected")
	}
	p.transport = t
	p.peerAlive.Store(true)
	p.log.Debug("connected")
	return nil
}

func (p *Process) currentTransport() Transport {
	p.tmu.RLock()
	defer p.tmu.RUnlock()
	return p.transport
}

// IsPeerAlive reports whether the peer is connected and has not died.
func (p *Process) IsPeerAlive() bool { return p.peerAlive.Load() }

// PeerGone is closed when the peer dies.
func (p *Process) PeerGone() <-chan struct{} { return p.peerGone.Done() }

// PeerDeathCause returns the error the transport reported the peer's death
// with, or nil while the peer is alive.
func (p *Process) PeerDeathCause() error {
	if c := p.cause.Load(); c != nil {
		return *c
	}
	return nil
}

// NewLocal creates a Local tracked and logged by this Process.
func (p *Process) NewLocal(descriptor string, impl any, opts ...LocalOption) *Local {
	base := []LocalOption{WithTracker(p.tracker), WithLocalLogger(p.log)}
	return NewLocal(descriptor, impl, append(base, opts...)...)
}

// Publish exports l to the peer under a handle that stays valid until
// Unpublish. The Process holds a strong reference to l meanwhile.
func (p *Process) Publish(l *Local) (Handle, error) {
	h, err := p.export(l, false)
	if err != nil {
		return 0, err
	}
	p.log.Debug("published", zap.Uint32("handle", uint32(h)), zap.Stringer("local", l))
	return h, nil
}

// Unpublish drops the reference taken by Publish.
func (p *Process) Unpublish(h Handle) error {
	return p.releaseExport(h, false)
}

// Proxy returns a strong reference to the Proxy for the peer's object h,
// acquiring a remote strong reference if the Proxy does not hold one yet.
func (p *Process) Proxy(ctx context.Context, h Handle) (*atom.Ref[*Proxy], error) {
	if !p.IsPeerAlive() {
		return nil, errors.Unreachable(errors.PhaseTransport, "peer is gone")
	}
	ref, _ := p.proxies.GetOrCreate(h, p, func() *Proxy { return newProxy(p, h) })
	if err := ref.Get().ensureStrong(ctx); err != nil {
		ref.Release()
		return nil, err
	}
	return ref, nil
}

func (p *Process) lockExports() { p.mu.Lock() }

func (p *Process) unlockExports() {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

// export adds a peer reference to l, creating the export on first use.
func (p *Process) export(l *Local, weak bool) (Handle, error) {
	p.lockExports()
	defer p.unlockExports()

	if p.closed.Load() {
		return 0, errors.Closed(errors.PhaseTransport, "process")
	}
	var hold *exportHold
	if h, ok := p.exports.HandleOf(l); ok {
		hold = p.holds[h]
	}
	needStrong := !weak && (hold == nil || hold.strong == nil)
	if needStrong && !l.AttemptIncStrong(p) {
		return 0, errors.Unreachable(errors.PhaseArchive, "local object finalized")
	}

	h, _, err := p.exports.Export(exportKindLocal, l, weak)
	if err != nil {
		if needStrong {
			p.pending = append(p.pending, func() { l.DecStrong(p) })
		}
		return 0, err
	}
	if hold == nil {
		hold = &exportHold{weak: atom.NewWeak(l, p)}
		p.holds[h] = hold
	}
	if needStrong {
		hold.strong = atom.Adopt(l, p)
	}
	return h, nil
}

// acquireExport adds a peer reference to an existing export.
func (p *Process) acquireExport(h Handle, weak bool) error {
	p.lockExports()
	defer p.unlockExports()

	hold := p.holds[h]
	if hold == nil {
		return errors.NotFound(errors.PhaseTransport, "handle", strconv.FormatUint(uint64(h), 10))
	}
	l := hold.weak.Peek()
	needStrong := !weak && hold.strong == nil
	if needStrong && !l.AttemptIncStrong(p) {
		return errors.Unreachable(errors.PhaseTransport, "local object finalized")
	}
	if _, err := p.exports.Acquire(h, weak); err != nil {
		if needStrong {
			p.pending = append(p.pending, func() { l.DecStrong(p) })
		}
		return err
	}
	if needStrong {
		hold.strong = atom.Adopt(l, p)
	}
	return nil
}

// releaseExport drops a peer reference. The export goes away when none
// remain.
func (p *Process) releaseExport(h Handle, weak bool) error {
	p.lockExports()
	defer p.unlockExports()

	counts, err := p.exports.Release(h, weak)
	if err != nil {
		return err
	}
	if counts.Strong == 0 {
		if hold := p.holds[h]; hold != nil && hold.strong != nil {
			strong := hold.strong
			hold.strong = nil
			p.pending = append(p.pending, func() { strong.Release() })
		}
	}
	return nil
}

// exportObserver releases the local references behind dropped exports.
// It runs with the Process export lock held.
type exportObserver struct{ p *Process }

func (o exportObserver) OnResourceEvent(e resource.Event) {
	p := o.p
	switch e.Type {
	case resource.EventCreated:
		p.log.Debug("export created", zap.Uint32("handle", uint32(e.Handle)))
	case resource.EventDropped:
		hold := p.holds[e.Handle]
		delete(p.holds, e.Handle)
		if hold == nil {
			return
		}
		p.pending = append(p.pending, func() {
			if hold.strong != nil {
				hold.strong.Release()
			}
			hold.weak.Release()
		})
		p.log.Debug("export dropped",
			zap.Uint32("handle", uint32(e.Handle)),
			zap.Int32("strong", e.Counts.Strong),
			zap.Int32("weak", e.Counts.Weak))
	}
}

// sendRelease returns a reference on the peer's object h.
func (p *Process) sendRelease(h Handle, weak bool) {
	t := p.currentTransport()
	if t == nil || !p.IsPeerAlive() {
		return
	}
	if _, err := t.Send(context.Background(), controlTransaction(codeRelease, h, weak)); err != nil {
		p.log.Debug("release not sent", zap.Uint32("handle", uint32(h)), zap.Error(err))
	}
}

// acquireRemote takes a reference on the peer's object h.
func (p *Process) acquireRemote(ctx context.Context, h Handle, weak bool) error {
	t := p.currentTransport()
	if t == nil || !p.IsPeerAlive() {
		return errors.Unreachable(errors.PhaseTransport, "peer is gone")
	}
	tx := controlTransaction(codeAcquire, h, weak)
	tx.Flags = 0
	rep, err := t.Send(ctx, tx)
	if err != nil {
		return err
	}
	return rep.Err()
}

func controlTransaction(code Code, h Handle, weak bool) *Transaction {
	data := parcel.New(nil)
	data.WriteUint32(uint32(h))
	var w int32
	if weak {
		w = 1
	}
	data.WriteInt32(w)
	return &Transaction{Code: code, Flags: FlagOneWay, Data: data.Bytes()}
}

// Receive implements Receiver.
func (p *Process) Receive(ctx context.Context, tx *Transaction) *Reply {
	if tx.Handle == 0 {
		return p.control(tx)
	}

	start := time.Now()
	data := parcel.FromBytes(tx.Data, tx.Objects, p.in)
	defer data.Free()

	var reply *parcel.Parcel
	err := p.dispatch(ctx, tx, data, func() *parcel.Parcel {
		if !tx.OneWay() {
			reply = parcel.New(p)
		}
		return reply
	})
	p.rec.ObserveTransaction("server", tx.Code, errors.KindOf(err), time.Since(start))

	if tx.OneWay() {
		if err != nil {
			p.log.Debug("one-way transaction failed",
				zap.Uint32("handle", uint32(tx.Handle)),
				zap.Stringer("code", tx.Code),
				zap.Error(err))
		}
		return nil
	}
	if err != nil {
		if reply != nil {
			reply.Free()
		}
		return &Reply{Status: errors.StatusOf(err), Detail: err.Error()}
	}
	return &Reply{Data: reply.Bytes(), Objects: reply.TakeObjects()}
}

func (p *Process) dispatch(ctx context.Context, tx *Transaction, data *parcel.Parcel, newReply func() *parcel.Parcel) error {
	v, ok := p.exports.Lookup(tx.Handle)
	if !ok {
		return errors.Unreachable(errors.PhaseTransact, "no object for handle "+strconv.FormatUint(uint64(tx.Handle), 10))
	}
	l := v.(*Local)
	if !l.AttemptIncStrong(dispatchOwner) {
		return errors.Unreachable(errors.PhaseTransact, "local object finalized")
	}
	defer l.DecStrong(dispatchOwner)
	return l.Transact(ctx, tx.Code, data, newReply(), tx.Flags)
}

func (p *Process) control(tx *Transaction) *Reply {
	data := parcel.FromBytes(tx.Data, nil, nil)
	h, err := data.ReadUint32()
	var weak int32
	if err == nil {
		weak, err = data.ReadInt32()
	}
	if err == nil {
		switch tx.Code {
		case codeAcquire:
			err = p.acquireExport(Handle(h), weak != 0)
		case codeRelease:
			err = p.releaseExport(Handle(h), weak != 0)
		default:
			err = errors.UnknownTransaction(tx.Code)
		}
	}
	if err != nil {
		p.log.Debug("control transaction failed", zap.Stringer("code", tx.Code), zap.Uint32("handle", h), zap.Error(err))
	}
	if tx.OneWay() {
		return nil
	}
	return &Reply{Status: errors.StatusOf(err), Detail: errorDetail(err)}
}

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// PeerDied implements Receiver. Every export is dropped and every live
// Proxy dies, delivering its obituaries once.
func (p *Process) PeerDied(cause error) {
	if !p.peerAlive.CompareAndSwap(true, false) {
		return
	}
	if cause == nil {
		cause = errors.Unreachable(errors.PhaseTransport, "peer closed")
	}
	p.cause.Store(&cause)
	p.peerGone.Set()
	p.log.Info("peer died", zap.Error(cause))

	p.lockExports()
	dropped := p.exports.Clear()
	p.unlockExports()

	obituaries := 0
	p.proxies.Each(p, func(_ Handle, px *Proxy) bool {
		obituaries += px.die()
		return true
	})
	p.proxies.Clear()
	p.rec.ObserveObituaries(obituaries)
	p.log.Debug("peer state cleared", zap.Int("exports", dropped), zap.Int("obituaries", obituaries))
}

// Close disconnects from the peer and drops every export.
func (p *Process) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var result *multierror.Error
	if t := p.currentTransport(); t != nil {
		if err := t.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	p.PeerDied(errors.Closed(errors.PhaseTransport, "process"))

	p.lockExports()
	err := p.exports.Close()
	p.unlockExports()
	if err != nil {
		result = multierror.Append(result, err)
	}
	p.proxies.Clear()
	return result.ErrorOrNil()
}
