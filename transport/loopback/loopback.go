package loopback

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/transport/internal/lane"
)

// DefaultWorkers bounds the transactions one side dispatches concurrently.
const DefaultWorkers = 8

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the package logger.
func Logger() *zap.Logger { return logger.Load() }

// SetLogger replaces the package logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

type options struct {
	workers  int64
	procOpts []binder.Option
}

// Option configures a Link.
type Option func(*options)

// WithWorkers bounds concurrent dispatch per direction.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = int64(n)
		}
	}
}

// WithProcessOptions adds options for the Processes created by Pair.
func WithProcessOptions(opts ...binder.Option) Option {
	return func(o *options) { o.procOpts = append(o.procOpts, opts...) }
}

// Link joins two Processes in the same address space. Each direction has
// a FIFO served by a dispatcher goroutine: control transactions run on the
// dispatcher in order, one-way transactions run in order per target
// handle, and two-way calls start in order on a bounded pool of workers.
type Link struct {
	a, b *binder.Process
	ab   *endpoint
	ba   *endpoint

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
	log    *zap.Logger
}

// Connect links a and b. The link dies when ctx is done, Kill is called or
// either Process is closed.
func Connect(ctx context.Context, a, b *binder.Process, opts ...Option) (*Link, error) {
	o := options{workers: DefaultWorkers}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Link{a: a, b: b, log: Logger().With(zap.String("link", a.Name()+"<->"+b.Name()))}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.ab = newEndpoint(l, a, b, o.workers)
	l.ba = newEndpoint(l, b, a, o.workers)

	if err := a.Connect(l.ab); err != nil {
		l.cancel()
		return nil, err
	}
	if err := b.Connect(l.ba); err != nil {
		l.cancel()
		a.PeerDied(err)
		return nil, err
	}

	l.wg.Add(2)
	go l.ab.run()
	go l.ba.run()
	context.AfterFunc(l.ctx, func() {
		l.Kill(errors.Unreachable(errors.PhaseTransport, "loopback link canceled"))
	})
	l.log.Debug("connected")
	return l, nil
}

// Pair creates two connected Processes named "server" and "client".
func Pair(ctx context.Context, opts ...Option) (*Link, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	server := binder.NewProcess(append([]binder.Option{binder.WithName("server")}, o.procOpts...)...)
	client := binder.NewProcess(append([]binder.Option{binder.WithName("client")}, o.procOpts...)...)
	return Connect(ctx, server, client, opts...)
}

// Server returns the first Process of the link.
func (l *Link) Server() *binder.Process { return l.a }

// Client returns the second Process of the link.
func (l *Link) Client() *binder.Process { return l.b }

// Done is closed once the link is dead.
func (l *Link) Done() <-chan struct{} { return l.ctx.Done() }

// Kill breaks the link as if the peer process had crashed. Both Processes
// are told their peer died with cause.
func (l *Link) Kill(cause error) {
	l.once.Do(func() {
		if cause == nil {
			cause = errors.Unreachable(errors.PhaseTransport, "loopback link killed")
		}
		l.cancel()
		l.log.Debug("link down", zap.Error(cause))
		l.a.PeerDied(cause)
		l.b.PeerDied(cause)
	})
}

// Close kills the link and closes both Processes.
func (l *Link) Close() error {
	l.Kill(errors.Closed(errors.PhaseTransport, "loopback link"))
	errA := l.a.Close()
	errB := l.b.Close()
	if errA != nil {
		return errA
	}
	return errB
}

// Wait blocks until the dispatchers and every transaction they started
// have finished. It returns once the link is dead.
func (l *Link) Wait() {
	<-l.ctx.Done()
	l.wg.Wait()
}

// delivery is a queued transaction. reply is nil for one-way transactions.
type delivery struct {
	tx    *binder.Transaction
	ctx   context.Context
	reply chan *binder.Reply
	taken atomic.Bool

	mu        sync.Mutex
	abandoned bool
}

// claim marks the delivery taken by either the dispatcher or a caller
// withdrawing it. Only the first claim succeeds.
func (d *delivery) claim() bool { return d.taken.CompareAndSwap(false, true) }

// abandon is called by a caller that stops waiting for a dispatched
// transaction. A reply that already arrived is returned instead.
func (d *delivery) abandon() *binder.Reply {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case rep := <-d.reply:
		return rep
	default:
		d.abandoned = true
		return nil
	}
}

// answer hands rep to the caller. It reports false if the caller is gone.
func (d *delivery) answer(rep *binder.Reply) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.abandoned {
		return false
	}
	d.reply <- rep
	return true
}

// endpoint is the Transport of one Process, delivering to the other.
type endpoint struct {
	link     *Link
	from, to *binder.Process
	sem      *semaphore.Weighted
	oneway   *lane.Lanes[binder.Handle]

	mu     sync.Mutex
	queue  []*delivery
	notify chan struct{}
}

func newEndpoint(l *Link, from, to *binder.Process, workers int64) *endpoint {
	e := &endpoint{
		link:   l,
		from:   from,
		to:     to,
		sem:    semaphore.NewWeighted(workers),
		notify: make(chan struct{}, 1),
	}
	e.oneway = lane.New[binder.Handle](func(run func()) {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			run()
		}()
	})
	return e
}

// Send implements binder.Transport.
func (e *endpoint) Send(ctx context.Context, tx *binder.Transaction) (*binder.Reply, error) {
	if e.link.ctx.Err() != nil {
		return nil, errors.Unreachable(errors.PhaseTransport, "loopback link is down")
	}
	d := &delivery{tx: copyTransaction(tx), ctx: ctx}
	if !tx.OneWay() {
		d.reply = make(chan *binder.Reply, 1)
	}
	e.mu.Lock()
	e.queue = append(e.queue, d)
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}

	if d.reply == nil {
		return nil, nil
	}
	select {
	case rep := <-d.reply:
		return rep, nil
	case <-e.link.ctx.Done():
		return nil, errors.Unreachable(errors.PhaseTransport, "loopback link is down")
	case <-ctx.Done():
		if d.claim() {
			return nil, errors.Wrap(errors.PhaseTransport, errors.KindTimedOut, ctx.Err(), "transaction withdrawn")
		}
		// Already dispatched: the peer owns the transit references.
		if rep := d.abandon(); rep != nil {
			return rep, nil
		}
		return &binder.Reply{
			Status: errors.StatusOf(errors.Wrap(errors.PhaseTransport, errors.KindTimedOut, ctx.Err(), "reply")),
			Detail: "caller stopped waiting: " + ctx.Err().Error(),
		}, nil
	}
}

// Close implements binder.Transport.
func (e *endpoint) Close() error {
	e.link.Kill(errors.Closed(errors.PhaseTransport, e.from.String()))
	return nil
}

func (e *endpoint) take() []*delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queue
	e.queue = nil
	return q
}

func (e *endpoint) run() {
	defer e.link.wg.Done()
	for {
		select {
		case <-e.link.ctx.Done():
			return
		case <-e.notify:
		}
		for _, d := range e.take() {
			if !d.claim() {
				continue
			}
			if d.tx.Handle == 0 {
				e.deliver(d)
				continue
			}
			if d.reply == nil {
				e.oneway.Push(d.tx.Handle, func() {
					if err := e.sem.Acquire(e.link.ctx, 1); err != nil {
						return
					}
					defer e.sem.Release(1)
					e.deliver(d)
				})
				continue
			}
			if err := e.sem.Acquire(e.link.ctx, 1); err != nil {
				return
			}
			e.link.wg.Add(1)
			go func() {
				defer e.link.wg.Done()
				defer e.sem.Release(1)
				e.deliver(d)
			}()
		}
	}
}

func (e *endpoint) deliver(d *delivery) {
	ctx := e.link.ctx
	if d.reply != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		stop := context.AfterFunc(d.ctx, cancel)
		defer stop()
		defer cancel()
	}
	rep := e.to.Receive(ctx, d.tx)
	if d.reply == nil || rep == nil {
		return
	}
	if e.link.ctx.Err() != nil || !d.answer(rep) {
		// Nobody is waiting; return what the reply carried.
		e.from.Discard(rep.Objects)
	}
}

func copyTransaction(tx *binder.Transaction) *binder.Transaction {
	return &binder.Transaction{
		Handle:  tx.Handle,
		Code:    tx.Code,
		Flags:   tx.Flags,
		Data:    append([]byte(nil), tx.Data...),
		Objects: append([]parcel.FlatObject(nil), tx.Objects...),
	}
}
