package stream

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/transport/internal/lane"
)

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

// Option configures a Conn.
type Option func(*Conn)

// WithLimits sets the limits applied to frames read from the peer.
func WithLimits(l Limits) Option {
	return func(c *Conn) { c.limits = l }
}

// Conn carries one Process's transactions over a byte stream such as a
// unix socket. A read loop, a write loop and the goroutines handling
// inbound transactions run under an errgroup; the first failure tears the
// connection down and the Process sees its peer die. Inbound one-way
// transactions for the same handle run in arrival order.
type Conn struct {
	proc   *binder.Process
	rw     io.ReadWriteCloser
	limits Limits
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	oneway *lane.Lanes[uint32]

	nextID  atomic.Uint32
	pmu     sync.Mutex
	pending map[uint32]chan *binder.Reply

	omu    sync.Mutex
	outbox [][]byte
	wake   chan struct{}

	closeOnce sync.Once
}

// Serve connects p to the peer on the other end of rw and starts the
// connection loops. The connection lives until ctx is done, Close is
// called, p is closed or the stream fails.
func Serve(ctx context.Context, p *binder.Process, rw io.ReadWriteCloser, opts ...Option) (*Conn, error) {
	c := &Conn{
		proc:    p,
		rw:      rw,
		limits:  DefaultLimits(),
		pending: make(map[uint32]chan *binder.Reply),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = Logger().With(zap.String("process", p.Name()))

	ctx, c.cancel = context.WithCancel(ctx)
	c.eg, c.ctx = errgroup.WithContext(ctx)
	c.oneway = lane.New[uint32](func(run func()) {
		c.eg.Go(func() error {
			run()
			return nil
		})
	})
	if err := p.Connect(c); err != nil {
		c.cancel()
		return nil, err
	}

	c.eg.Go(c.readLoop)
	c.eg.Go(c.writeLoop)
	c.eg.Go(func() error {
		<-c.ctx.Done()
		c.shutdown(context.Cause(c.ctx))
		return nil
	})
	c.log.Debug("stream connected")
	return c, nil
}

// Dial connects p to a peer listening on address.
func Dial(ctx context.Context, p *binder.Process, network, address string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "dial "+address)
	}
	c, err := Serve(ctx, p, nc, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Send implements binder.Transport.
func (c *Conn) Send(ctx context.Context, tx *binder.Transaction) (*binder.Reply, error) {
	if c.ctx.Err() != nil {
		return nil, errors.Unreachable(errors.PhaseTransport, "stream is closed")
	}
	id := c.nextID.Add(1)
	var ch chan *binder.Reply
	if !tx.OneWay() {
		ch = make(chan *binder.Reply, 1)
		c.pmu.Lock()
		c.pending[id] = ch
		c.pmu.Unlock()
	}
	c.enqueue(AppendFrame(nil, transactionFrame(id, tx)))

	if ch == nil {
		return nil, nil
	}
	select {
	case rep := <-ch:
		if rep == nil {
			return nil, errors.Unreachable(errors.PhaseTransport, "stream closed before reply")
		}
		return rep, nil
	case <-c.ctx.Done():
		return nil, errors.Unreachable(errors.PhaseTransport, "stream closed before reply")
	case <-ctx.Done():
		c.pmu.Lock()
		_, waiting := c.pending[id]
		delete(c.pending, id)
		c.pmu.Unlock()
		if !waiting {
			if rep := <-ch; rep != nil {
				return rep, nil
			}
			return nil, errors.Unreachable(errors.PhaseTransport, "stream closed before reply")
		}
		// The frame may already be with the peer, which then owns the
		// transit references.
		return &binder.Reply{
			Status: errors.StatusOf(errors.Wrap(errors.PhaseTransport, errors.KindTimedOut, ctx.Err(), "reply")),
			Detail: "caller stopped waiting: " + ctx.Err().Error(),
		}, nil
	}
}

// Close implements binder.Transport. It does not wait for the loops; use
// Wait for that.
func (c *Conn) Close() error {
	c.cancel()
	return nil
}

// Wait blocks until every connection goroutine has exited and returns the
// error that ended the connection, if any.
func (c *Conn) Wait() error {
	err := c.eg.Wait()
	if errors.IsKind(err, errors.KindClosed) {
		return nil
	}
	return err
}

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Conn) enqueue(frame []byte) {
	c.omu.Lock()
	c.outbox = append(c.outbox, frame)
	c.omu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) writeLoop() error {
	w := bufio.NewWriter(c.rw)
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-c.wake:
		}
		c.omu.Lock()
		frames := c.outbox
		c.outbox = nil
		c.omu.Unlock()
		for _, f := range frames {
			if _, err := w.Write(f); err != nil {
				return errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "write frame")
			}
		}
		if err := w.Flush(); err != nil {
			return errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "flush")
		}
	}
}

func (c *Conn) readLoop() error {
	r := bufio.NewReader(c.rw)
	for {
		f, err := ReadFrame(r, c.limits)
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return errors.Closed(errors.PhaseTransport, "stream peer")
			}
			return errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, err, "read frame")
		}
		if f.IsReply() {
			c.deliverReply(f)
			continue
		}
		if f.Header.Handle == 0 {
			// Reference counting traffic is applied in arrival order.
			c.handle(f)
			continue
		}
		if binder.Flags(f.Header.Flags)&binder.FlagOneWay != 0 {
			c.oneway.Push(f.Header.Handle, func() { c.handle(f) })
			continue
		}
		c.eg.Go(func() error {
			c.handle(f)
			return nil
		})
	}
}

func (c *Conn) handle(f Frame) {
	tx := f.transaction()
	rep := c.proc.Receive(c.ctx, tx)
	if tx.OneWay() || rep == nil {
		return
	}
	c.enqueue(AppendFrame(nil, replyFrame(f.Header.ID, rep)))
}

func (c *Conn) deliverReply(f Frame) {
	c.pmu.Lock()
	ch, ok := c.pending[f.Header.ID]
	delete(c.pending, f.Header.ID)
	c.pmu.Unlock()
	rep := f.reply()
	if !ok {
		c.log.Debug("reply without caller", zap.Uint32("id", f.Header.ID))
		c.proc.Discard(rep.Objects)
		return
	}
	ch <- rep
}

// shutdown fails every waiting caller and reports the peer gone.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.rw.Close()
		c.pmu.Lock()
		pending := c.pending
		c.pending = make(map[uint32]chan *binder.Reply)
		c.pmu.Unlock()
		for _, ch := range pending {
			ch <- nil
		}
		if cause == nil || cause == context.Canceled {
			cause = errors.Closed(errors.PhaseTransport, "stream")
		}
		c.log.Debug("stream down", zap.Error(cause))
		c.proc.PeerDied(errors.Wrap(errors.PhaseTransport, errors.KindUnreachable, cause, "stream lost"))
	})
}
