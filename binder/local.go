package binder

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

// Local is an object implemented in this process. Transact runs its
// handlers on the calling goroutine unless serial dispatch is enabled.
type Local struct {
	atom.Atom

	descriptor string
	impl       any
	handler    Handler
	queue      *serialQueue
	log        *zap.Logger
	finalize   func()

	mu      sync.RWMutex
	methods map[Code]Method

	links obituaries
}

// LocalOption configures a Local.
type LocalOption func(*Local, *localConfig)

type localConfig struct {
	tracker *atom.Tracker
}

// WithHandler sets the raw handler used for codes without a Method.
func WithHandler(h Handler) LocalOption {
	return func(l *Local, _ *localConfig) { l.handler = h }
}

// WithSerialDispatch posts every call through a single FIFO queue served by
// one goroutine, so handlers never run concurrently and run in arrival
// order.
func WithSerialDispatch() LocalOption {
	return func(l *Local, _ *localConfig) { l.queue = &serialQueue{} }
}

// WithTracker registers the Local with a leak tracker.
func WithTracker(t *atom.Tracker) LocalOption {
	return func(_ *Local, c *localConfig) { c.tracker = t }
}

// WithLocalLogger sets the logger used for dispatch diagnostics.
func WithLocalLogger(log *zap.Logger) LocalOption {
	return func(l *Local, _ *localConfig) { l.log = log }
}

// WithFinalizer sets a function run once the last strong reference is
// gone, after the obituaries fired.
func WithFinalizer(fn func()) LocalOption {
	return func(l *Local, _ *localConfig) { l.finalize = fn }
}

// NewLocal creates a Local with the given interface descriptor. impl is the
// Go implementation AsInterface hands out to same-process callers; it may
// be nil.
func NewLocal(descriptor string, impl any, opts ...LocalOption) *Local {
	l := &Local{
		descriptor: descriptor,
		impl:       impl,
		methods:    make(map[Code]Method),
		log:        Logger(),
	}
	var cfg localConfig
	for _, opt := range opts {
		opt(l, &cfg)
	}
	l.Init(l, cfg.tracker)
	return l
}

// Register installs the Method for code, replacing any previous one.
func (l *Local) Register(code Code, m Method) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m == nil {
		delete(l.methods, code)
		return
	}
	l.methods[code] = m
}

// Impl returns the Go implementation passed to NewLocal.
func (l *Local) Impl() any { return l.impl }

func (l *Local) String() string {
	return "local(" + l.descriptor + ")"
}

// Transact dispatches the call to the registered Method or Handler.
func (l *Local) Transact(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error {
	if !l.IsBinderAlive() {
		return errors.Unreachable(errors.PhaseTransact, "local object finalized")
	}
	if l.queue != nil {
		return l.queue.post(ctx, func() error {
			return l.dispatch(ctx, code, data, reply, flags)
		})
	}
	return l.dispatch(ctx, code, data, reply, flags)
}

func (l *Local) dispatch(ctx context.Context, code Code, data, reply *parcel.Parcel, flags Flags) error {
	if flags&FlagOneWay != 0 {
		reply = nil
	}

	l.mu.RLock()
	m, ok := l.methods[code]
	l.mu.RUnlock()

	switch {
	case ok:
		return l.call(ctx, m, data, reply)
	case l.handler != nil:
		err := l.handler(ctx, code, data, reply, flags)
		if !errors.IsKind(err, errors.KindUnknownTransaction) {
			return err
		}
	}

	switch code {
	case CodePing:
		return nil
	case CodeInterface:
		if reply != nil {
			return reply.WriteValue(value.String(l.descriptor))
		}
		return nil
	}
	return errors.UnknownTransaction(code)
}

func (l *Local) call(ctx context.Context, m Method, data, reply *parcel.Parcel) error {
	args := value.Undefined()
	if data != nil && data.Remaining() > 0 {
		var err error
		args, err = data.ReadValue()
		if err != nil {
			return errors.BadArgument("request is not a Value", err)
		}
	}
	result, err := m(ctx, args)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return reply.WriteValue(result)
}

// Link registers an obituary delivered when the Local is finalized.
func (l *Local) Link(target IBinder, bindings value.Value, flags Flags) error {
	if !l.IsBinderAlive() {
		return errors.Unreachable(errors.PhaseLink, "local object finalized")
	}
	return l.links.link(target, bindings, flags)
}

// Unlink removes an obituary registration.
func (l *Local) Unlink(target IBinder, bindings value.Value, flags Flags) error {
	l.links.unlink(target, bindings, flags)
	return nil
}

// IsBinderAlive reports whether the Local has not been finalized.
func (l *Local) IsBinderAlive() bool {
	s := l.State()
	return s == atom.StateNoRefs || s == atom.StateLive
}

// Descriptor returns the interface descriptor.
func (l *Local) Descriptor(context.Context) (string, error) {
	return l.descriptor, nil
}

// Ping succeeds while the Local is alive.
func (l *Local) Ping(ctx context.Context) error {
	return l.Transact(ctx, CodePing, nil, nil, 0)
}

// OnLastStrongRef fires the Local's obituaries and runs its finalizer.
func (l *Local) OnLastStrongRef(any) {
	n := l.links.fire(l.log)
	if n > 0 {
		l.log.Debug("local obituaries delivered", zap.String("descriptor", l.descriptor), zap.Int("count", n))
	}
	if l.finalize != nil {
		l.finalize()
	}
}

func (*Local) sealed() {}
