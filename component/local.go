package component

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/binderkit"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

// Binding routes a transaction code to an exported function.
type Binding struct {
	Code binder.Code
	Func string
}

// LocalFactory creates Locals, typically binder.NewLocal or a Process's
// NewLocal method.
type LocalFactory func(descriptor string, impl any, opts ...binder.LocalOption) *binder.Local

// NewLocal instantiates m and returns a Local whose methods call it. Calls
// are dispatched serially and the instance is closed when the Local is
// finalized. The Local's implementation is the *Instance.
func (m *Module) NewLocal(ctx context.Context, newLocal LocalFactory, descriptor string, bindings ...Binding) (*binder.Local, error) {
	if len(bindings) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no bindings for "+descriptor)
	}
	seen := make(map[binder.Code]bool, len(bindings))
	for _, b := range bindings {
		if _, ok := m.sigs[b.Func]; !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "function", b.Func)
		}
		if seen[b.Code] {
			return nil, errors.InvalidInput(errors.PhaseLoad, "code "+b.Code.String()+" bound twice")
		}
		seen[b.Code] = true
	}

	inst, err := m.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	log := m.rt.log.With(zap.String("descriptor", descriptor))
	l := newLocal(descriptor, inst,
		binder.WithSerialDispatch(),
		binder.WithFinalizer(func() {
			if err := inst.Close(context.Background()); err != nil {
				log.Warn("closing instance", zap.Error(err))
			}
		}),
	)
	for _, b := range bindings {
		fn := b.Func
		l.Register(b.Code, func(ctx context.Context, args value.Value) (value.Value, error) {
			return inst.Call(ctx, fn, args)
		})
	}
	log.Debug("wasm object created", zap.Int("methods", len(bindings)))
	return l, nil
}

// BindAll binds every declared function to the FourCC made of the first
// four bytes of its name. Names sharing a prefix collide and are rejected.
func (m *Module) BindAll() ([]Binding, error) {
	var out []Binding
	seen := make(map[binder.Code]string)
	for _, name := range m.Functions() {
		code := binder.Code(binderkit.ParseFourCC(name))
		if prev, dup := seen[code]; dup {
			return nil, errors.InvalidInput(errors.PhaseLoad, "functions "+prev+" and "+name+" share code "+code.String())
		}
		seen[code] = name
		out = append(out, Binding{Code: code, Func: name})
	}
	return out, nil
}
