package component

import (
	"context"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

// Runtime compiles and runs WebAssembly modules.
type Runtime struct {
	rt  wazero.Runtime
	log *zap.Logger
}

// RuntimeConfig holds runtime settings.
type RuntimeConfig struct {
	// MemoryLimitPages caps the memory of each instance in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32

	// CloseOnContextDone stops running calls when their context is done.
	CloseOnContextDone bool
}

// NewRuntime creates a Runtime. cfg may be nil.
func NewRuntime(ctx context.Context, cfg *RuntimeConfig) *Runtime {
	rc := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		rc = rc.WithCloseOnContextDone(cfg.CloseOnContextDone)
	}
	return &Runtime{rt: wazero.NewRuntimeWithConfig(ctx, rc), log: Logger()}
}

// Close releases the runtime and every module compiled by it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}

// Load compiles a core WebAssembly module. witText declares the exported
// functions the module offers; each must exist with the matching core
// signature.
func (r *Runtime) Load(ctx context.Context, wasm []byte, witText string) (*Module, error) {
	sigs, err := ParseSignatures(witText)
	if err != nil {
		return nil, err
	}
	compiled, err := r.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	exported := compiled.ExportedFunctions()
	for _, name := range Names(sigs) {
		def, ok := exported[name]
		if !ok {
			compiled.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "exported function", name)
		}
		params, results := sigs[name].coreTypes()
		if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), results) {
			compiled.Close(ctx)
			return nil, errors.TypeMismatch(errors.PhaseLoad,
				"func"+typeList(def.ParamTypes())+typeList(def.ResultTypes()),
				"func"+typeList(params)+typeList(results))
		}
	}

	r.log.Debug("module loaded", zap.Strings("functions", Names(sigs)))
	return &Module{rt: r, compiled: compiled, sigs: sigs}, nil
}

// LoadFile is Load for a module on disk.
func (r *Runtime) LoadFile(ctx context.Context, path, witText string) (*Module, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).Path(path).Cause(err).Detail("read module").Build()
	}
	return r.Load(ctx, wasm, witText)
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeList(ts []api.ValueType) string {
	s := "("
	for i, t := range ts {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}

// Module is a compiled module with its declared signatures.
type Module struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	sigs     map[string]*Signature
}

// Functions returns the declared function names in sorted order.
func (m *Module) Functions() []string { return Names(m.sigs) }

// Signature returns the declared signature of name.
func (m *Module) Signature(name string) (*Signature, bool) {
	sig, ok := m.sigs[name]
	return sig, ok
}

// Close releases the compiled code. Running instances are unaffected.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instantiate creates an independent instance with its own memory.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	// Anonymous instances, so one module can back any number of objects.
	mod, err := m.rt.rt.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindFailed, err, "instantiate module")
	}
	return &Instance{module: m, mod: mod}, nil
}

// Instance is one instantiated module. Calls are serialized: a wasm
// instance runs one call at a time.
type Instance struct {
	module *Module
	mod    api.Module

	mu     sync.Mutex
	closed bool
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module { return i.module }

// Call invokes the exported function name. args is the single argument
// for a one-parameter function, or a map keyed by parameter name. A single
// result is returned as is; several come back as a map keyed by position.
func (i *Instance) Call(ctx context.Context, name string, args value.Value) (value.Value, error) {
	sig, ok := i.module.sigs[name]
	if !ok {
		return value.Undefined(), errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	params, err := lowerArgs(sig, args)
	if err != nil {
		return value.Undefined(), err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return value.Undefined(), errors.Closed(errors.PhaseRuntime, "instance")
	}
	raw, err := i.mod.ExportedFunction(name).Call(ctx, params...)
	if err != nil {
		return value.Undefined(), errors.Wrap(errors.PhaseRuntime, errors.KindFailed, err, "call "+name)
	}
	return liftResults(sig, raw), nil
}

// Close releases the instance memory.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.mod.Close(ctx)
}

func lowerArgs(sig *Signature, args value.Value) ([]uint64, error) {
	params := make([]uint64, len(sig.Params))
	for n, p := range sig.Params {
		arg := args
		if args.IsMap() || len(sig.Params) > 1 {
			arg = args.ValueFor(value.String(p.Name))
		}
		if arg.IsUndefined() {
			return nil, errors.BadArgument("missing argument "+p.Name, nil)
		}
		v, err := lower(p.Type, arg)
		if err != nil {
			return nil, errors.BadArgument("argument "+p.Name, err)
		}
		params[n] = v
	}
	return params, nil
}

func lower(t wit.Type, v value.Value) (uint64, error) {
	switch t.(type) {
	case wit.Bool:
		b, err := v.AsBool()
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case wit.F32:
		f, err := v.AsFloat64()
		return api.EncodeF32(float32(f)), err
	case wit.F64:
		f, err := v.AsFloat64()
		return api.EncodeF64(f), err
	}

	n, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	lo, hi := intRange(t)
	if n < lo || n > hi {
		return 0, errors.OutOfRange(errors.PhaseRuntime, n, "parameter type")
	}
	switch t.(type) {
	case wit.S64, wit.U64:
		return uint64(n), nil
	default:
		return uint64(uint32(n)), nil
	}
}

func intRange(t wit.Type) (lo, hi int64) {
	switch t.(type) {
	case wit.S8:
		return math.MinInt8, math.MaxInt8
	case wit.U8:
		return 0, math.MaxUint8
	case wit.S16:
		return math.MinInt16, math.MaxInt16
	case wit.U16:
		return 0, math.MaxUint16
	case wit.S32:
		return math.MinInt32, math.MaxInt32
	case wit.U32:
		return 0, math.MaxUint32
	case wit.Char:
		return 0, 0x10ffff
	case wit.U64:
		return 0, math.MaxInt64
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func liftResults(sig *Signature, raw []uint64) value.Value {
	switch len(sig.Results) {
	case 0:
		return value.Undefined()
	case 1:
		return lift(sig.Results[0], raw[0])
	}
	pairs := make([]value.Pair, len(sig.Results))
	for n, t := range sig.Results {
		pairs[n] = value.Pair{Key: value.Int32(int32(n)), Value: lift(t, raw[n])}
	}
	return value.NewMap(pairs...)
}

func lift(t wit.Type, raw uint64) value.Value {
	switch t.(type) {
	case wit.Bool:
		return value.Bool(uint32(raw) != 0)
	case wit.S8:
		return value.Int8(int8(raw))
	case wit.U8:
		return value.Int16(int16(uint8(raw)))
	case wit.S16:
		return value.Int16(int16(raw))
	case wit.U16:
		return value.Int32(int32(uint16(raw)))
	case wit.S32, wit.Char:
		return value.Int32(api.DecodeI32(raw))
	case wit.U32:
		return value.Int64(int64(api.DecodeU32(raw)))
	case wit.F32:
		return value.Float32(api.DecodeF32(raw))
	case wit.F64:
		return value.Float64(api.DecodeF64(raw))
	default:
		return value.Int64(int64(raw))
	}
}
