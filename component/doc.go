// Package component runs core WebAssembly modules as binder objects.
//
// A module is compiled once by a Runtime together with WIT text declaring
// the functions it exports:
//
//	rt := component.NewRuntime(ctx, nil)
//	mod, err := rt.Load(ctx, wasm, `add: func(a: s32, b: s32) -> s32;`)
//
// Each call to Module.NewLocal instantiates the module and returns a Local
// whose methods invoke the bound exports. Arguments are lowered from a
// Value: a scalar for single-parameter functions, otherwise a map keyed by
// parameter name. Only scalar WIT types are supported.
//
// The instance belongs to the Local and is closed when the last strong
// reference to it is dropped.
package component
