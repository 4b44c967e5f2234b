package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/component"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

type wasmOptions struct {
	witText     string
	funcName    string
	arg         string
	list        bool
	interactive bool
	memoryPages uint32
}

func newWasmCommand(o *options) *cobra.Command {
	w := &wasmOptions{}
	cmd := &cobra.Command{
		Use:   "wasm <file.wasm>",
		Short: "Publish a WebAssembly module as an object and call it through a proxy",
		Example: `  binderctl wasm calc.wasm --wit 'add: func(a: s32, b: s32) -> s32;' --list
  binderctl wasm calc.wasm --wit @calc.wit --func add --arg '{"a": 1, "b": 2}'
  binderctl wasm calc.wasm --wit @calc.wit -i`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runWasm(cmd.Context(), cmd.OutOrStdout(), args[0], w)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&w.witText, "wit", "", "WIT declarations of the exported functions, or @file")
	fs.StringVar(&w.funcName, "func", "", "function to call")
	fs.StringVar(&w.arg, "arg", "", "JSON argument: a scalar or an object keyed by parameter name")
	fs.BoolVar(&w.list, "list", false, "list exported functions and exit")
	fs.BoolVarP(&w.interactive, "interactive", "i", false, "interactive mode with TUI")
	fs.Uint32Var(&w.memoryPages, "memory-pages", 0, "memory limit per instance in 64KiB pages")
	_ = cmd.MarkFlagRequired("wit")
	return cmd
}

// wasmObject is a module published on a session's server and reached
// through the client's proxy.
type wasmObject struct {
	rt    *component.Runtime
	mod   *component.Module
	s     *session
	proxy *atom.Ref[*binder.Proxy]
	codes map[string]binder.Code
	log   *zap.Logger
}

func (o *options) openWasm(ctx context.Context, path string, w *wasmOptions) (*wasmObject, error) {
	witText := w.witText
	if file, ok := strings.CutPrefix(witText, "@"); ok {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).Path(file).Cause(err).Detail("read WIT").Build()
		}
		witText = string(b)
	}

	rt := component.NewRuntime(ctx, &component.RuntimeConfig{
		MemoryLimitPages:   w.memoryPages,
		CloseOnContextDone: true,
	})
	mod, err := rt.LoadFile(ctx, path, witText)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	bindings, err := mod.BindAll()
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	s, err := o.newSession(ctx)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	obj := &wasmObject{rt: rt, mod: mod, s: s, codes: make(map[string]binder.Code), log: o.log}
	for _, b := range bindings {
		obj.codes[b.Func] = b.Code
	}

	l, err := mod.NewLocal(ctx, s.server.NewLocal, "binderkit.wasm."+strings.TrimSuffix(filepath.Base(path), ".wasm"), bindings...)
	if err != nil {
		obj.Close(ctx)
		return nil, err
	}
	h, err := s.server.Publish(l)
	if err != nil {
		obj.Close(ctx)
		return nil, err
	}
	obj.proxy, err = s.client.Proxy(ctx, h)
	if err != nil {
		obj.Close(ctx)
		return nil, err
	}
	return obj, nil
}

func (w *wasmObject) Call(ctx context.Context, name string, args value.Value) (value.Value, error) {
	code, ok := w.codes[name]
	if !ok {
		return value.Undefined(), errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	return binder.Call(ctx, w.proxy.Get(), code, args)
}

func (w *wasmObject) Close(ctx context.Context) {
	if w.proxy != nil {
		w.proxy.Release()
		w.proxy = nil
	}
	if err := w.s.close(); err != nil {
		w.log.Debug("session close", zap.Error(err))
	}
	w.rt.Close(ctx)
}

func (o *options) runWasm(ctx context.Context, out io.Writer, path string, w *wasmOptions) error {
	obj, err := o.openWasm(ctx, path, w)
	if err != nil {
		return err
	}
	defer obj.Close(ctx)

	if w.interactive {
		return runWasmInteractive(ctx, o, obj, path)
	}

	fmt.Fprintf(out, "Module: %s\n\nExported functions:\n", path)
	for _, name := range obj.mod.Functions() {
		sig, _ := obj.mod.Signature(name)
		fmt.Fprintf(out, "  %-30s %s\n", formatSignature(sig), obj.codes[name])
	}
	if w.list {
		return nil
	}

	funcName := w.funcName
	if funcName == "" {
		for _, name := range []string{"run", "main"} {
			if _, ok := obj.codes[name]; ok {
				funcName = name
				break
			}
		}
		if funcName == "" && len(obj.codes) == 1 {
			funcName = obj.mod.Functions()[0]
		}
		if funcName == "" {
			fmt.Fprintln(out, "\nNo function specified and no common entry point found.")
			fmt.Fprintln(out, "Use --func to specify a function to call.")
			return nil
		}
	}

	args := value.Undefined()
	if w.arg != "" {
		if err := json.Unmarshal([]byte(w.arg), &args); err != nil {
			return errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "--arg")
		}
	}

	cctx, cancel := o.callContext(ctx)
	defer cancel()
	fmt.Fprintf(out, "\nCalling %s(%s)...\n", funcName, args)
	result, err := obj.Call(cctx, funcName, args)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Result: %s\n", result)
	return nil
}

func formatSignature(sig *component.Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Name + ": " + p.TypeName
	}
	s := sig.Name + "(" + strings.Join(params, ", ") + ")"
	switch len(sig.Results) {
	case 0:
	case 1:
		s += " -> " + witTypeStr(sig.Results[0])
	default:
		results := make([]string, len(sig.Results))
		for i, r := range sig.Results {
			results[i] = witTypeStr(r)
		}
		s += " -> (" + strings.Join(results, ", ") + ")"
	}
	return s
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	default:
		return fmt.Sprintf("%T", t)
	}
}
