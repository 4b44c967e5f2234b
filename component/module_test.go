package component

import (
	"context"
	"math"
	"testing"

	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/value"
)

// calcWASM exports add(i32, i32) -> i32, neg(f64) -> f64 and boom(),
// which traps.
var calcWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	// Type section: (i32, i32) -> i32, (f64) -> f64, () -> ()
	0x01, 0x0f, 0x03,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x60, 0x01, 0x7c, 0x01, 0x7c,
	0x60, 0x00, 0x00,
	// Function section
	0x03, 0x04, 0x03, 0x00, 0x01, 0x02,
	// Export section: "add", "neg", "boom"
	0x07, 0x14, 0x03,
	0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x03, 0x6e, 0x65, 0x67, 0x00, 0x01,
	0x04, 0x62, 0x6f, 0x6f, 0x6d, 0x00, 0x02,
	// Code section
	0x0a, 0x13, 0x03,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, // local.get 0, local.get 1, i32.add
	0x05, 0x00, 0x20, 0x00, 0x9a, 0x0b, // local.get 0, f64.neg
	0x03, 0x00, 0x00, 0x0b, // unreachable
}

const calcWIT = `
	export add: func(a: s32, b: s32) -> s32;
	export neg: func(x: f64) -> f64;
	export boom: func();
`

func loadCalc(t *testing.T) *Module {
	t.Helper()
	ctx := context.Background()
	rt := NewRuntime(ctx, nil)
	t.Cleanup(func() { rt.Close(ctx) })

	mod, err := rt.Load(ctx, calcWASM, calcWIT)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return mod
}

func instantiate(t *testing.T, mod *Module) *Instance {
	t.Helper()
	inst, err := mod.Instantiate(context.Background())
	if err != nil {
		t.Fatalf("Instantiate error: %v", err)
	}
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst
}

func TestRuntime_Load(t *testing.T) {
	mod := loadCalc(t)

	got := mod.Functions()
	want := []string{"add", "boom", "neg"}
	if len(got) != len(want) {
		t.Fatalf("Functions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Functions[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, ok := mod.Signature("neg"); !ok {
		t.Error("Signature(neg) not found")
	}
	if _, ok := mod.Signature("sub"); ok {
		t.Error("Signature(sub) should not exist")
	}
}

func TestRuntime_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		wasm []byte
		wit  string
		kind errors.Kind
	}{
		{"bad wasm", []byte{0x00, 0x61, 0x73}, calcWIT, errors.KindInvalidData},
		{"missing export", calcWASM, "sub: func(a: s32, b: s32) -> s32;", errors.KindNotFound},
		{"param mismatch", calcWASM, "add: func(a: s64, b: s32) -> s32;", errors.KindTypeMismatch},
		{"result mismatch", calcWASM, "neg: func(x: f64) -> f32;", errors.KindTypeMismatch},
		{"no functions", calcWASM, "", errors.KindInvalidInput},
	}

	ctx := context.Background()
	rt := NewRuntime(ctx, nil)
	defer rt.Close(ctx)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.Load(ctx, tt.wasm, tt.wit)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestRuntime_LoadFileMissing(t *testing.T) {
	ctx := context.Background()
	rt := NewRuntime(ctx, &RuntimeConfig{MemoryLimitPages: 16})
	defer rt.Close(ctx)

	_, err := rt.LoadFile(ctx, t.TempDir()+"/missing.wasm", calcWIT)
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("LoadFile error = %v, want not_found", err)
	}
}

func TestInstance_Call(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, loadCalc(t))

	sum, err := inst.Call(ctx, "add", value.NewMap(
		value.Pair{Key: value.String("a"), Value: value.Int32(2)},
		value.Pair{Key: value.String("b"), Value: value.Int64(40)},
	))
	if err != nil {
		t.Fatalf("Call(add) error: %v", err)
	}
	if !value.Equal(sum, value.Int32(42)) {
		t.Errorf("add = %v, want 42", sum)
	}

	neg, err := inst.Call(ctx, "neg", value.Float64(1.5))
	if err != nil {
		t.Fatalf("Call(neg) error: %v", err)
	}
	if f, _ := neg.AsFloat64(); f != -1.5 {
		t.Errorf("neg = %v, want -1.5", neg)
	}

	// A single parameter may also be passed by name.
	neg, err = inst.Call(ctx, "neg", value.NewMap(value.Pair{Key: value.String("x"), Value: value.Int32(-3)}))
	if err != nil {
		t.Fatalf("Call(neg) by name error: %v", err)
	}
	if f, _ := neg.AsFloat64(); f != 3 {
		t.Errorf("neg = %v, want 3", neg)
	}

	got, err := inst.Call(ctx, "add", value.NewMap(
		value.Pair{Key: value.String("a"), Value: value.Int32(math.MaxInt32)},
		value.Pair{Key: value.String("b"), Value: value.Int32(1)},
	))
	if err != nil {
		t.Fatalf("Call(add) overflow error: %v", err)
	}
	if !value.Equal(got, value.Int32(math.MinInt32)) {
		t.Errorf("add overflow = %v, want %d", got, math.MinInt32)
	}
}

func TestInstance_CallErrors(t *testing.T) {
	ctx := context.Background()
	inst := instantiate(t, loadCalc(t))

	tests := []struct {
		name string
		fn   string
		args value.Value
		kind errors.Kind
	}{
		{"unknown function", "sub", value.Undefined(), errors.KindNotFound},
		{"missing argument", "add", value.NewMap(value.Pair{Key: value.String("a"), Value: value.Int32(1)}), errors.KindBadArgument},
		{"scalar for two params", "add", value.Int32(1), errors.KindBadArgument},
		{"out of range", "add", value.NewMap(
			value.Pair{Key: value.String("a"), Value: value.Int64(1 << 40)},
			value.Pair{Key: value.String("b"), Value: value.Int32(1)},
		), errors.KindBadArgument},
		{"not a number", "neg", value.Raw([]byte{1, 2}), errors.KindBadArgument},
		{"trap", "boom", value.Undefined(), errors.KindFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Call(ctx, tt.fn, tt.args)
			if got := errors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
		})
	}

	// A trap does not poison the instance.
	if _, err := inst.Call(ctx, "neg", value.Float64(1)); err != nil {
		t.Errorf("Call after trap: %v", err)
	}
}

func TestInstance_Close(t *testing.T) {
	ctx := context.Background()
	mod := loadCalc(t)
	a := instantiate(t, mod)
	b := instantiate(t, mod)

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if _, err := a.Call(ctx, "neg", value.Float64(1)); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("Call on closed instance = %v, want closed", err)
	}
	if _, err := b.Call(ctx, "neg", value.Float64(1)); err != nil {
		t.Errorf("other instance: %v", err)
	}
	if a.Module() != mod {
		t.Error("Module() should return the source module")
	}
}
