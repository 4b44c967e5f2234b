package component

import (
	"context"
	"testing"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/transport/loopback"
	"github.com/wippyai/binderkit/value"
)

const (
	codeAdd  = binder.Code(0x61646400) // 'add'
	codeNeg  = binder.Code(0x6e656700) // 'neg'
	codeBoom = binder.Code(0x626f6f6d) // 'boom'
)

func TestModule_BindAll(t *testing.T) {
	bindings, err := loadCalc(t).BindAll()
	if err != nil {
		t.Fatalf("BindAll error: %v", err)
	}
	want := map[string]binder.Code{"add": codeAdd, "neg": codeNeg, "boom": codeBoom}
	if len(bindings) != len(want) {
		t.Fatalf("BindAll = %v", bindings)
	}
	for _, b := range bindings {
		if want[b.Func] != b.Code {
			t.Errorf("%s bound to %v, want %v", b.Func, b.Code, want[b.Func])
		}
	}
}

func TestModule_BindAllCollision(t *testing.T) {
	ctx := context.Background()
	rt := NewRuntime(ctx, nil)
	defer rt.Close(ctx)

	// "boom" and "boomer" share the code 'boom'.
	mod, err := rt.Load(ctx, calcWASM, calcWIT)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	mod.sigs["boomer"] = mod.sigs["boom"]
	if _, err := mod.BindAll(); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("BindAll error = %v, want invalid_input", err)
	}
}

func TestModule_NewLocal(t *testing.T) {
	ctx := context.Background()
	mod := loadCalc(t)

	l, err := mod.NewLocal(ctx, binder.NewLocal, "calc",
		Binding{Code: codeAdd, Func: "add"},
		Binding{Code: codeBoom, Func: "boom"},
	)
	if err != nil {
		t.Fatalf("NewLocal error: %v", err)
	}
	ref := atom.Acquire(l, "test")

	got, err := binder.Call(ctx, l, codeAdd, value.NewMap(
		value.Pair{Key: value.String("a"), Value: value.Int32(20)},
		value.Pair{Key: value.String("b"), Value: value.Int32(22)},
	))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if !value.Equal(got, value.Int32(42)) {
		t.Errorf("add = %v, want 42", got)
	}

	if _, err := binder.Call(ctx, l, codeNeg, value.Float64(1)); !errors.IsKind(err, errors.KindUnknownTransaction) {
		t.Errorf("unbound code error = %v, want unknown_transaction", err)
	}
	if _, err := binder.Call(ctx, l, codeBoom, value.Undefined()); err == nil {
		t.Error("expected trap error")
	}

	inst, ok := l.Impl().(*Instance)
	if !ok {
		t.Fatalf("Impl = %T, want *Instance", l.Impl())
	}
	ref.Release()
	if _, err := inst.Call(ctx, "neg", value.Float64(1)); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("instance after finalize = %v, want closed", err)
	}
}

func TestModule_NewLocalErrors(t *testing.T) {
	ctx := context.Background()
	mod := loadCalc(t)

	tests := []struct {
		name     string
		bindings []Binding
		kind     errors.Kind
	}{
		{"none", nil, errors.KindInvalidInput},
		{"unknown function", []Binding{{Code: codeAdd, Func: "sub"}}, errors.KindNotFound},
		{"code bound twice", []Binding{{Code: codeAdd, Func: "add"}, {Code: codeAdd, Func: "neg"}}, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mod.NewLocal(ctx, binder.NewLocal, "calc", tt.bindings...)
			if got := errors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q, want %q (%v)", got, tt.kind, err)
			}
		})
	}
}

func TestModule_NewLocalAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	mod := loadCalc(t)

	link, err := loopback.Pair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		link.Close()
		link.Wait()
	}()

	bindings, err := mod.BindAll()
	if err != nil {
		t.Fatal(err)
	}
	l, err := mod.NewLocal(ctx, link.Server().NewLocal, "calc", bindings...)
	if err != nil {
		t.Fatalf("NewLocal error: %v", err)
	}
	keep := atom.Acquire(l, "test")
	defer keep.Release()

	h, err := link.Server().Publish(l)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := link.Client().Proxy(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Release()

	got, err := binder.Call(ctx, ref.Get(), codeNeg, value.Float64(2.25))
	if err != nil {
		t.Fatalf("remote Call error: %v", err)
	}
	if f, _ := got.AsFloat64(); f != -2.25 {
		t.Errorf("neg = %v, want -2.25", got)
	}

	if _, err := binder.Call(ctx, ref.Get(), codeBoom, value.Undefined()); err == nil {
		t.Error("expected remote trap error")
	}
}
