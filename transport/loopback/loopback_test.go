package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/errors"
	"github.com/wippyai/binderkit/parcel"
	"github.com/wippyai/binderkit/value"
)

func pair(t *testing.T, opts ...Option) *Link {
	t.Helper()
	l, err := Pair(context.Background(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		l.Close()
		l.Wait()
	})
	return l
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func publish(t *testing.T, p *binder.Process, l *binder.Local) binder.Handle {
	t.Helper()
	keep := atom.Acquire(l, "test")
	t.Cleanup(func() { keep.Release() })
	h, err := p.Publish(l)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func proxy(t *testing.T, p *binder.Process, h binder.Handle) *binder.Proxy {
	t.Helper()
	ref, err := p.Proxy(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ref.Release() })
	return ref.Get()
}

func TestPair_Transact(t *testing.T) {
	ctx := context.Background()
	l := pair(t)

	answer := l.Server().NewLocal("test.answer", nil)
	answer.Register(0x1001, func(ctx context.Context, args value.Value) (value.Value, error) {
		return value.Int32(42), nil
	})
	px := proxy(t, l.Client(), publish(t, l.Server(), answer))

	got, err := binder.Call(ctx, px, 0x1001, value.Undefined())
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(got, value.Int32(42)) {
		t.Fatalf("Call = %v, want 42", got)
	}

	_, err = binder.Call(ctx, px, 0x9999, value.Undefined())
	if !errors.IsKind(err, errors.KindUnknownTransaction) {
		t.Fatalf("unknown code: %v", err)
	}
	if err := px.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPair_Arguments(t *testing.T) {
	l := pair(t)

	echo := l.Server().NewLocal("test.echo", nil)
	echo.Register(0x2001, func(ctx context.Context, args value.Value) (value.Value, error) {
		return args.ValueFor(value.String("b")), nil
	})
	px := proxy(t, l.Client(), publish(t, l.Server(), echo))

	args := value.NewMap(
		value.Pair{Key: value.String("a"), Value: value.Int32(1)},
		value.Pair{Key: value.String("b"), Value: value.String("x")},
	)
	got, err := binder.Call(context.Background(), px, 0x2001, args)
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(got, value.String("x")) {
		t.Fatalf("echo = %v", got)
	}
}

func TestLink_OneWayOrder(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		opts []Option
	}{
		{"one worker", []Option{WithWorkers(1)}},
		{"default workers", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := pair(t, tt.opts...)

			var mu sync.Mutex
			seen := make(map[string][]int32)
			record := func(name string) *binder.Local {
				rec := l.Server().NewLocal("test.recorder", nil)
				rec.Register(0x4001, func(ctx context.Context, args value.Value) (value.Value, error) {
					n, err := args.AsInt32()
					if err != nil {
						return value.Undefined(), err
					}
					// Uneven handler latency must not reorder delivery.
					time.Sleep(time.Duration(n%3) * time.Millisecond)
					mu.Lock()
					seen[name] = append(seen[name], n)
					mu.Unlock()
					return value.Undefined(), nil
				})
				return rec
			}
			pa := proxy(t, l.Client(), publish(t, l.Server(), record("a")))
			pb := proxy(t, l.Client(), publish(t, l.Server(), record("b")))

			const n = 30
			for i := int32(0); i < n; i++ {
				if err := binder.Send(ctx, pa, 0x4001, value.Int32(i)); err != nil {
					t.Fatal(err)
				}
				if err := binder.Send(ctx, pb, 0x4001, value.Int32(i)); err != nil {
					t.Fatal(err)
				}
			}
			eventually(t, "one-way calls", func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(seen["a"]) == n && len(seen["b"]) == n
			})

			mu.Lock()
			defer mu.Unlock()
			for name, got := range seen {
				for i, v := range got {
					if v != int32(i) {
						t.Fatalf("%s: call %d carried %d", name, i, v)
					}
				}
			}
		})
	}
}

func TestLink_ContextCanceled(t *testing.T) {
	l := pair(t)

	release := make(chan struct{})
	started := make(chan struct{})
	slow := l.Server().NewLocal("test.slow", nil)
	slow.Register(0x5001, func(ctx context.Context, args value.Value) (value.Value, error) {
		close(started)
		<-release
		return value.Int32(1), nil
	})
	px := proxy(t, l.Client(), publish(t, l.Server(), slow))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := binder.Call(ctx, px, 0x5001, value.Undefined())
	close(release)
	if !errors.IsKind(err, errors.KindTimedOut) {
		t.Fatalf("canceled call: %v", err)
	}

	// The link survives a canceled call.
	if err := px.Ping(context.Background()); err != nil {
		t.Fatalf("Ping after cancel: %v", err)
	}
}

func TestLink_KillDeliversObituaries(t *testing.T) {
	l := pair(t)

	target := l.Server().NewLocal("test.target", nil)
	px := proxy(t, l.Client(), publish(t, l.Server(), target))

	var mu sync.Mutex
	var got []value.Value
	w := l.Client().NewLocal("test.watcher", nil)
	w.Register(binder.CodeObituary, func(ctx context.Context, args value.Value) (value.Value, error) {
		mu.Lock()
		got = append(got, args)
		mu.Unlock()
		return value.Undefined(), nil
	})
	keep := atom.Acquire(w, "test")
	defer keep.Release()

	if err := px.Link(w, value.String("target-gone"), 0); err != nil {
		t.Fatal(err)
	}

	l.Kill(nil)
	<-l.Done()

	if px.IsBinderAlive() {
		t.Fatal("proxy alive after link death")
	}
	mu.Lock()
	if len(got) != 1 || !value.Equal(got[0], value.String("target-gone")) {
		t.Fatalf("obituaries = %v", got)
	}
	mu.Unlock()

	if err := px.Ping(context.Background()); !errors.IsKind(err, errors.KindUnreachable) {
		t.Fatalf("Ping after death: %v", err)
	}
	if err := px.Link(w, value.String("late"), 0); !errors.IsKind(err, errors.KindUnreachable) {
		t.Fatalf("Link after death: %v", err)
	}
	if l.Server().Exports() != 0 {
		t.Fatalf("server still exports %d objects", l.Server().Exports())
	}
}

func TestLink_ParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l, err := Pair(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	cancel()
	select {
	case <-l.Client().PeerGone():
	case <-time.After(2 * time.Second):
		t.Fatal("peer not reported gone")
	}
	if !errors.IsKind(l.Client().PeerDeathCause(), errors.KindUnreachable) {
		t.Fatalf("cause = %v", l.Client().PeerDeathCause())
	}
}

func TestLink_ObjectsAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	l := pair(t)
	server, client := l.Server(), l.Client()

	var mu sync.Mutex
	var made []*binder.Local
	f := server.NewLocal("test.factory", nil)
	f.Register(0x3003, func(ctx context.Context, args value.Value) (value.Value, error) {
		child := server.NewLocal("test.child", nil)
		child.Register(0x1001, func(ctx context.Context, args value.Value) (value.Value, error) {
			return value.Int32(42), nil
		})
		mu.Lock()
		made = append(made, child)
		mu.Unlock()
		return value.Object(child), nil
	})
	px := proxy(t, client, publish(t, server, f))

	reply := parcel.New(nil)
	if err := px.Transact(ctx, 0x3003, nil, reply, 0); err != nil {
		t.Fatal(err)
	}
	obj, _, err := reply.ReadObjectRef()
	if err != nil {
		t.Fatal(err)
	}
	child, ok := obj.(*binder.Proxy)
	if !ok {
		t.Fatalf("got %T, want *binder.Proxy", obj)
	}
	got, err := binder.Call(ctx, child, 0x1001, value.Undefined())
	if err != nil || !value.Equal(got, value.Int32(42)) {
		t.Fatalf("call through received proxy = %v, %v", got, err)
	}

	reply.Free()
	eventually(t, "child finalized", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !made[0].IsAlive()
	})
	if server.Exports() != 1 {
		t.Fatalf("server exports %d objects, want the factory only", server.Exports())
	}
}

func TestLink_CloseIsIdempotent(t *testing.T) {
	l, err := Pair(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l.Wait()
	if l.Server().IsPeerAlive() || l.Client().IsPeerAlive() {
		t.Fatal("peers alive after Close")
	}
	if _, err := l.Client().Proxy(context.Background(), 1); !errors.IsKind(err, errors.KindUnreachable) {
		t.Fatalf("Proxy after Close: %v", err)
	}
}
