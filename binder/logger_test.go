package binder

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestSetLogger(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	named := zap.NewNop().Named("test")
	tests := []struct {
		name string
		set  *zap.Logger
		want func(*zap.Logger) bool
	}{
		{"explicit", named, func(l *zap.Logger) bool { return l == named }},
		{"nil disables", nil, func(l *zap.Logger) bool { return l != nil }},
	}
	for _, tt := range tests {
		SetLogger(tt.set)
		if got := Logger(); !tt.want(got) {
			t.Fatalf("%s: Logger() = %v", tt.name, got)
		}
	}
	Logger().Debug("nil logger replaced by nop")
}

func TestSetLogger_Concurrent(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetLogger(zap.NewNop())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if Logger() == nil {
					t.Error("Logger() returned nil")
					return
				}
			}
		}()
	}
	wg.Wait()
}
