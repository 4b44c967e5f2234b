package lane

import (
	"sync"
	"testing"
	"time"
)

func TestLanes_OrderPerKey(t *testing.T) {
	var wg sync.WaitGroup
	l := New[uint32](func(run func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	})

	var mu sync.Mutex
	seen := make(map[uint32][]int)
	const n = 40
	for i := 0; i < n; i++ {
		for _, key := range []uint32{1, 2, 3} {
			l.Push(key, func() {
				time.Sleep(time.Duration(i%3) * 100 * time.Microsecond)
				mu.Lock()
				seen[key] = append(seen[key], i)
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	for _, key := range []uint32{1, 2, 3} {
		got := seen[key]
		if len(got) != n {
			t.Fatalf("key %d ran %d items, want %d", key, len(got), n)
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("key %d item %d ran as %d", key, i, v)
			}
		}
	}
	if l.Len() != 0 {
		t.Fatalf("idle lanes left: %d", l.Len())
	}
}

func TestLanes_KeysRunConcurrently(t *testing.T) {
	l := New[string](func(run func()) { go run() })
	release := make(chan struct{})
	done := make(chan struct{})
	l.Push("slow", func() { <-release })
	l.Push("fast", func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work for one key waited on another key")
	}
	close(release)
}
