// Package lane runs queued work for each key in arrival order on a
// goroutine that lives only while the key has work.
package lane

import "sync"

// Lanes serializes work per key. Work for different keys runs
// concurrently. The zero value is not usable; call New.
type Lanes[K comparable] struct {
	mu    sync.Mutex
	queue map[K][]func()
	start func(run func())
}

// New returns Lanes that start a drainer for an idle key by calling start,
// which must run its argument on a new goroutine.
func New[K comparable](start func(run func())) *Lanes[K] {
	return &Lanes[K]{queue: make(map[K][]func()), start: start}
}

// Push queues fn behind the work already queued for key.
func (l *Lanes[K]) Push(key K, fn func()) {
	l.mu.Lock()
	q, busy := l.queue[key]
	l.queue[key] = append(q, fn)
	l.mu.Unlock()
	if !busy {
		l.start(func() { l.drain(key) })
	}
}

// Len returns the number of keys with queued or running work.
func (l *Lanes[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Lanes[K]) drain(key K) {
	for {
		l.mu.Lock()
		q := l.queue[key]
		if len(q) == 0 {
			delete(l.queue, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		q[0] = nil
		l.queue[key] = q[1:]
		l.mu.Unlock()
		fn()
	}
}
