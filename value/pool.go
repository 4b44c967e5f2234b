package value

import (
	"sync"
	"sync/atomic"
)

// Small maps are recycled through per-capacity buckets.
var bucketCapacity = [...]int{1, 2, 4, 8}

const maxPooledMapCapacity = 8

var (
	mapBuckets [len(bucketCapacity)]sync.Pool
	poolHits   atomic.Uint64
	poolMisses atomic.Uint64
)

// PoolStats returns how many small-map allocations were served from the
// pool and how many had to allocate.
func PoolStats() (hits, misses uint64) {
	return poolHits.Load(), poolMisses.Load()
}

// bucketFor returns the smallest bucket holding n entries, or -1.
func bucketFor(n int) int {
	for i, c := range bucketCapacity {
		if n <= c {
			return i
		}
	}
	return -1
}

// newMap returns an empty map with room for n pairs and one user.
func newMap(n int) *CompositeMap {
	b := bucketFor(n)
	if b < 0 {
		m := &CompositeMap{pairs: make([]Pair, 0, n)}
		m.users.Store(1)
		return m
	}
	if x := mapBuckets[b].Get(); x != nil {
		poolHits.Add(1)
		m := x.(*CompositeMap)
		m.users.Store(1)
		return m
	}
	poolMisses.Add(1)
	m := &CompositeMap{pairs: make([]Pair, 0, bucketCapacity[b])}
	m.users.Store(1)
	return m
}

// Pool returns an unused map to its size bucket. Maps that grew past the
// largest bucket are left to the garbage collector. The map must have no
// users and must not be touched afterwards.
func (m *CompositeMap) Pool() {
	m.checkNotEditing("Pool")
	if n := m.users.Load(); n > 0 {
		violation("Pool of map with %d users", n)
	}
	c := cap(m.pairs)
	if c > maxPooledMapCapacity {
		return
	}
	clear(m.pairs)
	m.pairs = m.pairs[:0]
	m.order = OrderDefault
	m.published.Store(false)
	b := len(bucketCapacity) - 1
	for b > 0 && bucketCapacity[b] > c {
		b--
	}
	if c < bucketCapacity[b] {
		return
	}
	mapBuckets[b].Put(m)
}
