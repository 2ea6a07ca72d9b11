package store

import (
	"sync"

	"github.com/IvanBrykalov/regioncache/internal/util"
	"github.com/IvanBrykalov/regioncache/policy"
)

// shard is an independent partition of a region with its own lock, value
// map, soft-lock table and intrusive list (head = newest stamp, tail =
// eviction candidate). Every per-key operation runs under mu, which is what
// linearizes put/remove/lock/unlock on one key.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu    sync.RWMutex
	m     map[K]*node[K, V]
	locks map[K]*softLock
	head  *node[K, V]
	tail  *node[K, V]
	len   int

	pol policy.ShardPolicy[K]
	st  *Store[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard[K comparable, V any](st *Store[K, V], pol policy.Policy[K]) *shard[K, V] {
	s := &shard[K, V]{
		m:     make(map[K]*node[K, V]),
		locks: make(map[K]*softLock),
		st:    st,
	}
	s.pol = pol.New(shardHooks[K, V]{s: s})
	return s
}

// -------------------- internals (mu held) --------------------

// lockLocked returns the live soft lock for k, dropping an expired one.
func (s *shard[K, V]) lockLocked(k K, now int64) *softLock {
	lk := s.locks[k]
	if lk != nil && lk.expired(now, s.st.ttl) {
		delete(s.locks, k)
		return nil
	}
	return lk
}

// liveLocked returns the resident node for k unless it expired, in which
// case it is evicted and nil is returned.
func (s *shard[K, V]) liveLocked(k K, now int64) *node[K, V] {
	n := s.m[k]
	if n == nil {
		return nil
	}
	if n.exp != 0 && now >= n.exp {
		s.evictLocked(n, EvictTTL)
		return nil
	}
	return n
}

func (s *shard[K, V]) miss() {
	s.misses.Add(1)
	s.st.opt.Metrics.Miss()
}

// insertFront links n at the head and stamps it.
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.stamp = s.st.tick.Add(1)
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.st.size.Add(1)
}

// moveToFront restamps n and moves it to the head.
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	n.stamp = s.st.tick.Add(1)
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// unlink removes n from the list and updates counters.
func (s *shard[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
	s.st.size.Add(-1)
}

// deleteLocked removes n without counting it as an eviction.
func (s *shard[K, V]) deleteLocked(n *node[K, V]) {
	s.pol.OnRemove(n)
	s.unlink(n)
	delete(s.m, n.key)
}

// evictLocked removes n, records the reason and calls OnEvict.
func (s *shard[K, V]) evictLocked(n *node[K, V], reason EvictReason) {
	s.deleteLocked(n)
	s.evicts.Add(1)
	s.st.opt.Metrics.Evict(reason)
	if cb := s.st.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// sweepLocked evicts expired values and drops expired lock records.
func (s *shard[K, V]) sweepLocked(now int64) int {
	evicted := 0
	for _, n := range s.m {
		if n.exp != 0 && now >= n.exp {
			s.evictLocked(n, EvictTTL)
			evicted++
		}
	}
	for k, lk := range s.locks {
		if lk.expired(now, s.st.ttl) {
			delete(s.locks, k)
		}
	}
	return evicted
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[K comparable, V any] struct{ s *shard[K, V] }

func (h shardHooks[K, V]) MoveToFront(x policy.Node[K]) { h.s.moveToFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) PushFront(x policy.Node[K])   { h.s.insertFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) Remove(x policy.Node[K])      { h.s.unlink(x.(*node[K, V])) }
func (h shardHooks[K, V]) Len() int                     { return h.s.len }
func (h shardHooks[K, V]) Back() policy.Node[K] {
	if h.s.tail == nil {
		return nil // avoid a typed-nil interface
	}
	return h.s.tail
}
