package store

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/regioncache/eviction"
	"github.com/IvanBrykalov/regioncache/internal/logging"
	"github.com/IvanBrykalov/regioncache/internal/util"
)

// Store is the local, sharded store of one cache region. All methods are
// safe for concurrent use; operations on the same key are linearized by
// the owning shard's lock, unrelated keys proceed independently.
type Store[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	opt    Options[K, V]
	log    *slog.Logger

	ttl   int64 // nanoseconds, 0 = none
	grace int64 // nanoseconds

	size    util.PaddedAtomicInt64  // resident entries across shards
	tick    util.PaddedAtomicUint64 // recency stamps
	lockIDs atomic.Uint64

	// evictMu serializes region-wide size enforcement only; the read and
	// write paths never take it.
	evictMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions uint64
	Locks     int
}

// New constructs a store and starts its janitor (unless disabled).
func New[K comparable, V any](opt Options[K, V]) *Store[K, V] {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = eviction.StorePolicy[K](opt.Eviction.Discipline)
	}
	if opt.LockGrace <= 0 {
		opt.LockGrace = opt.Eviction.LockGrace()
	}
	hash := opt.Hash
	if hash == nil {
		hash = util.KeyHash[K]
	}

	st := &Store[K, V]{
		hash:  hash,
		opt:   opt,
		log:   logging.OrDiscard(opt.Logger),
		grace: int64(opt.LockGrace),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if opt.Eviction.Expiring() {
		st.ttl = int64(opt.Eviction.TimeToLive)
	}

	n := util.ShardCount(opt.Shards)
	st.shards = make([]*shard[K, V], n)
	for i := range st.shards {
		st.shards[i] = newShard(st, opt.Policy)
	}

	if every := st.sweepInterval(); every > 0 {
		go st.janitor(every)
	} else {
		close(st.done)
	}
	return st
}

// ---- reads ----

// Get returns the cached value for k. It misses when the key is absent,
// expired, soft-locked while LockedReadMiss is set, or older than the
// version announced by a recent unlock. A hit promotes the entry.
func (st *Store[K, V]) Get(k K) (V, bool) {
	var zero V
	if st.closed.Load() {
		return zero, false
	}
	s := st.shard(k)
	now := st.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	lk := s.lockLocked(k, now)
	n := s.liveLocked(k, now)
	if n == nil {
		s.miss()
		return zero, false
	}
	if lk != nil {
		if !lk.released && st.opt.LockedReadMiss {
			s.miss()
			return zero, false
		}
		if lk.released && lk.version != nil && n.lockID != lk.id && st.staleAgainst(n.version, lk.version) {
			s.evictLocked(n, EvictStale)
			s.miss()
			return zero, false
		}
	}

	s.pol.OnGet(n)
	s.hits.Add(1)
	st.opt.Metrics.Hit()
	return n.val, true
}

// Peek returns the resident value and its version without promoting it,
// counting metrics, or consulting soft locks. Expired entries read as absent.
func (st *Store[K, V]) Peek(k K) (v V, version any, ok bool) {
	s := st.shard(k)
	now := st.now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.m[k]
	if n == nil || (n.exp != 0 && now >= n.exp) {
		return v, nil, false
	}
	return n.val, n.version, true
}

// Locked reports whether k currently carries an active soft lock.
func (st *Store[K, V]) Locked(k K) bool {
	s := st.shard(k)
	now := st.now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	lk := s.locks[k]
	return lk != nil && !lk.released && !lk.expired(now, st.ttl)
}

// ---- writes ----

// Put stores v under k when k is not soft-locked and version is not older
// than the stored version. Equal versions overwrite. A zero ts means now.
// It reports whether the write was applied.
func (st *Store[K, V]) Put(k K, v V, version any, ts time.Time) bool {
	return st.write(k, v, version, ts, nil)
}

// PutLocked is the write of the transaction holding tok: applied only while
// that lock is the key's sole active lock, subject to the same version rule.
func (st *Store[K, V]) PutLocked(k K, v V, version any, ts time.Time, tok Token) bool {
	return st.write(k, v, version, ts, &tok)
}

func (st *Store[K, V]) write(k K, v V, version any, ts time.Time, tok *Token) bool {
	if st.closed.Load() {
		return false
	}
	s := st.shard(k)
	now := st.now()
	at := now
	if !ts.IsZero() {
		at = ts.UnixNano()
	}

	s.mu.Lock()
	lk := s.lockLocked(k, now)
	if !st.lockPermits(lk, version, tok) {
		s.mu.Unlock()
		st.opt.Metrics.Reject(RejectLocked)
		return false
	}

	n := s.liveLocked(k, now)
	if n != nil && st.older(version, n.version) {
		s.mu.Unlock()
		st.opt.Metrics.Reject(RejectStale)
		return false
	}

	var lockID uint64
	if tok != nil {
		lockID = tok.ID
	}
	inserted := n == nil
	if inserted {
		n = &node[K, V]{key: k}
		s.m[k] = n
	}
	n.val = v
	n.version = version
	n.ts = at
	n.exp = st.deadline(at)
	n.lockID = lockID
	if inserted {
		s.pol.OnAdd(n)
	} else {
		s.pol.OnUpdate(n)
	}
	s.mu.Unlock()

	if inserted && st.opt.Eviction.Bounded() {
		st.enforceSize()
	}
	st.opt.Metrics.Size(st.Len())
	return true
}

// lockPermits applies the soft-lock rules to a write.
func (st *Store[K, V]) lockPermits(lk *softLock, version any, tok *Token) bool {
	if tok != nil {
		return lk != nil && !lk.released && !lk.concurrent &&
			lk.id == tok.ID && lk.owner == tok.Owner
	}
	if lk == nil {
		return true
	}
	if !lk.released {
		return false
	}
	// Inside the grace window only writes at least as new as the release
	// version get through.
	return lk.version != nil && st.atLeast(version, lk.version)
}

// Remove deletes k unconditionally and reports whether it was resident.
// Soft locks on k are left in place.
func (st *Store[K, V]) Remove(k K) bool {
	s := st.shard(k)
	s.mu.Lock()
	n, ok := s.m[k]
	if ok {
		s.deleteLocked(n)
	}
	s.mu.Unlock()
	if ok {
		st.opt.Metrics.Size(st.Len())
	}
	return ok
}

// Invalidate removes k on behalf of a peer's invalidation. Removing an
// absent key is a no-op.
func (st *Store[K, V]) Invalidate(k K) {
	s := st.shard(k)
	s.mu.Lock()
	n, ok := s.m[k]
	if ok {
		s.evictLocked(n, EvictInvalidation)
	}
	s.mu.Unlock()
	if ok {
		st.opt.Metrics.Size(st.Len())
	}
}

// Clear drops every resident value. Soft locks survive so in-flight
// transactions can still unlock.
func (st *Store[K, V]) Clear() {
	for _, s := range st.shards {
		s.mu.Lock()
		for n := s.tail; n != nil; n = s.tail {
			s.evictLocked(n, EvictClear)
		}
		s.mu.Unlock()
	}
	st.opt.Metrics.Size(st.Len())
}

// ---- soft locks ----

// Lock soft-locks k for tx and returns the token to unlock with. Locking
// an already locked key nests: the count grows, and a second owner marks
// the lock concurrent. Lock never blocks and works on absent keys.
func (st *Store[K, V]) Lock(k K, tx TxID) Token {
	s := st.shard(k)
	now := st.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	lk := s.lockLocked(k, now)
	if lk == nil || lk.released {
		lk = &softLock{id: st.lockIDs.Add(1), owner: tx}
		s.locks[k] = lk
	} else if lk.owner != tx {
		lk.concurrent = true
	}
	lk.count++
	lk.lockedAt = now
	return Token{ID: lk.id, Owner: tx}
}

// Unlock releases one hold of the lock identified by tok and reports
// whether tok matched an active lock. When the last hold goes:
//   - a concurrent lock evicts the value and fences all unowned writes for
//     the grace window;
//   - a non-nil newVersion evicts a value older than it (unless written
//     under this very lock) and fences older writes for the grace window;
//   - otherwise the lock disappears and the value stays as it was.
func (st *Store[K, V]) Unlock(k K, tok Token, newVersion any) bool {
	s := st.shard(k)
	now := st.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	lk := s.lockLocked(k, now)
	if lk == nil || lk.released || lk.id != tok.ID {
		st.opt.Metrics.Reject(RejectLocked)
		return false
	}
	lk.count--
	if lk.count > 0 {
		return true
	}

	n := s.liveLocked(k, now)
	switch {
	case lk.concurrent:
		if n != nil {
			s.evictLocked(n, EvictStale)
		}
		lk.released, lk.version = true, nil
		lk.graceUntil = now + st.grace
	case newVersion != nil:
		if n != nil && n.lockID != lk.id && st.staleAgainst(n.version, newVersion) {
			s.evictLocked(n, EvictStale)
		}
		lk.released, lk.version = true, newVersion
		lk.graceUntil = now + st.grace
	default:
		delete(s.locks, k)
	}
	return true
}

// ---- housekeeping ----

// Len returns the number of resident entries (expired entries count until
// they are swept or touched).
func (st *Store[K, V]) Len() int { return int(st.size.Load()) }

// Keys returns a snapshot of the resident keys, in no particular order.
func (st *Store[K, V]) Keys() []K {
	out := make([]K, 0, st.Len())
	now := st.now()
	for _, s := range st.shards {
		s.mu.RLock()
		for k, n := range s.m {
			if n.exp == 0 || now < n.exp {
				out = append(out, k)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Stats sums the shard counters.
func (st *Store[K, V]) Stats() Stats {
	out := Stats{Entries: st.Len()}
	for _, s := range st.shards {
		out.Hits += s.hits.Load()
		out.Misses += s.misses.Load()
		out.Evictions += s.evicts.Load()
		s.mu.RLock()
		out.Locks += len(s.locks)
		s.mu.RUnlock()
	}
	return out
}

// Sweep evicts every expired entry and drops expired lock records now.
// It returns the number of evicted entries.
func (st *Store[K, V]) Sweep() int {
	total := 0
	for _, s := range st.shards {
		now := st.now()
		s.mu.Lock()
		total += s.sweepLocked(now)
		s.mu.Unlock()
	}
	if total > 0 {
		st.opt.Metrics.Size(st.Len())
	}
	return total
}

// Close stops the janitor and marks the store closed: reads miss and
// writes are rejected afterwards.
func (st *Store[K, V]) Close() error {
	st.closeOnce.Do(func() {
		st.closed.Store(true)
		close(st.stop)
	})
	<-st.done
	return nil
}

func (st *Store[K, V]) janitor(every time.Duration) {
	defer close(st.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-t.C:
			if n := st.Sweep(); n > 0 {
				st.log.Debug("swept expired entries", "evicted", n)
			}
		}
	}
}

// enforceSize evicts region-wide oldest entries until the size bound
// holds. Each shard's tail carries its oldest stamp, so the smallest tail
// stamp across shards is the region's eviction victim.
func (st *Store[K, V]) enforceSize() {
	limit := int64(st.opt.Eviction.MaxSize)

	st.evictMu.Lock()
	defer st.evictMu.Unlock()

	for st.size.Load() > limit {
		var victim *shard[K, V]
		best := uint64(math.MaxUint64)
		for _, s := range st.shards {
			s.mu.RLock()
			if t := s.tail; t != nil && t.stamp < best {
				best, victim = t.stamp, s
			}
			s.mu.RUnlock()
		}
		if victim == nil {
			return
		}
		victim.mu.Lock()
		// The tail may have moved since the scan; rescan in that case.
		if t := victim.tail; t != nil && t.stamp == best {
			victim.evictLocked(t, EvictSize)
		}
		victim.mu.Unlock()
	}
}

// ---- helpers ----

func (st *Store[K, V]) shard(k K) *shard[K, V] {
	return st.shards[util.ShardIndex(st.hash(k), len(st.shards))]
}

func (st *Store[K, V]) now() int64 {
	if st.opt.Clock != nil {
		return st.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (st *Store[K, V]) deadline(at int64) int64 {
	if st.ttl == 0 {
		return 0
	}
	return at + st.ttl
}

func (st *Store[K, V]) sweepInterval() time.Duration {
	switch every := st.opt.SweepInterval; {
	case every < 0:
		return 0
	case every > 0:
		return every
	}
	if st.ttl == 0 {
		return time.Minute
	}
	every := time.Duration(st.ttl / 2)
	if every < 10*time.Millisecond {
		every = 10 * time.Millisecond
	}
	return every
}

// older reports whether incoming must be rejected against stored. Only
// versioned regions compare; an unversioned write cannot replace a
// versioned entry there.
func (st *Store[K, V]) older(incoming, stored any) bool {
	if st.opt.Comparator == nil || stored == nil {
		return false
	}
	if incoming == nil {
		return true
	}
	return st.opt.Comparator(incoming, stored) < 0
}

// atLeast reports whether a is provably not older than b.
func (st *Store[K, V]) atLeast(a, b any) bool {
	if st.opt.Comparator == nil || a == nil || b == nil {
		return false
	}
	return st.opt.Comparator(a, b) >= 0
}

// staleAgainst reports whether a stored version must give way to fence.
// Without a way to compare, the stored copy is assumed stale.
func (st *Store[K, V]) staleAgainst(stored, fence any) bool {
	return !st.atLeast(stored, fence)
}
