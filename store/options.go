package store

import (
	"log/slog"
	"time"

	"github.com/IvanBrykalov/regioncache/eviction"
	"github.com/IvanBrykalov/regioncache/policy"
)

// EvictReason explains why an entry left the store.
type EvictReason int

const (
	// EvictSize: dropped to keep the region within Eviction.MaxSize.
	EvictSize EvictReason = iota
	// EvictTTL: expired (lazily on access or by the janitor sweep).
	EvictTTL
	// EvictInvalidation: removed because a peer invalidated the key.
	EvictInvalidation
	// EvictStale: superseded by a newer version announced at unlock.
	EvictStale
	// EvictClear: dropped by a region-wide clear.
	EvictClear
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictInvalidation:
		return "invalidation"
	case EvictStale:
		return "stale"
	case EvictClear:
		return "clear"
	default:
		return "size"
	}
}

// RejectReason explains why a write was not applied.
type RejectReason int

const (
	// RejectStale: the incoming version is older than the stored one.
	RejectStale RejectReason = iota
	// RejectLocked: the key is soft-locked by someone else, or a released
	// lock still fences writes older than its release version.
	RejectLocked
)

func (r RejectReason) String() string {
	if r == RejectLocked {
		return "locked"
	}
	return "stale"
}

// Metrics receives store-level observability signals.
// A NoopMetrics implementation is used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Reject(reason RejectReason)
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Comparator orders two version tokens: negative when a is older than b,
// zero when equal, positive when newer.
type Comparator func(a, b any) int

// Options configures a Store. Zero values are safe; defaults are applied
// in New:
//   - nil Policy     => discipline named by Eviction (LRU by default)
//   - Shards <= 0    => auto (rounded up to a power of two)
//   - nil Comparator => unversioned data
//   - LockGrace <= 0 => Eviction.LockGrace()
//   - nil Metrics    => NoopMetrics
type Options[K comparable, V any] struct {
	// Eviction holds the resolved size/TTL limits.
	Eviction eviction.Policy

	// Shards is the number of independently locked partitions.
	Shards int

	// Policy overrides the ordering discipline derived from Eviction.
	Policy policy.Policy[K]

	// Comparator enables version checks on writes. nil means the data is
	// unversioned and writes replace unconditionally (locks permitting).
	Comparator Comparator

	// LockedReadMiss makes Get report a miss for keys under an active soft
	// lock. Set for strategies that need read consistency during a write.
	LockedReadMiss bool

	// LockGrace is how long a released lock keeps fencing older writes.
	LockGrace time.Duration

	// SweepInterval is the janitor period. 0 derives it from the TTL
	// (TTL/2, at least 10ms; one minute without TTL); < 0 disables it.
	SweepInterval time.Duration

	// Hash maps keys to shards; nil uses FNV-1a over common key types.
	Hash func(K) uint64

	// OnEvict is called under the shard lock; keep it lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock

	Logger *slog.Logger
}

// NoopMetrics does nothing; it is the default Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                {}
func (NoopMetrics) Miss()               {}
func (NoopMetrics) Evict(EvictReason)   {}
func (NoopMetrics) Reject(RejectReason) {}
func (NoopMetrics) Size(int)            {}

var _ Metrics = NoopMetrics{}
