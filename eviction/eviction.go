// Package eviction resolves the size and time limits of a region's local
// store.
//
// Resolution order is fixed: an explicit override, then the region's map
// configuration from a config.Provider, then unbounded defaults. Lookup
// failures never fail region construction; they are reported alongside the
// default policy so the caller can log them.
package eviction

import (
	"math"
	"strings"
	"time"

	"github.com/IvanBrykalov/regioncache/config"
	"github.com/IvanBrykalov/regioncache/policy"
	"github.com/IvanBrykalov/regioncache/policy/fifo"
	"github.com/IvanBrykalov/regioncache/policy/lru"
)

// DefaultLockGrace bounds how long a released soft lock keeps fencing
// stale writes when no TTL is configured.
const DefaultLockGrace = 500 * time.Millisecond

// Discipline names the ordering used for size-bounded eviction.
type Discipline string

const (
	// LRU evicts the entry least recently read or written.
	LRU Discipline = "lru"
	// FIFO evicts the entry least recently written.
	FIFO Discipline = "fifo"
)

// Policy is the resolved, immutable eviction configuration of a region.
type Policy struct {
	// MaxSize is the entry limit; <= 0 means unbounded.
	MaxSize int
	// TimeToLive expires entries after their write timestamp; <= 0 disables.
	TimeToLive time.Duration
	// Discipline orders size-bounded eviction; empty means LRU.
	Discipline Discipline
}

// Default is the unbounded, non-expiring policy.
func Default() Policy { return Policy{Discipline: LRU} }

// Bounded reports whether a size limit applies.
func (p Policy) Bounded() bool { return p.MaxSize > 0 }

// Expiring reports whether a TTL applies.
func (p Policy) Expiring() bool { return p.TimeToLive > 0 }

// LockGrace is the window after a soft lock release during which older
// writes stay fenced off: the TTL capped at DefaultLockGrace.
func (p Policy) LockGrace() time.Duration {
	if p.Expiring() && p.TimeToLive < DefaultLockGrace {
		return p.TimeToLive
	}
	return DefaultLockGrace
}

// StorePolicy returns the shard ordering policy for the discipline.
func StorePolicy[K comparable](d Discipline) policy.Policy[K] {
	if d == FIFO {
		return fifo.New[K]()
	}
	return lru.New[K]()
}

// Source tells where a resolved policy came from.
type Source int

const (
	SourceDefault Source = iota
	SourceOverride
	SourceMapConfig
)

func (s Source) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceMapConfig:
		return "map-config"
	default:
		return "default"
	}
}

// Resolution is the outcome of Resolve. Reason is set only when the
// provider could not supply settings and the default was used instead.
type Resolution struct {
	Policy Policy
	Source Source
	Reason error
}

// Resolve picks the policy for region. override wins when non-nil; a nil
// provider behaves like config.Unsupported.
func Resolve(region string, override *Policy, provider config.Provider) Resolution {
	if override != nil {
		p := *override
		if p.Discipline == "" {
			p.Discipline = LRU
		}
		return Resolution{Policy: p, Source: SourceOverride}
	}
	if provider == nil {
		return Resolution{Policy: Default(), Source: SourceDefault, Reason: config.ErrUnsupported}
	}
	mc, err := provider.FindMapConfig(region)
	if err != nil {
		return Resolution{Policy: Default(), Source: SourceDefault, Reason: err}
	}
	return Resolution{Policy: FromMapConfig(mc), Source: SourceMapConfig}
}

// FromMapConfig derives a policy from map settings. Eviction policy NONE,
// a non-positive size and the MaxInt32 "unlimited" sentinel all mean
// unbounded.
func FromMapConfig(mc config.MapConfig) Policy {
	p := Policy{Discipline: LRU}
	name := strings.ToUpper(mc.EvictionPolicy)
	if name != config.EvictionNone && mc.EvictionSize > 0 && mc.EvictionSize < math.MaxInt32 {
		p.MaxSize = mc.EvictionSize
	}
	if name == config.EvictionFIFO {
		p.Discipline = FIFO
	}
	if mc.TimeToLiveSeconds > 0 {
		p.TimeToLive = time.Duration(mc.TimeToLiveSeconds) * time.Second
	}
	return p
}
