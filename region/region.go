// Package region composes a local store and an invalidation channel into
// the cache of one named region, and offers a Manager that owns a set of
// regions for the process lifetime.
package region

import (
	"context"
	"log/slog"
	"sync"
	"time"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/cluster"
	"github.com/IvanBrykalov/regioncache/config"
	"github.com/IvanBrykalov/regioncache/eviction"
	"github.com/IvanBrykalov/regioncache/internal/logging"
	"github.com/IvanBrykalov/regioncache/internal/singleflight"
	"github.com/IvanBrykalov/regioncache/invalidation"
	"github.com/IvanBrykalov/regioncache/store"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured.
var ErrNoLoader = platformerrors.New(platformerrors.CodeInvalidConfig, "region: no Loader provided")

// Options configures a region cache. Zero values are safe: the result is
// an unversioned, read-only, local-only region sized from Config (or
// unbounded).
type Options[K comparable, V any] struct {
	Access AccessType
	Data   DataDescription

	// Eviction overrides whatever Config says about this region.
	Eviction *eviction.Policy
	// Config supplies per-region map settings; nil behaves like
	// config.Unsupported.
	Config config.Provider

	// Topic carries invalidations between members. Nil makes the region
	// local-only: nothing is published and no listener is registered.
	Topic invalidation.Topic[K]
	// Membership identifies this member; a random identity when nil.
	Membership invalidation.Membership
	// QueueSize bounds the outbound invalidation queue.
	QueueSize int

	Logger         *slog.Logger
	StoreMetrics   store.Metrics
	ChannelMetrics invalidation.Metrics
	Clock          store.Clock
	Shards         int
	// SweepInterval is passed to the store janitor; < 0 disables it.
	SweepInterval time.Duration

	// Loader fetches a value on a miss in GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)
}

// Cache is the cache of one region. Mutations are applied locally first
// and then broadcast as invalidations; the broadcast never blocks the
// caller and its failure never undoes the local write.
type Cache[K comparable, V any] struct {
	name   string
	access AccessType
	res    eviction.Resolution
	st     *store.Store[K, V]
	ch     *invalidation.Channel[K] // nil for local-only regions
	loader func(ctx context.Context, k K) (V, error)
	sf     singleflight.Group[K, V]
	log    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New resolves the eviction policy of region name, builds its store and,
// when a Topic is given, subscribes it to peers' invalidations.
func New[K comparable, V any](name string, opts Options[K, V]) (*Cache[K, V], error) {
	if name == "" {
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "region: name is required")
	}
	if opts.Data.Versioned && opts.Data.Comparator == nil {
		return nil, platformerrors.WithContext(
			platformerrors.New(platformerrors.CodeInvalidConfig, "region: versioned data needs a comparator"),
			"region", name)
	}
	log := logging.OrDiscard(opts.Logger).With("region", name)

	res := eviction.Resolve(name, opts.Eviction, opts.Config)
	if res.Reason != nil {
		if config.IsUnavailable(res.Reason) {
			log.Debug("map configuration unavailable; using default eviction policy", "reason", res.Reason)
		} else {
			log.Warn("map configuration lookup failed; using default eviction policy", "err", res.Reason)
		}
	}

	c := &Cache[K, V]{
		name:   name,
		access: opts.Access,
		res:    res,
		loader: opts.Loader,
		log:    log,
	}
	c.st = store.New(store.Options[K, V]{
		Eviction:       res.Policy,
		Shards:         opts.Shards,
		Comparator:     opts.Data.comparator(),
		LockedReadMiss: opts.Access.ReadConsistent(),
		Metrics:        opts.StoreMetrics,
		Clock:          opts.Clock,
		SweepInterval:  opts.SweepInterval,
		Logger:         log,
	})

	if opts.Topic != nil {
		members := opts.Membership
		if members == nil {
			members = cluster.NewMember()
		}
		ch, err := invalidation.NewChannel[K](name, opts.Topic, members, c.st, invalidation.Options{
			QueueSize: opts.QueueSize,
			Metrics:   opts.ChannelMetrics,
			Logger:    log,
		})
		if err != nil {
			_ = c.st.Close()
			return nil, err
		}
		c.ch = ch
	}

	log.Info("region started",
		"access", opts.Access.String(),
		"maxSize", res.Policy.MaxSize,
		"ttl", res.Policy.TimeToLive,
		"discipline", string(res.Policy.Discipline),
		"policySource", res.Source.String(),
		"clustered", c.ch != nil)
	return c, nil
}

// Name returns the region name.
func (c *Cache[K, V]) Name() string { return c.name }

// Access returns the region's access type.
func (c *Cache[K, V]) Access() AccessType { return c.access }

// Policy returns the resolved eviction policy.
func (c *Cache[K, V]) Policy() eviction.Policy { return c.res.Policy }

// PolicySource tells whether the policy came from an override, the map
// configuration or the defaults.
func (c *Cache[K, V]) PolicySource() eviction.Source { return c.res.Source }

// Get returns the cached value for k.
func (c *Cache[K, V]) Get(k K) (V, bool) { return c.st.Get(k) }

// Contains reports whether k is resident, ignoring soft locks.
func (c *Cache[K, V]) Contains(k K) bool {
	_, _, ok := c.st.Peek(k)
	return ok
}

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int { return c.st.Len() }

// Stats returns the store counters.
func (c *Cache[K, V]) Stats() store.Stats { return c.st.Stats() }

// Put writes v under k and broadcasts an invalidation when the write was
// applied. A rejected write (stale version or foreign lock) is silent.
func (c *Cache[K, V]) Put(k K, v V, version any, ts time.Time) bool {
	if !c.st.Put(k, v, version, ts) {
		return false
	}
	c.publishKey(k)
	return true
}

// PutLocked is Put on behalf of the transaction holding tok.
func (c *Cache[K, V]) PutLocked(k K, v V, version any, ts time.Time, tok store.Token) bool {
	if !c.st.PutLocked(k, v, version, ts, tok) {
		return false
	}
	c.publishKey(k)
	return true
}

// Remove deletes k locally and asks peers to do the same. It always
// broadcasts, since peers may hold k even when this member does not.
func (c *Cache[K, V]) Remove(k K) {
	c.st.Remove(k)
	c.publishKey(k)
}

// Evict drops k locally without telling peers.
func (c *Cache[K, V]) Evict(k K) { c.st.Invalidate(k) }

// EvictAll clears the region here and on every peer.
func (c *Cache[K, V]) EvictAll() {
	c.st.Clear()
	if c.ch != nil {
		c.ch.PublishEvictAll()
	}
}

// LockItem soft-locks k for tx. It never blocks.
func (c *Cache[K, V]) LockItem(k K, tx store.TxID) store.Token {
	return c.st.Lock(k, tx)
}

// UnlockItem releases tok and, when that succeeded, broadcasts an
// invalidation of k so peers drop what they hold from before the write.
func (c *Cache[K, V]) UnlockItem(k K, tok store.Token, newVersion any) bool {
	if !c.st.Unlock(k, tok, newVersion) {
		return false
	}
	c.publishKey(k)
	return true
}

// GetOrLoad returns the cached value or loads it with the configured
// Loader. Concurrent loads of one key are coalesced. Loaded values are
// stored without a broadcast: loading is not a mutation.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if v, ok := c.st.Get(k); ok {
		return v, nil
	}
	if c.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}
	v, _, err := c.sf.Do(ctx, k, func() (V, error) {
		if v, ok := c.st.Get(k); ok {
			return v, nil
		}
		v, err := c.loader(ctx, k)
		if err == nil {
			c.st.Put(k, v, nil, time.Time{})
		}
		return v, err
	})
	return v, err
}

// Flush waits until invalidations broadcast so far were handed to the
// topic. It is a no-op for local-only regions.
func (c *Cache[K, V]) Flush(ctx context.Context) error {
	if c.ch == nil {
		return nil
	}
	return c.ch.Flush(ctx)
}

// Close unsubscribes from the topic, drains pending broadcasts and stops
// the store. Later calls return the first result.
func (c *Cache[K, V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.ch != nil {
			c.closeErr = c.ch.Close(ctx)
		}
		_ = c.st.Close()
		c.log.Info("region closed")
	})
	return c.closeErr
}

func (c *Cache[K, V]) publishKey(k K) {
	if c.ch != nil {
		c.ch.PublishKey(k)
	}
}
