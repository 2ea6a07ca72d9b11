// Package policy defines how a store shard orders its resident entries for
// size-bounded eviction. A policy only decides ordering; the shard owns the
// key map, the version/lock state and the actual deletion.
package policy

// Node is the minimal contract a resident entry exposes to a policy.
type Node[K comparable] interface {
	Key() K
}

// Hooks expose the shard's O(1) list operations. The list runs from the
// most recently stamped entry (front) to the eviction candidate (back).
// PushFront and MoveToFront also refresh the entry's recency stamp, which
// the store compares across shards to pick the region-wide victim.
//
// All hook calls happen under the shard lock.
type Hooks[K comparable] interface {
	MoveToFront(Node[K])
	PushFront(Node[K])
	Remove(Node[K])
	Back() Node[K]
	Len() int
}

// ShardPolicy is a per-shard policy instance bound to shard hooks.
// OnAdd is called for new entries, OnGet for cache hits, OnUpdate for
// applied overwrites, OnRemove before the shard unlinks an entry.
type ShardPolicy[K comparable] interface {
	OnAdd(Node[K])
	OnGet(Node[K])
	OnUpdate(Node[K])
	OnRemove(Node[K])
}

// Policy is a factory creating shard-local instances.
type Policy[K comparable] interface {
	New(Hooks[K]) ShardPolicy[K]
	// Name identifies the discipline in logs and metrics.
	Name() string
}
