package store

// node is an intrusive list element owned by a shard. It carries the
// cached value together with its version token and timing metadata.
type node[K comparable, V any] struct {
	key K
	val V

	// version is the opaque token compared by Options.Comparator; nil for
	// unversioned writes.
	version any

	// ts is the write timestamp and exp the TTL deadline (UnixNano, 0 = none).
	ts  int64
	exp int64

	// stamp is the region-wide recency tick assigned when the policy last
	// moved the node to the front. Lower stamps are older.
	stamp uint64

	// lockID is the soft lock the value was written under (0 = none).
	lockID uint64

	prev *node[K, V]
	next *node[K, V]
}

// Key implements policy.Node.
func (n *node[K, V]) Key() K { return n.key }
