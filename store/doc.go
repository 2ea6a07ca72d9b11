// Package store implements the local store behind one cache region: a
// sharded, concurrent key → versioned entry map with size- and time-bounded
// eviction and transactional soft locks.
//
// # Design
//
//   - Concurrency: the store is split into power-of-two shards, each with
//     its own mutex, value map, soft-lock table and intrusive list.
//     Operations on one key are linearized by its shard; unrelated keys do
//     not contend.
//
//   - Size bound: every list move stamps the entry with a region-wide
//     recency tick. A shard tail is that shard's oldest entry, so the
//     smallest tail stamp is the region's victim and the bound is exact.
//     LRU (default) restamps on reads and writes; FIFO only on writes.
//
//   - TTL: an entry expires once now - write timestamp >= TTL. Expiry is
//     lazy on access and also done by a janitor sweep.
//
//   - Versions: with a Comparator, a write is applied only if its version
//     is not older than the stored one (ties overwrite). Without one the
//     data is unversioned and only soft locks can refuse a write.
//
//   - Soft locks: Lock marks a key as being written by a transaction. It
//     never blocks. With LockedReadMiss, reads miss while the lock is held;
//     unowned writes are refused until Unlock. A release that announces a
//     new version evicts older copies and keeps fencing older writes for a
//     short grace window.
//
// # Usage
//
//	st := store.New[string, []byte](store.Options[string, []byte]{
//	    Eviction:       eviction.Policy{MaxSize: 10_000, TimeToLive: 5 * time.Minute},
//	    Comparator:     func(a, b any) int { return cmp.Compare(a.(int64), b.(int64)) },
//	    LockedReadMiss: true,
//	})
//	defer st.Close()
//
//	tok := st.Lock("Order#1", "tx-42")
//	st.PutLocked("Order#1", payload, int64(3), time.Time{}, tok)
//	st.Unlock("Order#1", tok, int64(3))
package store
