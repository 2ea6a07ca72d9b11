package store

// TxID identifies the transaction (or session) that owns a soft lock.
type TxID string

// Token is handed out by Lock and must be presented to Unlock and PutLocked.
type Token struct {
	ID    uint64
	Owner TxID
}

// Valid reports whether the token came from a Lock call.
func (t Token) Valid() bool { return t.ID != 0 }

// softLock marks a key with an in-flight transactional write. It lives next
// to, not inside, the cached value: a key can be locked while absent, and
// evicting the value keeps the lock.
//
// After the last holder unlocks, the record may stay behind as a release
// marker until graceUntil, fencing writes older than version.
type softLock struct {
	id         uint64
	owner      TxID
	count      int
	concurrent bool  // locked by more than one owner
	lockedAt   int64 // last Lock call

	released   bool
	version    any // release version; nil fences every unowned write
	graceUntil int64
}

// expired reports whether the record can be dropped at now. Active locks
// are bounded by the region TTL so a lost unlock cannot pin a key forever.
func (l *softLock) expired(now int64, ttl int64) bool {
	if l.released {
		return now >= l.graceUntil
	}
	return ttl > 0 && now-l.lockedAt >= ttl
}
