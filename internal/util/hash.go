// Package util contains internal helpers for key hashing, shard sizing and
// false-sharing padding used by the region store.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
	"math"
)

// Hasher maps a key to a 64-bit hash used for shard selection.
type Hasher[K comparable] func(K) uint64

// KeyHash hashes the key types regions are normally keyed by using 64-bit
// FNV-1a: strings, byte arrays, integer widths, floats, bools and
// fmt.Stringer. Entity identifiers that are none of these should be
// converted to a string or hashed by a custom Hasher.
func KeyHash[K comparable](k K) uint64 {
	switch v := any(k).(type) {
	case string:
		return fnvString(v)
	case [16]byte: // uuid-shaped identifiers
		return fnvBytes(v[:])
	case [32]byte:
		return fnvBytes(v[:])
	case int:
		return fnvUint64(uint64(v))
	case int8:
		return fnvUint64(uint64(uint8(v)))
	case int16:
		return fnvUint64(uint64(uint16(v)))
	case int32:
		return fnvUint64(uint64(uint32(v)))
	case int64:
		return fnvUint64(uint64(v))
	case uint:
		return fnvUint64(uint64(v))
	case uint8:
		return fnvUint64(uint64(v))
	case uint16:
		return fnvUint64(uint64(v))
	case uint32:
		return fnvUint64(uint64(v))
	case uint64:
		return fnvUint64(v)
	case uintptr:
		return fnvUint64(uint64(v))
	case float64:
		return fnvUint64(math.Float64bits(v))
	case float32:
		return fnvUint64(uint64(math.Float32bits(v)))
	case bool:
		if v {
			return fnvUint64(1)
		}
		return fnvUint64(0)
	case fmt.Stringer:
		return fnvString(v.String())
	default:
		// Composite keys (structs of the above) fall back to their printed
		// form; slower but stable for equal values.
		return fnvString(fmt.Sprintf("%#v", k))
	}
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

func fnvString(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

func fnvBytes(b []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

// fnvUint64 hashes the 8 little-endian bytes of u without allocating.
func fnvUint64(u uint64) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}
