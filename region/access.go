package region

import (
	"cmp"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/store"
)

// AccessType is the concurrency strategy the calling layer uses for a
// region. It decides whether soft-locked keys may still be served.
type AccessType int

const (
	ReadOnly AccessType = iota
	NonstrictReadWrite
	ReadWrite
	Transactional
)

var accessNames = [...]string{
	ReadOnly:           "read-only",
	NonstrictReadWrite: "nonstrict-read-write",
	ReadWrite:          "read-write",
	Transactional:      "transactional",
}

func (a AccessType) String() string {
	if a < 0 || int(a) >= len(accessNames) {
		return "unknown"
	}
	return accessNames[a]
}

// ReadConsistent reports whether reads must miss while a write is pending
// under a soft lock.
func (a AccessType) ReadConsistent() bool {
	return a == ReadWrite || a == Transactional
}

// ParseAccessType accepts the names printed by String, case-insensitively,
// with '_' allowed in place of '-'.
func ParseAccessType(s string) (AccessType, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for i, name := range accessNames {
		if name == norm {
			return AccessType(i), nil
		}
	}
	return 0, platformerrors.Newf(platformerrors.CodeInvalidConfig, "region: unknown access type %q", s)
}

// DataDescription describes the cached data. Comparator is consulted only
// when Versioned is set.
type DataDescription struct {
	Versioned  bool
	Comparator store.Comparator
}

func (d DataDescription) comparator() store.Comparator {
	if !d.Versioned {
		return nil
	}
	return d.Comparator
}

// OrderedVersions returns a comparator for version tokens of one ordered
// type. Tokens of any other type compare as equal.
func OrderedVersions[T cmp.Ordered]() store.Comparator {
	return func(a, b any) int {
		x, ok1 := a.(T)
		y, ok2 := b.(T)
		if !ok1 || !ok2 {
			return 0
		}
		return cmp.Compare(x, y)
	}
}
