// Package cluster provides member identity and an in-process invalidation
// transport. The in-process Hub is what tests, the bench simulator and
// single-binary deployments use; cross-process clusters use a network
// transport such as cluster/pgnotify.
package cluster

import (
	"github.com/google/uuid"

	"github.com/IvanBrykalov/regioncache/invalidation"
)

// Member is a fixed cluster identity. It implements invalidation.Membership.
type Member struct {
	id invalidation.MemberID
}

// NewMember returns a member with a fresh random identity.
func NewMember() Member {
	return Member{id: invalidation.MemberID(uuid.NewString())}
}

// NamedMember returns a member with a caller-chosen identity. Identities
// must be unique across the cluster or self-echo suppression will drop
// peers' messages.
func NamedMember(id string) Member {
	return Member{id: invalidation.MemberID(id)}
}

// LocalMember implements invalidation.Membership.
func (m Member) LocalMember() invalidation.MemberID { return m.id }

func (m Member) String() string { return string(m.id) }
