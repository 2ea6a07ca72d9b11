// Package invalidation keeps the local stores of a region consistent across
// cluster members by broadcasting "evict this key" (or "evict everything")
// signals over a pub/sub topic. Values are never shipped: peers evict and
// reload, so duplicate or reordered delivery is harmless.
package invalidation

import (
	"context"

	platformerrors "github.com/jmgilman/go/errors"
)

// MemberID identifies a cluster member.
type MemberID string

// Message is one invalidation signal. Exactly one of Key and EvictAll is set.
type Message[K comparable] struct {
	Region   string   `json:"region"`
	Key      *K       `json:"key,omitempty"`
	EvictAll bool     `json:"evictAll,omitempty"`
	Origin   MemberID `json:"origin"`
}

// KeyMessage invalidates a single key.
func KeyMessage[K comparable](region string, k K, origin MemberID) Message[K] {
	return Message[K]{Region: region, Key: &k, Origin: origin}
}

// EvictAllMessage invalidates every key of region.
func EvictAllMessage[K comparable](region string, origin MemberID) Message[K] {
	return Message[K]{Region: region, EvictAll: true, Origin: origin}
}

// Validate checks the shape of a message received from the wire.
func (m Message[K]) Validate() error {
	switch {
	case m.Region == "":
		return platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: message without region")
	case m.Origin == "":
		return platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: message without origin")
	case (m.Key != nil) == m.EvictAll:
		return platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: message must carry exactly one of key or evictAll")
	}
	return nil
}

// Listener receives messages delivered by a Topic.
type Listener[K comparable] func(Message[K])

// SubscriptionID is the handle returned by Subscribe.
type SubscriptionID string

// Topic is the cluster-wide pub/sub channel of one region. Implementations
// are thread-safe, deliver at least once and in no particular order across
// publishers. Publish must not wait for consumers.
type Topic[K comparable] interface {
	Publish(ctx context.Context, m Message[K]) error
	Subscribe(l Listener[K]) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) error
}

// Membership answers "who am I" for self-echo suppression.
type Membership interface {
	LocalMember() MemberID
}

// Target is the local store a channel evicts from.
type Target[K comparable] interface {
	Invalidate(k K)
	Clear()
}
