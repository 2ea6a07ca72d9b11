package pgnotify

import (
	"context"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/invalidation"
)

// Topic is the invalidation.Topic of one region on a Bus. Keys travel as
// JSON, so K must round-trip through encoding/json.
type Topic[K comparable] struct {
	bus    *Bus
	region string
}

var _ invalidation.Topic[string] = (*Topic[string])(nil)

// TopicFor returns the topic of region on b.
func TopicFor[K comparable](b *Bus, region string) *Topic[K] {
	return &Topic[K]{bus: b, region: region}
}

// Publish implements invalidation.Topic. Messages for another region are
// rejected.
func (t *Topic[K]) Publish(ctx context.Context, m invalidation.Message[K]) error {
	if m.Region != t.region {
		return platformerrors.Newf(platformerrors.CodeInvalidInput, "pgnotify: message for %q published on %q", m.Region, t.region)
	}
	payload, err := encode(m)
	if err != nil {
		return err
	}
	return t.bus.notify(ctx, payload)
}

// Subscribe implements invalidation.Topic. Notifications whose key does
// not decode into K are logged and dropped.
func (t *Topic[K]) Subscribe(l invalidation.Listener[K]) (invalidation.SubscriptionID, error) {
	if l == nil {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "pgnotify: nil listener")
	}
	log := t.bus.log.With("region", t.region)
	return t.bus.subscribe(t.region, func(env envelope) {
		m, err := decode[K](env)
		if err != nil {
			log.Warn("dropping malformed invalidation", "origin", env.Origin, "err", err)
			return
		}
		l(m)
	}), nil
}

// Unsubscribe implements invalidation.Topic.
func (t *Topic[K]) Unsubscribe(id invalidation.SubscriptionID) error {
	return t.bus.unsubscribe(t.region, id)
}
