package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/invalidation"
)

// Hub is an in-process message bus: one named topic per region, shared by
// every member living in the process.
type Hub struct {
	mu     sync.Mutex
	topics map[string]any
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]any)}
}

// TopicFor returns the hub topic called name, creating it on first use.
// Asking for an existing name with a different key type is an error.
func TopicFor[K comparable](h *Hub, name string) (*Topic[K], error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[name]; ok {
		typed, ok := t.(*Topic[K])
		if !ok {
			return nil, platformerrors.WithContext(
				platformerrors.New(platformerrors.CodeConflict, "cluster: topic exists with a different key type"),
				"topic", name)
		}
		return typed, nil
	}
	t := &Topic[K]{name: name, subs: make(map[invalidation.SubscriptionID]invalidation.Listener[K])}
	h.topics[name] = t
	return t, nil
}

// Topic is an in-process invalidation.Topic. Publish delivers to every
// subscriber synchronously on the caller's goroutine, so it returns only
// after all listeners ran. Listeners are called without any topic lock
// held.
type Topic[K comparable] struct {
	name string

	mu   sync.RWMutex
	subs map[invalidation.SubscriptionID]invalidation.Listener[K]
}

var _ invalidation.Topic[string] = (*Topic[string])(nil)

// Name returns the topic name.
func (t *Topic[K]) Name() string { return t.name }

// Publish implements invalidation.Topic.
func (t *Topic[K]) Publish(ctx context.Context, m invalidation.Message[K]) error {
	if err := ctx.Err(); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeTimeout, "cluster: publish")
	}
	t.mu.RLock()
	ls := make([]invalidation.Listener[K], 0, len(t.subs))
	for _, l := range t.subs {
		ls = append(ls, l)
	}
	t.mu.RUnlock()

	for _, l := range ls {
		l(m)
	}
	return nil
}

// Subscribe implements invalidation.Topic.
func (t *Topic[K]) Subscribe(l invalidation.Listener[K]) (invalidation.SubscriptionID, error) {
	if l == nil {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "cluster: nil listener")
	}
	id := invalidation.SubscriptionID(uuid.NewString())
	t.mu.Lock()
	t.subs[id] = l
	t.mu.Unlock()
	return id, nil
}

// Unsubscribe implements invalidation.Topic.
func (t *Topic[K]) Unsubscribe(id invalidation.SubscriptionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[id]; !ok {
		return platformerrors.New(platformerrors.CodeNotFound, fmt.Sprintf("cluster: unknown subscription %q on %s", id, t.name))
	}
	delete(t.subs, id)
	return nil
}

// Subscribers returns the number of live subscriptions.
func (t *Topic[K]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
