package cluster

import (
	"context"
	"sync/atomic"
	"testing"

	platformerrors "github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/regioncache/invalidation"
)

func TestNewMember_Unique(t *testing.T) {
	t.Parallel()
	seen := map[invalidation.MemberID]bool{}
	for i := 0; i < 100; i++ {
		id := NewMember().LocalMember()
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty member id %q", id)
		}
		seen[id] = true
	}
	if got := NamedMember("node-1").LocalMember(); got != "node-1" {
		t.Fatalf("NamedMember id=%q", got)
	}
}

func TestTopicFor_SameNameSameTopic(t *testing.T) {
	t.Parallel()
	h := NewHub()
	a, err := TopicFor[string](h, "Orders")
	if err != nil {
		t.Fatal(err)
	}
	b, err := TopicFor[string](h, "Orders")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("TopicFor returned distinct topics for the same name")
	}
	if _, err := TopicFor[int](h, "Orders"); platformerrors.GetCode(err) != platformerrors.CodeConflict {
		t.Fatalf("key type clash: err=%v", err)
	}
}

func TestTopic_PublishDeliversToAll(t *testing.T) {
	t.Parallel()
	topic, _ := TopicFor[string](NewHub(), "Orders")

	var n atomic.Int64
	ids := make([]invalidation.SubscriptionID, 3)
	for i := range ids {
		id, err := topic.Subscribe(func(m invalidation.Message[string]) {
			if m.Key == nil || *m.Key != "K" {
				t.Errorf("unexpected message %+v", m)
			}
			n.Add(1)
		})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}

	if err := topic.Publish(context.Background(), invalidation.KeyMessage("Orders", "K", "A")); err != nil {
		t.Fatal(err)
	}
	if got := n.Load(); got != 3 {
		t.Fatalf("deliveries=%d, want 3", got)
	}

	if err := topic.Unsubscribe(ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := topic.Unsubscribe(ids[0]); platformerrors.GetCode(err) != platformerrors.CodeNotFound {
		t.Fatalf("double unsubscribe: err=%v", err)
	}
	if got := topic.Subscribers(); got != 2 {
		t.Fatalf("Subscribers=%d, want 2", got)
	}
}

func TestTopic_PublishCanceled(t *testing.T) {
	t.Parallel()
	topic, _ := TopicFor[string](NewHub(), "Orders")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := topic.Publish(ctx, invalidation.EvictAllMessage[string]("Orders", "A")); err == nil {
		t.Fatal("Publish on canceled context succeeded")
	}
}

func TestTopic_ListenerMayUnsubscribe(t *testing.T) {
	t.Parallel()
	topic, _ := TopicFor[string](NewHub(), "Orders")
	var id invalidation.SubscriptionID
	id, _ = topic.Subscribe(func(invalidation.Message[string]) {
		// Runs without the topic lock held.
		_ = topic.Unsubscribe(id)
	})
	if err := topic.Publish(context.Background(), invalidation.EvictAllMessage[string]("Orders", "A")); err != nil {
		t.Fatal(err)
	}
	if topic.Subscribers() != 0 {
		t.Fatal("listener failed to unsubscribe itself")
	}
}

func TestTopic_Concurrent(t *testing.T) {
	t.Parallel()
	topic, _ := TopicFor[int](NewHub(), "Counters")
	var n atomic.Int64

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			id, err := topic.Subscribe(func(invalidation.Message[int]) { n.Add(1) })
			if err != nil {
				return err
			}
			for i := 0; i < 100; i++ {
				if err := topic.Publish(context.Background(), invalidation.KeyMessage("Counters", i, "A")); err != nil {
					return err
				}
			}
			return topic.Unsubscribe(id)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if topic.Subscribers() != 0 {
		t.Fatalf("leaked subscriptions: %d", topic.Subscribers())
	}
	if n.Load() < 800 {
		t.Fatalf("deliveries=%d, want >= 800", n.Load())
	}
}
