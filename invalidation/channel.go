package invalidation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/internal/logging"
)

// Defaults applied by NewChannel.
const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 5 * time.Second
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = platformerrors.New(platformerrors.CodeUnavailable, "invalidation: channel closed")

// Options configures a Channel. Zero values are safe.
type Options struct {
	// QueueSize bounds the outbound queue; a full queue drops messages.
	QueueSize int
	// PublishTimeout bounds a single Topic.Publish call.
	PublishTimeout time.Duration
	Metrics        Metrics
	Logger         *slog.Logger
}

// Channel connects one region's local store to the region topic.
//
// Outbound, PublishKey/PublishEvictAll only enqueue; a single worker hands
// messages to the topic, so callers never wait on the network and a
// transport failure never fails the local write. Inbound, OnMessage drops
// this member's own echoes and evicts for everything else.
type Channel[K comparable] struct {
	region  string
	topic   Topic[K]
	members Membership
	target  Target[K]
	opt     Options
	log     *slog.Logger

	sub        SubscriptionID
	subscribed bool
	unsubOnce  sync.Once

	mu     sync.RWMutex // guards closed against sends on queue
	closed bool
	queue  chan outbound[K]
	done   chan struct{}
}

type outbound[K comparable] struct {
	msg     Message[K]
	flushed chan struct{} // non-nil for Flush markers
}

// NewChannel subscribes to topic and starts the publishing worker. A failed
// subscription is logged, not returned: the region keeps working locally
// and still broadcasts its own mutations.
func NewChannel[K comparable](region string, topic Topic[K], members Membership, target Target[K], opt Options) (*Channel[K], error) {
	switch {
	case region == "":
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: region name is required")
	case topic == nil:
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: topic is required")
	case members == nil:
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: membership is required")
	case target == nil:
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "invalidation: target is required")
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = DefaultQueueSize
	}
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = DefaultPublishTimeout
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	c := &Channel[K]{
		region:  region,
		topic:   topic,
		members: members,
		target:  target,
		opt:     opt,
		log:     logging.OrDiscard(opt.Logger).With("region", region),
		queue:   make(chan outbound[K], opt.QueueSize),
		done:    make(chan struct{}),
	}

	id, err := topic.Subscribe(c.OnMessage)
	if err != nil {
		c.log.Warn("subscribe to invalidation topic failed; peers' invalidations will not be applied", "err", err)
	} else {
		c.sub, c.subscribed = id, true
	}

	go c.run()
	return c, nil
}

// Region returns the region name.
func (c *Channel[K]) Region() string { return c.region }

// Subscribed reports whether the channel is receiving peer invalidations.
func (c *Channel[K]) Subscribed() bool { return c.subscribed }

// PublishKey broadcasts an invalidation of k.
func (c *Channel[K]) PublishKey(k K) {
	c.enqueue(KeyMessage(c.region, k, c.members.LocalMember()))
}

// PublishEvictAll broadcasts an invalidation of the whole region.
func (c *Channel[K]) PublishEvictAll() {
	c.enqueue(EvictAllMessage[K](c.region, c.members.LocalMember()))
}

func (c *Channel[K]) enqueue(m Message[K]) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.log.Debug("channel closed; invalidation not sent", "evictAll", m.EvictAll)
		return
	}
	select {
	case c.queue <- outbound[K]{msg: m}:
	default:
		c.opt.Metrics.PublishFailed()
		c.log.Warn("invalidation queue full; message dropped", "evictAll", m.EvictAll)
	}
}

// Flush waits until every message enqueued before the call has been handed
// to the topic (successfully or not).
func (c *Channel[K]) Flush(ctx context.Context) error {
	marker := outbound[K]{flushed: make(chan struct{})}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	select {
	case c.queue <- marker:
		c.mu.RUnlock()
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel[K]) run() {
	defer close(c.done)
	for item := range c.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		c.publish(item.msg)
	}
}

func (c *Channel[K]) publish(m Message[K]) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opt.PublishTimeout)
	defer cancel()
	if err := c.topic.Publish(ctx, m); err != nil {
		c.opt.Metrics.PublishFailed()
		c.log.Warn("publish invalidation failed; peers may serve stale data until TTL",
			"evictAll", m.EvictAll,
			"err", platformerrors.Wrap(err, platformerrors.CodePublishFailed, "invalidation: publish"))
		return
	}
	c.opt.Metrics.Published()
}

// OnMessage applies a delivered message to the local store. It is the
// listener registered with the topic and may be called concurrently.
func (c *Channel[K]) OnMessage(m Message[K]) {
	if m.Origin == c.members.LocalMember() {
		c.opt.Metrics.Suppressed()
		return
	}
	c.opt.Metrics.Received()
	if m.Region != c.region {
		c.log.Debug("ignoring invalidation for another region", "target", m.Region)
		return
	}
	if err := m.Validate(); err != nil {
		c.log.Warn("ignoring malformed invalidation", "origin", m.Origin, "err", err)
		return
	}
	if m.EvictAll {
		c.target.Clear()
		return
	}
	c.target.Invalidate(*m.Key)
}

// Close unsubscribes from the topic, drains the outbound queue and stops
// the worker. It is safe to call more than once. The returned error reports
// a failed unsubscribe or ctx expiring before the queue drained.
func (c *Channel[K]) Close(ctx context.Context) error {
	var unsubErr error
	c.unsubOnce.Do(func() {
		if c.subscribed {
			if err := c.topic.Unsubscribe(c.sub); err != nil {
				unsubErr = platformerrors.Wrap(err, platformerrors.CodeNetwork, "invalidation: unsubscribe")
			}
		}
	})

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return unsubErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
