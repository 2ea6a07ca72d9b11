package invalidation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	platformerrors "github.com/jmgilman/go/errors"
)

type staticMember MemberID

func (m staticMember) LocalMember() MemberID { return MemberID(m) }

// recordingTopic delivers synchronously to its listeners and records every
// published message.
type recordingTopic struct {
	mu           sync.Mutex
	published    []Message[string]
	listeners    map[SubscriptionID]Listener[string]
	next         int
	publishErr   error
	subscribeErr error
	unsubscribed int
	block        chan struct{}
}

func newRecordingTopic() *recordingTopic {
	return &recordingTopic{listeners: map[SubscriptionID]Listener[string]{}}
}

func (t *recordingTopic) Publish(ctx context.Context, m Message[string]) error {
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	t.mu.Lock()
	if t.publishErr != nil {
		t.mu.Unlock()
		return t.publishErr
	}
	t.published = append(t.published, m)
	ls := make([]Listener[string], 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		l(m)
	}
	return nil
}

func (t *recordingTopic) Subscribe(l Listener[string]) (SubscriptionID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return "", t.subscribeErr
	}
	t.next++
	id := SubscriptionID(string(rune('a' + t.next)))
	t.listeners[id] = l
	return id, nil
}

func (t *recordingTopic) Unsubscribe(id SubscriptionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribed++
	delete(t.listeners, id)
	return nil
}

func (t *recordingTopic) snapshot() []Message[string] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message[string](nil), t.published...)
}

type recordingTarget struct {
	mu          sync.Mutex
	invalidated []string
	clears      int
}

func (r *recordingTarget) Invalidate(k string) {
	r.mu.Lock()
	r.invalidated = append(r.invalidated, k)
	r.mu.Unlock()
}

func (r *recordingTarget) Clear() {
	r.mu.Lock()
	r.clears++
	r.mu.Unlock()
}

type countingMetrics struct {
	published, failed, received, suppressed atomic.Int64
}

func (m *countingMetrics) Published()     { m.published.Add(1) }
func (m *countingMetrics) PublishFailed() { m.failed.Add(1) }
func (m *countingMetrics) Received()      { m.received.Add(1) }
func (m *countingMetrics) Suppressed()    { m.suppressed.Add(1) }

func newTestChannel(t *testing.T, topic *recordingTopic, member string, target *recordingTarget, opt Options) *Channel[string] {
	t.Helper()
	c, err := NewChannel[string]("Orders", topic, staticMember(member), target, opt)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func flush(t *testing.T, c *Channel[string]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func key(s string) *string { return &s }

func TestChannel_PublishKeyAndEvictAll(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	m := &countingMetrics{}
	c := newTestChannel(t, topic, "A", &recordingTarget{}, Options{Metrics: m})

	c.PublishKey("K")
	c.PublishEvictAll()
	flush(t, c)

	want := []Message[string]{
		{Region: "Orders", Key: key("K"), Origin: "A"},
		{Region: "Orders", EvictAll: true, Origin: "A"},
	}
	if diff := cmp.Diff(want, topic.snapshot()); diff != "" {
		t.Fatalf("published (-want +got):\n%s", diff)
	}
	if got := m.published.Load(); got != 2 {
		t.Fatalf("Published=%d, want 2", got)
	}
}

func TestChannel_SelfEchoSuppressed(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	target := &recordingTarget{}
	m := &countingMetrics{}
	c := newTestChannel(t, topic, "A", target, Options{Metrics: m})

	c.PublishKey("K")
	flush(t, c)

	if len(target.invalidated) != 0 || target.clears != 0 {
		t.Fatalf("own message applied locally: %+v", target)
	}
	if m.suppressed.Load() != 1 || m.received.Load() != 0 {
		t.Fatalf("suppressed=%d received=%d", m.suppressed.Load(), m.received.Load())
	}
}

func TestChannel_SelfEchoCheckedBeforePayload(t *testing.T) {
	t.Parallel()
	target := &recordingTarget{}
	c := newTestChannel(t, newRecordingTopic(), "A", target, Options{})

	// Neither key nor evictAll: invalid, but it is ours so it must be
	// dropped without being inspected.
	c.OnMessage(Message[string]{Region: "Orders", Origin: "A"})
	if len(target.invalidated) != 0 || target.clears != 0 {
		t.Fatalf("target touched: %+v", target)
	}
}

func TestChannel_RemoteMessages(t *testing.T) {
	t.Parallel()
	target := &recordingTarget{}
	m := &countingMetrics{}
	c := newTestChannel(t, newRecordingTopic(), "A", target, Options{Metrics: m})

	c.OnMessage(KeyMessage("Orders", "K1", "B"))
	c.OnMessage(KeyMessage("Orders", "K1", "B")) // duplicate delivery
	c.OnMessage(EvictAllMessage[string]("Orders", "C"))
	c.OnMessage(KeyMessage("Customers", "K2", "B"))
	c.OnMessage(Message[string]{Region: "Orders", Origin: "B"})

	if diff := cmp.Diff([]string{"K1", "K1"}, target.invalidated); diff != "" {
		t.Fatalf("invalidated (-want +got):\n%s", diff)
	}
	if target.clears != 1 {
		t.Fatalf("clears=%d, want 1", target.clears)
	}
	if got := m.received.Load(); got != 5 {
		t.Fatalf("Received=%d, want 5", got)
	}
}

func TestChannel_TwoMembers(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	ta, tb := &recordingTarget{}, &recordingTarget{}
	a := newTestChannel(t, topic, "A", ta, Options{})
	newTestChannel(t, topic, "B", tb, Options{})

	a.PublishKey("K")
	flush(t, a)

	if len(ta.invalidated) != 0 {
		t.Fatalf("publisher invalidated itself: %v", ta.invalidated)
	}
	if diff := cmp.Diff([]string{"K"}, tb.invalidated); diff != "" {
		t.Fatalf("peer invalidations (-want +got):\n%s", diff)
	}
}

func TestChannel_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	topic.publishErr = errors.New("broker down")
	m := &countingMetrics{}
	c := newTestChannel(t, topic, "A", &recordingTarget{}, Options{Metrics: m})

	c.PublishKey("K")
	flush(t, c)
	if got := m.failed.Load(); got != 1 {
		t.Fatalf("PublishFailed=%d, want 1", got)
	}
}

func TestChannel_QueueFullDrops(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	topic.block = make(chan struct{})
	m := &countingMetrics{}
	c := newTestChannel(t, topic, "A", &recordingTarget{}, Options{Metrics: m, QueueSize: 1})

	// The worker may hold one message in Publish; the queue holds one more.
	for i := 0; i < 10; i++ {
		c.PublishKey("K")
	}
	if got := m.failed.Load(); got < 8 {
		t.Fatalf("PublishFailed=%d, want >= 8", got)
	}
	close(topic.block)
	flush(t, c)
}

func TestChannel_SubscribeFailureKeepsPublishing(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	topic.subscribeErr = errors.New("no listener")
	c := newTestChannel(t, topic, "A", &recordingTarget{}, Options{})
	if c.Subscribed() {
		t.Fatal("Subscribed() = true after failed subscribe")
	}
	c.PublishKey("K")
	flush(t, c)
	if got := len(topic.snapshot()); got != 1 {
		t.Fatalf("published=%d, want 1", got)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if topic.unsubscribed != 0 {
		t.Fatal("unsubscribed without a subscription")
	}
}

func TestChannel_CloseUnsubscribesOnce(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	c, err := NewChannel[string]("Orders", topic, staticMember("A"), &recordingTarget{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	c.PublishKey("K")
	for i := 0; i < 3; i++ {
		if err := c.Close(context.Background()); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
	if topic.unsubscribed != 1 {
		t.Fatalf("unsubscribed=%d, want 1", topic.unsubscribed)
	}
	if len(topic.snapshot()) != 1 {
		t.Fatal("queued message not drained on Close")
	}
	c.PublishKey("after") // dropped, must not panic
	if err := c.Flush(context.Background()); !platformerrors.Is(err, ErrClosed) {
		t.Fatalf("Flush after Close: %v", err)
	}
}

func TestNewChannel_Validation(t *testing.T) {
	t.Parallel()
	topic := newRecordingTopic()
	cases := map[string]func() error{
		"region": func() error {
			_, err := NewChannel[string]("", topic, staticMember("A"), &recordingTarget{}, Options{})
			return err
		},
		"topic": func() error {
			_, err := NewChannel[string]("R", nil, staticMember("A"), &recordingTarget{}, Options{})
			return err
		},
		"membership": func() error {
			_, err := NewChannel[string]("R", topic, nil, &recordingTarget{}, Options{})
			return err
		},
		"target": func() error {
			_, err := NewChannel[string]("R", topic, staticMember("A"), nil, Options{})
			return err
		},
	}
	for name, fn := range cases {
		if code := platformerrors.GetCode(fn()); code != platformerrors.CodeInvalidInput {
			t.Errorf("%s: code=%v, want %v", name, code, platformerrors.CodeInvalidInput)
		}
	}
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		msg  Message[string]
		ok   bool
	}{
		{"key", KeyMessage("R", "k", "A"), true},
		{"zero key", KeyMessage("R", "", "A"), true},
		{"evictAll", EvictAllMessage[string]("R", "A"), true},
		{"both", Message[string]{Region: "R", Key: key("k"), EvictAll: true, Origin: "A"}, false},
		{"neither", Message[string]{Region: "R", Origin: "A"}, false},
		{"no region", KeyMessage("", "k", "A"), false},
		{"no origin", KeyMessage("R", "k", ""), false},
	}
	for _, tc := range cases {
		err := tc.msg.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: Validate()=%v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}
