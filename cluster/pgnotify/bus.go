// Package pgnotify carries invalidation messages over PostgreSQL
// LISTEN/NOTIFY. One Bus per process holds a single listening connection
// and fans notifications out to per-region topics; publishing goes through
// the shared pool.
package pgnotify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/internal/logging"
	"github.com/IvanBrykalov/regioncache/invalidation"
)

// Defaults applied by NewBus.
const (
	DefaultChannel        = "regioncache_invalidation"
	DefaultReconnectDelay = time.Second
)

// Options configures a Bus.
type Options struct {
	// Channel is the NOTIFY channel shared by every region.
	Channel string
	// ReconnectDelay is the pause before re-acquiring a lost listener
	// connection.
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type handler func(envelope)

// Bus owns the LISTEN connection and the region dispatch table.
type Bus struct {
	pool    *pgxpool.Pool
	exec    execer
	channel string
	delay   time.Duration
	log     *slog.Logger

	mu       sync.RWMutex
	handlers map[string]map[invalidation.SubscriptionID]handler

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBus starts listening on opt.Channel. The first LISTEN happens before
// NewBus returns so a misconfigured database is reported to the caller;
// later connection losses are retried in the background.
func NewBus(ctx context.Context, pool *pgxpool.Pool, opt Options) (*Bus, error) {
	if pool == nil {
		return nil, platformerrors.New(platformerrors.CodeInvalidInput, "pgnotify: pool is required")
	}
	b := newBus(pool, opt)
	b.pool = pool

	conn, err := b.listen(ctx)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(loopCtx, conn)
	return b, nil
}

func newBus(exec execer, opt Options) *Bus {
	if opt.Channel == "" {
		opt.Channel = DefaultChannel
	}
	if opt.ReconnectDelay <= 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	return &Bus{
		exec:     exec,
		channel:  opt.Channel,
		delay:    opt.ReconnectDelay,
		log:      logging.OrDiscard(opt.Logger).With("channel", opt.Channel),
		handlers: make(map[string]map[invalidation.SubscriptionID]handler),
	}
}

func (b *Bus) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeNetwork, "pgnotify: acquire listener connection")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, platformerrors.Wrap(err, platformerrors.CodeDatabase, "pgnotify: listen")
	}
	return conn, nil
}

func (b *Bus) run(ctx context.Context, conn *pgxpool.Conn) {
	defer close(b.done)
	for {
		err := b.receive(ctx, conn)
		b.discard(conn)
		if ctx.Err() != nil {
			return
		}
		b.log.Warn("listener connection lost; peers' invalidations are not applied until it is restored", "err", err)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.delay):
			}
			conn, err = b.listen(ctx)
			if err == nil {
				b.log.Info("listener connection restored")
				break
			}
			b.log.Warn("re-listen failed", "err", err)
		}
	}
}

// discard closes the listening session before returning it, so the pool
// drops it instead of handing a LISTENing connection to someone else.
func (b *Bus) discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Conn().Close(ctx)
	conn.Release()
}

func (b *Bus) receive(ctx context.Context, conn *pgxpool.Conn) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != b.channel {
			continue
		}
		b.dispatch(n.Payload)
	}
}

func (b *Bus) dispatch(payload string) {
	env, err := parseEnvelope(payload)
	if err != nil {
		b.log.Warn("dropping undecodable notification", "err", err)
		return
	}
	b.mu.RLock()
	hs := make([]handler, 0, len(b.handlers[env.Region]))
	for _, h := range b.handlers[env.Region] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(env)
	}
}

func (b *Bus) subscribe(region string, h handler) invalidation.SubscriptionID {
	id := invalidation.SubscriptionID(uuid.NewString())
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[region] == nil {
		b.handlers[region] = make(map[invalidation.SubscriptionID]handler)
	}
	b.handlers[region][id] = h
	return id
}

func (b *Bus) unsubscribe(region string, id invalidation.SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[region]
	if _, ok := hs[id]; !ok {
		return platformerrors.Newf(platformerrors.CodeNotFound, "pgnotify: unknown subscription %q for region %s", id, region)
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(b.handlers, region)
	}
	return nil
}

func (b *Bus) notify(ctx context.Context, payload []byte) error {
	if _, err := b.exec.Exec(ctx, "select pg_notify($1, $2)", b.channel, string(payload)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return platformerrors.Wrap(err, platformerrors.CodeTimeout, "pgnotify: notify")
		}
		return platformerrors.Wrap(err, platformerrors.CodeDatabase, "pgnotify: notify")
	}
	return nil
}

// Close stops the listener. It does not close the pool.
func (b *Bus) Close() error {
	b.once.Do(func() {
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
	})
	return nil
}
