package region

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/regioncache/internal/logging"
)

var (
	// ErrDuplicateRegion is returned when a region name is registered twice.
	ErrDuplicateRegion = platformerrors.New(platformerrors.CodeAlreadyExists, "region: duplicate region name")
	// ErrManagerClosed is returned by registrations after Close.
	ErrManagerClosed = platformerrors.New(platformerrors.CodeUnavailable, "region: manager closed")
)

// Region is what a Manager needs from a cache, whatever its key and value
// types.
type Region interface {
	Name() string
	Close(ctx context.Context) error
}

// Manager owns the regions of a process and tears them down together.
type Manager struct {
	mu      sync.Mutex
	regions map[string]Region
	closed  bool
	log     *slog.Logger
}

// NewManager returns an empty manager. A nil logger discards.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		regions: make(map[string]Region),
		log:     logging.OrDiscard(logger),
	}
}

// Register builds region name with opts and adds it to m. When opts has no
// logger, the manager's is used.
func Register[K comparable, V any](m *Manager, name string, opts Options[K, V]) (*Cache[K, V], error) {
	if err := m.reserve(name); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = m.log
	}
	c, err := New(name, opts)
	if err != nil {
		m.release(name)
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = c.Close(context.Background())
		delete(m.regions, name)
		return nil, ErrManagerClosed
	}
	m.regions[name] = c
	return c, nil
}

// Add registers an already built region.
func (m *Manager) Add(r Region) error {
	if err := m.reserve(r.Name()); err != nil {
		return err
	}
	m.mu.Lock()
	m.regions[r.Name()] = r
	m.mu.Unlock()
	return nil
}

// reserve claims name with a nil placeholder so concurrent registrations
// of one name cannot both build a region.
func (m *Manager) reserve(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if _, ok := m.regions[name]; ok {
		return platformerrors.Wrap(ErrDuplicateRegion, platformerrors.CodeAlreadyExists, "region: "+strconv.Quote(name))
	}
	m.regions[name] = nil
	return nil
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	delete(m.regions, name)
	m.mu.Unlock()
}

// Lookup returns the region called name.
func (m *Manager) Lookup(name string) (Region, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[name]
	return r, ok && r != nil
}

// Names returns the registered region names, sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.regions))
	for name, r := range m.regions {
		if r != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Close closes every region, unsubscribing their listeners, and refuses
// further registrations. Errors from individual regions are joined.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	regions := make([]Region, 0, len(m.regions))
	for _, r := range m.regions {
		if r != nil {
			regions = append(regions, r)
		}
	}
	m.regions = make(map[string]Region)
	m.mu.Unlock()

	var errs []error
	for _, r := range regions {
		if err := r.Close(ctx); err != nil {
			m.log.Warn("closing region failed", "region", r.Name(), "err", err)
			errs = append(errs, platformerrors.WithContext(err, "region", r.Name()))
		}
	}
	return errors.Join(errs...)
}
