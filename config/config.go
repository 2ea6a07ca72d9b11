// Package config supplies per-region map settings (eviction size, TTL,
// eviction discipline) to region construction.
//
// A Provider is a capability, not a guarantee: minimal or test providers
// report ErrUnsupported and lookups for unknown regions report ErrNotFound.
// Callers branch on those codes and fall back to defaults.
package config

import (
	"fmt"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// DefaultName is the map configuration consulted when neither an exact name
// nor a wildcard pattern matches.
const DefaultName = "default"

// Eviction policy names understood by MapConfig.EvictionPolicy.
const (
	EvictionNone = "NONE"
	EvictionLRU  = "LRU"
	EvictionFIFO = "FIFO"
)

var (
	// ErrUnsupported reports a provider that cannot answer map lookups at all.
	ErrUnsupported = platformerrors.New(platformerrors.CodeNotImplemented, "config: map configuration lookup not supported")
	// ErrNotFound reports that no configuration (not even "default") matches.
	ErrNotFound = platformerrors.New(platformerrors.CodeNotFound, "config: no matching map configuration")
)

// MapConfig is the per-region slice of the distributed map configuration.
type MapConfig struct {
	// Name is an exact region name, a pattern with one '*', or "default".
	Name string `toml:"name" yaml:"name"`
	// EvictionPolicy is NONE, LRU or FIFO (case-insensitive). Empty means LRU
	// when EvictionSize is set.
	EvictionPolicy string `toml:"eviction_policy" yaml:"eviction_policy"`
	// EvictionSize is the maximum entry count; <= 0 means unbounded.
	EvictionSize int `toml:"eviction_size" yaml:"eviction_size"`
	// TimeToLiveSeconds expires entries after a write; <= 0 disables TTL.
	TimeToLiveSeconds int `toml:"time_to_live_seconds" yaml:"time_to_live_seconds"`
}

// Validate checks names, sizes and policy names.
func (m MapConfig) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "config: map name is required")
	}
	if strings.Count(m.Name, "*") > 1 {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: map %q: at most one wildcard allowed", m.Name)
	}
	if m.EvictionSize < 0 {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: map %q: negative eviction_size %d", m.Name, m.EvictionSize)
	}
	if m.TimeToLiveSeconds < 0 {
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: map %q: negative time_to_live_seconds %d", m.Name, m.TimeToLiveSeconds)
	}
	switch strings.ToUpper(m.EvictionPolicy) {
	case "", EvictionNone, EvictionLRU, EvictionFIFO:
		return nil
	default:
		return platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: map %q: unknown eviction_policy %q", m.Name, m.EvictionPolicy)
	}
}

// Provider looks up the map configuration for a region.
type Provider interface {
	FindMapConfig(region string) (MapConfig, error)
}

// Unsupported is a Provider for deployments without a configuration
// source; every lookup reports ErrUnsupported.
type Unsupported struct{}

// FindMapConfig always fails with ErrUnsupported.
func (Unsupported) FindMapConfig(string) (MapConfig, error) { return MapConfig{}, ErrUnsupported }

// IsUnavailable reports whether err means "no settings available" rather
// than a broken configuration.
func IsUnavailable(err error) bool {
	switch platformerrors.GetCode(err) {
	case platformerrors.CodeNotImplemented, platformerrors.CodeNotFound:
		return true
	default:
		return false
	}
}

func notFound(region string) error {
	return platformerrors.WithContext(
		platformerrors.Wrap(ErrNotFound, platformerrors.CodeNotFound, fmt.Sprintf("config: no map configuration for %q", region)),
		"region", region)
}
