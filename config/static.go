package config

import (
	"sort"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// Static is an immutable in-memory Provider. Lookups try the exact region
// name, then the most specific wildcard pattern, then "default".
type Static struct {
	exact    map[string]MapConfig
	patterns []MapConfig // most specific first
}

var _ Provider = (*Static)(nil)

// NewStatic validates maps and builds a Static provider. Duplicate names
// are rejected.
func NewStatic(maps ...MapConfig) (*Static, error) {
	s := &Static{exact: make(map[string]MapConfig, len(maps))}
	seen := make(map[string]struct{}, len(maps))
	for _, m := range maps {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[m.Name]; dup {
			return nil, platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: duplicate map %q", m.Name)
		}
		seen[m.Name] = struct{}{}
		if strings.Contains(m.Name, "*") {
			s.patterns = append(s.patterns, m)
			continue
		}
		s.exact[m.Name] = m
	}
	// Longer literal parts are more specific; ties keep name order so the
	// choice is deterministic.
	sort.SliceStable(s.patterns, func(i, j int) bool {
		li, lj := len(s.patterns[i].Name), len(s.patterns[j].Name)
		if li != lj {
			return li > lj
		}
		return s.patterns[i].Name < s.patterns[j].Name
	})
	return s, nil
}

// FindMapConfig implements Provider. The returned config carries the
// matched entry's Name.
func (s *Static) FindMapConfig(region string) (MapConfig, error) {
	if m, ok := s.exact[region]; ok {
		return m, nil
	}
	for _, p := range s.patterns {
		if matchWildcard(p.Name, region) {
			return p, nil
		}
	}
	if m, ok := s.exact[DefaultName]; ok {
		return m, nil
	}
	return MapConfig{}, notFound(region)
}

// Names lists every configured map name, sorted.
func (s *Static) Names() []string {
	out := make([]string, 0, len(s.exact)+len(s.patterns))
	for n := range s.exact {
		out = append(out, n)
	}
	for _, p := range s.patterns {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

func matchWildcard(pattern, name string) bool {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return pattern == name
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return len(name) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(name, prefix) &&
		strings.HasSuffix(name, suffix)
}
