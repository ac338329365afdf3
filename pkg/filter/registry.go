package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Factory creates a [Filter] from its YAML-encoded options.
// The options are nil when the filter is configured by name only.
type Factory func(options []byte) (Filter, error)

// Registry maps filter names to their factories. Names are case-insensitive.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new, empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[normalizeName(name)] = f
}

// Names returns the sorted list of registered filter names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.factories))
}

// New creates the filter registered under name.
func (r *Registry) New(name string, options []byte) (Filter, error) {
	key := normalizeName(name)

	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		if suggestion := r.suggest(key); suggestion != "" {
			return nil, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownFilter, name, suggestion)
		}

		return nil, fmt.Errorf("%w %q", ErrUnknownFilter, name)
	}

	flt, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	return flt, nil
}

// NewFromSpec creates the filter described by s.
func (r *Registry) NewFromSpec(s *Spec) (Filter, error) {
	return r.New(s.Name, s.Options)
}

func (r *Registry) suggest(name string) string {
	names := r.Names()

	matches := fuzzy.Find(name, names)
	if len(matches) > 0 {
		return matches[0].Str
	}

	// Also try the other way around, for names with extra characters.
	for _, candidate := range names {
		if len(fuzzy.Find(candidate, []string{name})) > 0 {
			return candidate
		}
	}

	return ""
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
