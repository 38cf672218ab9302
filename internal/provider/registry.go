package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the configured providers and tracks which of them are still
// usable. A provider that returns a fatal (configuration) error is quarantined
// for the remainder of the process run and drops out of every provider order.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	quarantined map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		providers:   make(map[string]Provider),
		quarantined: make(map[string]bool),
	}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider is required")
	}

	name := normalizeProviderName(p.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q is already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns a registered provider regardless of quarantine state.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[normalizeProviderName(name)]
	return p, ok
}

// Usable reports whether a provider is registered and not quarantined.
func (r *Registry) Usable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := normalizeProviderName(name)
	_, registered := r.providers[normalized]
	return registered && !r.quarantined[normalized]
}

// Quarantine excludes a provider from provider order for the rest of the run.
func (r *Registry) Quarantine(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized := normalizeProviderName(name)
	if _, registered := r.providers[normalized]; registered {
		r.quarantined[normalized] = true
	}
}

// Names returns all registered provider names, quarantined ones included.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Order resolves the effective provider order for one dispatch: the hint (if
// usable) first, then the default order with duplicates and unusable entries
// removed. Tie-break is the strict order of the resulting list.
func (r *Registry) Order(hint string, defaultOrder []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make([]string, 0, len(defaultOrder)+1)
	seen := make(map[string]bool, len(defaultOrder)+1)

	appendUsable := func(name string) {
		normalized := normalizeProviderName(name)
		if normalized == "" || seen[normalized] {
			return
		}
		if _, registered := r.providers[normalized]; !registered || r.quarantined[normalized] {
			return
		}
		seen[normalized] = true
		order = append(order, normalized)
	}

	appendUsable(hint)
	for _, name := range defaultOrder {
		appendUsable(name)
	}

	return order
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
