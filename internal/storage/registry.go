package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gezibash/arc-ledger/internal/observability"
)

// Factory opens a backend from its settings.
type Factory[B any] func(ctx context.Context, s Settings) (B, error)

type registration[B any] struct {
	factory  Factory[B]
	defaults map[string]string
}

// Registry maps backend names to factories for one kind of store.
// Backends register themselves from init.
type Registry[B any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]registration[B]
}

// NewRegistry returns an empty registry; kind names the store in errors,
// logs and operation names ("state", "archive").
func NewRegistry[B any](kind string) *Registry[B] {
	return &Registry[B]{kind: kind, entries: make(map[string]registration[B])}
}

// Register adds a backend. It panics if name is taken.
func (r *Registry[B]) Register(name string, factory Factory[B], defaults map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("%s backend %q already registered", r.kind, name))
	}
	r.entries[name] = registration[B]{factory: factory, defaults: defaults}
}

// Names returns the registered backend names, sorted.
func (r *Registry[B]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Defaults returns a copy of a backend's defaults, or nil if unknown.
func (r *Registry[B]) Defaults(name string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return maps.Clone(e.defaults)
	}
	return nil
}

// Open builds the named backend with config laid over its defaults.
func (r *Registry[B]) Open(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (b B, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, r.kind+".physical.new")
	defer func() { op.End(err) }()

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return b, &ConfigError{
			Backend: name,
			Message: fmt.Sprintf("unknown %s backend (available: %v)", r.kind, r.Names()),
		}
	}

	b, err = e.factory(ctx, NewSettings(name, e.defaults, config))
	if err != nil {
		return b, err
	}
	op.Logger().InfoContext(ctx, r.kind+" backend opened", "backend", name)
	return b, nil
}
