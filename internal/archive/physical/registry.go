package physical

import (
	"context"

	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/storage"
)

// Factory opens an archive backend from its settings.
type Factory = storage.Factory[Backend]

var registry = storage.NewRegistry[Backend]("archive")

// Register makes a backend available to New. Backends call it from init.
func Register(name string, factory Factory, defaults map[string]string) {
	registry.Register(name, factory, defaults)
}

// Backends returns the names of the registered archive backends.
func Backends() []string { return registry.Names() }

// New opens the named archive backend with config laid over its defaults.
func New(ctx context.Context, name string, config map[string]string, metrics *observability.Metrics) (Backend, error) {
	return registry.Open(ctx, name, config, metrics)
}
