package node

import (
	"context"
	"fmt"

	"github.com/gezibash/arc-ledger/internal/config"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/state/physical"

	// Register state backends
	_ "github.com/gezibash/arc-ledger/internal/state/physical/badger"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/memory"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/redis"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/sqlite"
)

// NewStateStore creates a state Store from configuration.
func NewStateStore(ctx context.Context, cfg config.BackendConfig, metrics *observability.Metrics) (*state.Store, error) {
	backend, err := physical.New(ctx, cfg.Backend, cfg.Config, metrics)
	if err != nil {
		return nil, fmt.Errorf("create state backend: %w", err)
	}
	return state.New(backend, metrics), nil
}
