// Package memory registers the "memory" state backend: BadgerDB in
// in-memory mode, for tests and dry runs. Nothing survives Close.
package memory

import (
	"context"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/state/physical/badger"
	"github.com/gezibash/arc-ledger/internal/storage"
)

func init() {
	physical.Register("memory", func(context.Context, storage.Settings) (physical.Backend, error) {
		return badger.NewInMemory()
	}, nil)
}
