package physical_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/state/physical"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/badger"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/memory"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/redis"
	_ "github.com/gezibash/arc-ledger/internal/state/physical/sqlite"
	"github.com/gezibash/arc-ledger/internal/storage"
)

func TestRegisteredBackends(t *testing.T) {
	got := physical.Backends()
	for _, name := range []string{"badger", "memory", "redis", "sqlite"} {
		if !slices.Contains(got, name) {
			t.Errorf("backend %q not registered (have %v)", name, got)
		}
	}
	if physical.Defaults("sqlite")["journal_mode"] != "wal" {
		t.Error("sqlite defaults missing journal_mode")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := physical.New(context.Background(), "etcd", nil, observability.NewMetrics())
	var ce *storage.ConfigError
	if !errors.As(err, &ce) || ce.Backend != "etcd" {
		t.Fatalf("got %v, want ConfigError naming etcd", err)
	}
}

func TestNewMemoryBackend(t *testing.T) {
	b, err := physical.New(context.Background(), "memory", nil, observability.NewMetrics())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	stats, err := b.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.BackendType != "badger" {
		t.Errorf("BackendType = %q, want badger", stats.BackendType)
	}
}
