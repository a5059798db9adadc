package badger

import (
	"context"
	"testing"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/state/physical/physicaltest"
	"github.com/gezibash/arc-ledger/internal/storage"
)

func open(ctx context.Context, config map[string]string) (physical.Backend, error) {
	return NewFactory(ctx, storage.NewSettings("badger", Defaults(), config))
}

func TestInMemoryBackend(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		b, err := NewInMemory()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestOnDiskBackend(t *testing.T) {
	physicaltest.Run(t, func(t *testing.T) physical.Backend {
		b, err := open(context.Background(), map[string]string{
			KeyPath:       t.TempDir(),
			KeySyncWrites: "false",
		})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := map[string]string{KeyPath: dir}

	b, err := open(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	var batch physical.Batch
	batch.Put("ledger/cbdc", []byte(`{"id":"cbdc"}`))
	if err := b.Commit(ctx, &batch); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = open(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	got, err := b.Get(ctx, "ledger/cbdc")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"id":"cbdc"}` {
		t.Fatalf("got %q", got)
	}
}

func TestNewFactoryBadConfig(t *testing.T) {
	if _, err := open(context.Background(), map[string]string{KeyInMemory: "maybe"}); err == nil {
		t.Fatal("expected error for invalid in_memory")
	}
	if _, err := open(context.Background(), map[string]string{KeyPath: ""}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
