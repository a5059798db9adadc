// Package physicaltest holds the behavioral suite every state backend must pass.
package physicaltest

import (
	"context"
	"errors"
	"testing"

	"github.com/gezibash/arc-ledger/internal/state/physical"
)

// Run exercises the physical.Backend contract against backends built by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) physical.Backend) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(context.Background(), "missing")
		if !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("CommitThenGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var batch physical.Batch
		batch.Put("a", []byte("1"))
		batch.Put("b", []byte("2"))
		if err := b.Commit(ctx, &batch); err != nil {
			t.Fatal(err)
		}

		got, err := b.Get(ctx, "b")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "2" {
			t.Fatalf("got %q, want %q", got, "2")
		}
	})

	t.Run("OverwriteAndDelete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var first physical.Batch
		first.Put("k", []byte("old"))
		first.Put("gone", []byte("x"))
		if err := b.Commit(ctx, &first); err != nil {
			t.Fatal(err)
		}

		var second physical.Batch
		second.Put("k", []byte("new"))
		second.Delete("gone")
		if err := b.Commit(ctx, &second); err != nil {
			t.Fatal(err)
		}

		got, err := b.Get(ctx, "k")
		if err != nil || string(got) != "new" {
			t.Fatalf("Get k = %q, %v", got, err)
		}
		if _, err := b.Get(ctx, "gone"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("Get gone: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ScanPrefixOrdered", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var batch physical.Batch
		batch.Put("l/x/acct/carol", []byte("3"))
		batch.Put("l/x/acct/alice", []byte("1"))
		batch.Put("l/x/acct/bob", []byte("2"))
		batch.Put("l/x/allow/alice/bob", []byte("9"))
		batch.Put("l/y/acct/dave", []byte("4"))
		if err := b.Commit(ctx, &batch); err != nil {
			t.Fatal(err)
		}

		kvs, err := b.Scan(ctx, "l/x/acct/")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"l/x/acct/alice", "l/x/acct/bob", "l/x/acct/carol"}
		if len(kvs) != len(want) {
			t.Fatalf("Scan returned %d pairs, want %d", len(kvs), len(want))
		}
		for i, kv := range kvs {
			if kv.Key != want[i] {
				t.Errorf("Scan[%d] = %q, want %q", i, kv.Key, want[i])
			}
		}
	})

	t.Run("ConditionalCommit", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var seed physical.Batch
		seed.Put("seq", []byte("1"))
		if err := b.Commit(ctx, &seed); err != nil {
			t.Fatal(err)
		}

		var ok physical.Batch
		ok.Expect(physical.Cond{Key: "seq", Value: []byte("1"), Exists: true})
		ok.Expect(physical.Cond{Key: "fresh"})
		ok.Put("seq", []byte("2"))
		if err := b.Commit(ctx, &ok); err != nil {
			t.Fatalf("commit with holding conditions: %v", err)
		}

		var stale physical.Batch
		stale.Expect(physical.Cond{Key: "seq", Value: []byte("1"), Exists: true})
		stale.Put("seq", []byte("9"))
		stale.Put("side", []byte("x"))
		if err := b.Commit(ctx, &stale); !errors.Is(err, physical.ErrConflict) {
			t.Fatalf("stale commit: got %v, want ErrConflict", err)
		}

		var absent physical.Batch
		absent.Expect(physical.Cond{Key: "seq"})
		absent.Put("side", []byte("y"))
		if err := b.Commit(ctx, &absent); !errors.Is(err, physical.ErrConflict) {
			t.Fatalf("absent-key commit: got %v, want ErrConflict", err)
		}

		got, err := b.Get(ctx, "seq")
		if err != nil || string(got) != "2" {
			t.Fatalf("Get seq = %q, %v", got, err)
		}
		if _, err := b.Get(ctx, "side"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("Get side: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		var batch physical.Batch
		batch.Put("one", []byte("1"))
		batch.Put("two", []byte("2"))
		if err := b.Commit(ctx, &batch); err != nil {
			t.Fatal(err)
		}

		stats, err := b.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Keys != 2 {
			t.Errorf("Stats.Keys = %d, want 2", stats.Keys)
		}
		if stats.BackendType == "" {
			t.Error("Stats.BackendType is empty")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Close(); err != nil {
			t.Fatal(err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		if _, err := b.Get(context.Background(), "a"); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("Get after close: got %v, want ErrClosed", err)
		}
		if err := b.Commit(context.Background(), &physical.Batch{}); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("Commit after close: got %v, want ErrClosed", err)
		}
	})
}
