// Package archivetest holds the behavioral suite every archive backend must pass.
package archivetest

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gezibash/arc-ledger/internal/archive/physical"
)

// Run exercises the physical.Backend contract against backends built by newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) physical.Backend) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		if err := b.Put(ctx, "events/1.jsonl", []byte("line\n")); err != nil {
			t.Fatal(err)
		}
		got, err := b.Get(ctx, "events/1.jsonl")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "line\n" {
			t.Fatalf("got %q, want %q", got, "line\n")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		if _, err := b.Get(context.Background(), "missing"); !errors.Is(err, physical.ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		if err := b.Put(ctx, "k", []byte("old")); err != nil {
			t.Fatal(err)
		}
		if err := b.Put(ctx, "k", []byte("new")); err != nil {
			t.Fatal(err)
		}
		got, err := b.Get(ctx, "k")
		if err != nil || string(got) != "new" {
			t.Fatalf("Get k = %q, %v", got, err)
		}
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		ok, err := b.Exists(ctx, "x")
		if err != nil || ok {
			t.Fatalf("Exists before put = %v, %v", ok, err)
		}
		if err := b.Put(ctx, "x", []byte("1")); err != nil {
			t.Fatal(err)
		}
		if ok, err = b.Exists(ctx, "x"); err != nil || !ok {
			t.Fatalf("Exists after put = %v, %v", ok, err)
		}
		if err := b.Delete(ctx, "x"); err != nil {
			t.Fatal(err)
		}
		if err := b.Delete(ctx, "x"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
		if ok, err = b.Exists(ctx, "x"); err != nil || ok {
			t.Fatalf("Exists after delete = %v, %v", ok, err)
		}
	})

	t.Run("ListPrefix", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		for _, k := range []string{"events/2.jsonl", "events/1.jsonl", "proposals/1.json"} {
			if err := b.Put(ctx, k, []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		got, err := b.List(ctx, "events/")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"events/1.jsonl", "events/2.jsonl"}
		if !slices.Equal(got, want) {
			t.Fatalf("List = %v, want %v", got, want)
		}

		stats, err := b.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Objects != 3 {
			t.Errorf("Stats.Objects = %d, want 3", stats.Objects)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		b := newBackend(t)
		for _, k := range []string{"", "/abs", "../escape", "a//b", "dir/.hidden"} {
			if err := b.Put(context.Background(), k, []byte("x")); err == nil {
				t.Errorf("Put(%q) succeeded, want error", k)
			}
		}
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Close(); err != nil {
			t.Fatal(err)
		}
		if err := b.Put(context.Background(), "a", nil); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("Put after close: got %v, want ErrClosed", err)
		}
		if _, err := b.List(context.Background(), ""); !errors.Is(err, physical.ErrClosed) {
			t.Fatalf("List after close: got %v, want ErrClosed", err)
		}
	})
}
