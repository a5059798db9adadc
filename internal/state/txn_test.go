package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/state/physical/badger"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	b, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	s := New(b, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTxnReadsOwnWrites(t *testing.T) {
	s := newStore(t)
	tx := s.Begin(context.Background(), time.Unix(100, 0))

	if _, ok, err := tx.Get("k"); err != nil || ok {
		t.Fatalf("Get before put: ok=%v err=%v", ok, err)
	}
	tx.Put("k", []byte("v"))
	got, ok, err := tx.Get("k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get after put = %q, %v, %v", got, ok, err)
	}
	tx.Delete("k")
	if _, ok, _ := tx.Get("k"); ok {
		t.Fatal("Get after delete should miss")
	}
}

func TestUncommittedTxnLeavesNoTrace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tx := s.Begin(ctx, time.Now())
	tx.PutInt64("balance/alice", 500)
	tx.Emit(Event{Kind: "Transfer"})

	if _, err := s.Get(ctx, "balance/alice"); !errors.Is(err, physical.ErrNotFound) {
		t.Fatalf("uncommitted write visible: %v", err)
	}

	next := s.Begin(ctx, time.Now())
	if n, err := next.GetInt64("balance/alice"); err != nil || n != 0 {
		t.Fatalf("new txn sees %d, %v", n, err)
	}
	if len(next.Events()) != 0 {
		t.Fatal("events leaked across transactions")
	}
}

func TestCommitAppliesWriteSet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seed := s.Begin(ctx, time.Now())
	seed.Put("gone", []byte("x"))
	if err := s.Commit(seed); err != nil {
		t.Fatal(err)
	}

	tx := s.Begin(ctx, time.Now())
	tx.PutInt64("n", 1)
	tx.PutInt64("n", 2)
	tx.Delete("gone")
	if got := tx.Batch().Len(); got != 2 {
		t.Fatalf("batch has %d ops, want 2 (one per key)", got)
	}
	if err := s.Commit(tx); err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, "n")
	if err != nil || string(v) != "2" {
		t.Fatalf("n = %q, %v", v, err)
	}
	if _, err := s.Get(ctx, "gone"); !errors.Is(err, physical.ErrNotFound) {
		t.Fatalf("gone still present: %v", err)
	}

	if err := s.Commit(tx); !errors.Is(err, ErrTxnDone) {
		t.Fatalf("second commit: got %v, want ErrTxnDone", err)
	}
}

func TestPutInt64ZeroDeletes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	tx := s.Begin(ctx, time.Now())
	tx.PutInt64("n", 7)
	_ = s.Commit(tx)

	tx = s.Begin(ctx, time.Now())
	tx.PutInt64("n", 0)
	_ = s.Commit(tx)

	if _, err := s.Get(ctx, "n"); !errors.Is(err, physical.ErrNotFound) {
		t.Fatalf("zero value should delete key: %v", err)
	}
}

func TestScanMergesOverlay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	seed := s.Begin(ctx, time.Now())
	seed.Put("p/a", []byte("1"))
	seed.Put("p/b", []byte("2"))
	seed.Put("q/z", []byte("9"))
	if err := s.Commit(seed); err != nil {
		t.Fatal(err)
	}

	tx := s.Begin(ctx, time.Now())
	tx.Delete("p/a")
	tx.Put("p/b", []byte("20"))
	tx.Put("p/c", []byte("3"))

	kvs, err := tx.Scan("p/")
	if err != nil {
		t.Fatal(err)
	}
	want := []physical.KV{{Key: "p/b", Value: []byte("20")}, {Key: "p/c", Value: []byte("3")}}
	if len(kvs) != len(want) {
		t.Fatalf("Scan = %+v", kvs)
	}
	for i := range want {
		if kvs[i].Key != want[i].Key || string(kvs[i].Value) != string(want[i].Value) {
			t.Errorf("Scan[%d] = %s=%s, want %s=%s", i, kvs[i].Key, kvs[i].Value, want[i].Key, want[i].Value)
		}
	}
}

func TestJSONRoundTripAndDecodeError(t *testing.T) {
	s := newStore(t)
	tx := s.Begin(context.Background(), time.Now())

	type meta struct {
		ID     string `json:"id"`
		Paused bool   `json:"paused"`
	}
	if err := tx.PutJSON("m", meta{ID: "cbdc", Paused: true}); err != nil {
		t.Fatal(err)
	}
	var got meta
	ok, err := tx.GetJSON("m", &got)
	if err != nil || !ok || got.ID != "cbdc" || !got.Paused {
		t.Fatalf("GetJSON = %+v, %v, %v", got, ok, err)
	}

	tx.Put("bad", []byte("{"))
	if _, err := tx.GetJSON("bad", &got); err == nil {
		t.Fatal("expected decode error")
	}
	tx.Put("nan", []byte("x"))
	if _, err := tx.GetInt64("nan"); err == nil {
		t.Fatal("expected integer decode error")
	}
}

func TestNowIsUTC(t *testing.T) {
	s := newStore(t)
	loc := time.FixedZone("X", 3600)
	tx := s.Begin(context.Background(), time.Date(2026, 1, 2, 3, 4, 5, 0, loc))
	if tx.Now().Location() != time.UTC {
		t.Fatalf("Now() location = %v", tx.Now().Location())
	}
}

func TestClosedStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tx := s.Begin(ctx, time.Now())
	tx.Put("k", []byte("v"))

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(tx); !errors.Is(err, ledgererr.ErrClosed) {
		t.Fatalf("Commit on closed store: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ledgererr.ErrClosed) {
		t.Fatalf("Ping on closed store: %v", err)
	}
}

func TestExpectedValueGuardsCommit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Unix(100, 0)

	guard, err := s.Watch(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if guard.Exists {
		t.Fatalf("Watch on missing key = %+v", guard)
	}

	first := s.Begin(ctx, now)
	first.Expect(guard)
	first.PutInt64("counter", 1)
	second := s.Begin(ctx, now)
	second.Expect(guard)
	second.PutInt64("counter", 1)
	second.Put("spent", []byte("twice"))

	if err := s.Commit(first); err != nil {
		t.Fatal(err)
	}
	err = s.Commit(second)
	if !errors.Is(err, ledgererr.ErrConflict) || !errors.Is(err, physical.ErrConflict) {
		t.Fatalf("stale commit: got %v, want ErrConflict", err)
	}
	if _, err := s.Get(ctx, "spent"); !errors.Is(err, physical.ErrNotFound) {
		t.Fatalf("stale write landed: %v", err)
	}

	guard, err = s.Watch(ctx, "counter")
	if err != nil {
		t.Fatal(err)
	}
	if !guard.Exists || string(guard.Value) != "1" {
		t.Fatalf("Watch = %+v", guard)
	}
}
