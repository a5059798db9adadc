package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gezibash/arc-ledger/internal/archive"
	"github.com/gezibash/arc-ledger/internal/archive/physical"
	"github.com/gezibash/arc-ledger/internal/archive/physical/fs"
	"github.com/gezibash/arc-ledger/internal/clock"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/genesis"
	"github.com/gezibash/arc-ledger/internal/node"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/state/physical/badger"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

func newNode(t *testing.T) *node.Node {
	t.Helper()
	b, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	metrics := observability.NewMetrics()
	n := node.New(state.New(b, metrics), node.Options{
		Clock:   clock.NewManual(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		Metrics: metrics,
	})
	t.Cleanup(func() { _ = n.Close() })

	doc, err := genesis.Load(filepath.Join("..", "genesis", "testdata", "genesis.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := genesis.Apply(ctx, n, doc); err != nil {
		t.Fatal(err)
	}
	if err := n.Approve(ctx, "bank-a", "alice", "swap", 5000); err != nil {
		t.Fatal(err)
	}
	if _, err := n.StartSwap(ctx, "alice", "bank-a", "bank-b", "bob", 2500); err != nil {
		t.Fatal(err)
	}
	return n
}

func newSink(t *testing.T) physical.Backend {
	t.Helper()
	sink, err := physical.New(context.Background(), "fs", map[string]string{fs.KeyPath: t.TempDir()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestExport(t *testing.T) {
	n := newNode(t)
	sink := newSink(t)
	ctx := context.Background()

	m, err := archive.Export(ctx, n, sink, observability.NewMetrics())
	if err != nil {
		t.Fatal(err)
	}

	head, hash, err := n.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.Head != head || m.HeadHash != hash {
		t.Fatalf("manifest head = %d/%s, want %d/%s", m.Head, m.HeadHash, head, hash)
	}
	if m.Events != int(head) {
		t.Errorf("manifest events = %d, want %d", m.Events, head)
	}
	if m.Proposals != 1 {
		t.Errorf("manifest proposals = %d, want 1", m.Proposals)
	}

	data, err := sink.Get(ctx, archive.EventsKey(head))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != int(head) {
		t.Fatalf("exported %d lines, want %d", len(lines), head)
	}
	var last events.Event
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatal(err)
	}
	if last.Kind != events.KindSwapStarted {
		t.Errorf("last event kind = %q, want %q", last.Kind, events.KindSwapStarted)
	}

	data, err = sink.Get(ctx, archive.ProposalsKey(head))
	if err != nil {
		t.Fatal(err)
	}
	var proposals []swap.Proposal
	if err := json.Unmarshal(data, &proposals); err != nil {
		t.Fatal(err)
	}
	if len(proposals) != 1 || proposals[0].Status != swap.StatusPending || proposals[0].Amount != 2500 {
		t.Fatalf("proposals = %+v", proposals)
	}
}

func TestSnapshotsAndVerify(t *testing.T) {
	n := newNode(t)
	sink := newSink(t)
	ctx := context.Background()

	first, err := archive.Export(ctx, n, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.CancelSwap(ctx, "alice", 1, "changed my mind"); err != nil {
		t.Fatal(err)
	}
	second, err := archive.Export(ctx, n, sink, nil)
	if err != nil {
		t.Fatal(err)
	}

	heads, err := archive.Snapshots(ctx, sink)
	if err != nil {
		t.Fatal(err)
	}
	if want := []uint64{first.Head, second.Head}; !slices.Equal(heads, want) {
		t.Fatalf("Snapshots = %v, want %v", heads, want)
	}

	for _, h := range heads {
		count, err := archive.Verify(ctx, sink, h)
		if err != nil {
			t.Fatalf("Verify(%d): %v", h, err)
		}
		if count != h {
			t.Errorf("Verify(%d) = %d events", h, count)
		}
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	n := newNode(t)
	sink := newSink(t)
	ctx := context.Background()

	m, err := archive.Export(ctx, n, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := sink.Get(ctx, m.EventsKey)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"amount":10000`, `"amount":99999`, 1)
	if tampered == string(data) {
		t.Fatal("fixture has no 100.00 transfer to tamper with")
	}
	if err := sink.Put(ctx, m.EventsKey, []byte(tampered)); err != nil {
		t.Fatal(err)
	}

	if _, err := archive.Verify(ctx, sink, m.Head); !errors.Is(err, events.ErrChainBroken) {
		t.Fatalf("got %v, want ErrChainBroken", err)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	sink := newSink(t)
	if _, err := archive.LoadManifest(context.Background(), sink, 7); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
