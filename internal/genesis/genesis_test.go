package genesis

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/clock"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/node"
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
	n := node.New(state.New(b, nil), node.Options{
		Clock: clock.NewManual(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)),
	})
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestLoadAndApply(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "genesis.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	n := newNode(t)
	ctx := context.Background()
	if err := Apply(ctx, n, doc); err != nil {
		t.Fatal(err)
	}

	metas, err := n.Ledgers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("got %d ledgers, want 3", len(metas))
	}

	balances := []struct {
		ledger string
		who    access.Principal
		want   int64
	}{
		{"cbdc", "reserve-bank-a", 100000},
		{"cbdc", "reserve-bank-b", 100000},
		{"bank-a", "alice", 10000},
		{"BANKB", "bob", 0},
	}
	for _, b := range balances {
		acct, err := n.Account(ctx, b.ledger, b.who)
		if err != nil {
			t.Fatal(err)
		}
		if int64(acct.Balance) != b.want {
			t.Errorf("%s on %s = %d, want %d", b.who, b.ledger, acct.Balance, b.want)
		}
	}

	checks := []struct {
		ledger string
		role   access.Role
		who    access.Principal
	}{
		{"cbdc", access.Mover, "swap"},
		{"bank-a", access.Minter, "swap"},
		{"bank-b", access.Minter, "swap"},
		{"cbdc", access.Admin, "central-bank-admin"},
		{"bank-a", access.Freezer, "bank-a-ops"},
	}
	for _, c := range checks {
		ok, err := n.HasRole(ctx, c.ledger, c.role, c.who)
		if err != nil || !ok {
			t.Errorf("%s lacks %s on %s (%v)", c.who, c.role, c.ledger, err)
		}
	}

	if ok, _ := n.VerifyAccount(ctx, "cbdc", "reserve-bank-b"); !ok {
		t.Error("reserve account not enabled on cbdc")
	}
	if id, err := n.Lookup(ctx, "BANKA"); err != nil || id != "bank-a" {
		t.Errorf("Lookup(BANKA) = %q, %v", id, err)
	}

	count, err := n.VerifyEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("genesis emitted no events")
	}
}

func TestApplyTwiceFails(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "genesis.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	n := newNode(t)
	ctx := context.Background()
	if err := Apply(ctx, n, doc); err != nil {
		t.Fatal(err)
	}
	seq, _, _ := n.Head(ctx)

	if err := Apply(ctx, n, doc); !errors.Is(err, ledgererr.ErrAlreadyExists) {
		t.Fatalf("second genesis: got %v, want ErrAlreadyExists", err)
	}
	if after, _, _ := n.Head(ctx); after != seq {
		t.Fatalf("failed genesis appended events: %d -> %d", seq, after)
	}
}

func TestApplyIsAtomic(t *testing.T) {
	doc, err := Parse([]byte(`
cbdc: {id: cbdc, authority: cb, admin: cb-admin}
participants:
  - {id: bank-a, institution: BANKA, reserve_account: reserve-a, authority: ops, admin: admin}
balances:
  bank-a: {carol: "5.00"}
`))
	if err != nil {
		t.Fatal(err)
	}
	n := newNode(t)
	ctx := context.Background()

	if err := Apply(ctx, n, doc); !errors.Is(err, ledgererr.ErrNotAuthorized) {
		t.Fatalf("mint to disabled holder: got %v, want ErrNotAuthorized", err)
	}
	metas, err := n.Ledgers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 0 {
		t.Fatalf("failed genesis left %d ledgers", len(metas))
	}
	if seq, _, _ := n.Head(ctx); seq != 0 {
		t.Fatalf("failed genesis left %d events", seq)
	}
}

func TestParseDefaults(t *testing.T) {
	doc, err := Parse([]byte(`cbdc: {id: cbdc, authority: cb, admin: cb-admin}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Coordinator != string(swap.DefaultPrincipal) {
		t.Errorf("Coordinator = %q", doc.Coordinator)
	}
	if doc.DirectoryAdmin != "cb-admin" {
		t.Errorf("DirectoryAdmin = %q", doc.DirectoryAdmin)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "cbdc: {id: cbdc, authority: cb, admin: a}\nbogus: 1\n"},
		{"no cbdc", "participants: []\n"},
		{"duplicate id", `
cbdc: {id: cbdc, authority: cb, admin: a}
participants:
  - {id: cbdc, institution: X, reserve_account: r, authority: o, admin: a}
`},
		{"duplicate institution", `
cbdc: {id: cbdc, authority: cb, admin: a}
participants:
  - {id: bank-a, institution: X, reserve_account: r, authority: o, admin: a}
  - {id: bank-b, institution: X, reserve_account: s, authority: o, admin: a}
`},
		{"institution names another ledger", `
cbdc: {id: cbdc, authority: cb, admin: a}
participants:
  - {id: bank-a, institution: bank-b, reserve_account: r, authority: o, admin: a}
  - {id: bank-b, institution: BANKB, reserve_account: s, authority: o, admin: a}
`},
		{"institution names the cbdc ledger", `
cbdc: {id: cbdc, authority: cb, admin: a}
participants:
  - {id: bank-a, institution: cbdc, reserve_account: r, authority: o, admin: a}
`},
		{"balances for unknown ledger", "cbdc: {id: cbdc, authority: cb, admin: a}\nbalances: {bank-z: {x: \"1\"}}\n"},
		{"enabled for unknown ledger", "cbdc: {id: cbdc, authority: cb, admin: a}\nenabled: {bank-z: [x]}\n"},
		{"not yaml", "cbdc: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); !errors.Is(err, ledgererr.ErrInvalidInput) {
				t.Fatalf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBadAmountRejected(t *testing.T) {
	doc, err := Parse([]byte(`
cbdc: {id: cbdc, authority: cb, admin: cb-admin}
enabled: {cbdc: [x]}
balances: {cbdc: {x: "1.005"}}
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(context.Background(), newNode(t), doc); !errors.Is(err, ledgererr.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestGenesisEventsPublished(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "genesis.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	n := newNode(t)
	f, err := events.Compile(`kind == "LedgerCreated"`)
	if err != nil {
		t.Fatal(err)
	}
	sub := n.Subscribe(f, 16)
	defer sub.Cancel()

	if err := Apply(context.Background(), n, doc); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Kind != events.KindLedgerCreated {
				t.Fatalf("unexpected kind %s", ev.Kind)
			}
		default:
			t.Fatalf("got %d LedgerCreated events, want 3", i)
		}
	}
}
