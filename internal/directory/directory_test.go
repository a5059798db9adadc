package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/state/physical/badger"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

func setup(t *testing.T) *state.Txn {
	t.Helper()
	b, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	s := state.New(b, nil)
	t.Cleanup(func() { _ = s.Close() })
	tx := s.Begin(context.Background(), time.Now())

	if _, err := ledger.Create(tx, ledger.Params{
		ID: "bank-a", Kind: ledger.KindParticipant, Authority: "ops", Admin: "admin",
		Institution: &ledger.Institution{ID: "BANKA", ReserveAccount: "reserve-a"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := SetAdmin(tx, "registry"); err != nil {
		t.Fatal(err)
	}
	return tx
}

func TestSetLookupRemove(t *testing.T) {
	tx := setup(t)

	if err := Set(tx, "registry", "BANKA", "bank-a"); err != nil {
		t.Fatal(err)
	}
	evs := tx.Events()
	last := evs[len(evs)-1]
	if last.Kind != events.KindDirectoryEntrySet || last.Ledger != "bank-a" || last.Fields[events.FieldKey] != "BANKA" {
		t.Fatalf("unexpected event %+v", last)
	}

	got, err := Lookup(tx, "BANKA")
	if err != nil || got != "bank-a" {
		t.Fatalf("Lookup = %q, %v", got, err)
	}
	if id, err := Resolve(tx, "BANKA"); err != nil || id != "bank-a" {
		t.Fatalf("Resolve(BANKA) = %q, %v", id, err)
	}
	if id, err := Resolve(tx, "bank-a"); err != nil || id != "bank-a" {
		t.Fatalf("Resolve(bank-a) = %q, %v", id, err)
	}

	entries, err := Entries(tx)
	if err != nil || len(entries) != 1 || entries[0] != (Entry{Key: "BANKA", Ledger: "bank-a"}) {
		t.Fatalf("Entries = %+v, %v", entries, err)
	}

	if err := Remove(tx, "registry", "BANKA"); err != nil {
		t.Fatal(err)
	}
	if _, err := Lookup(tx, "BANKA"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Fatalf("Lookup after remove: got %v", err)
	}
	if err := Remove(tx, "registry", "BANKA"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Fatalf("second remove: got %v", err)
	}
}

func TestOnlyAdminWrites(t *testing.T) {
	tx := setup(t)
	if err := Set(tx, "mallory", "BANKA", "bank-a"); !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("Set by stranger: got %v", err)
	}
	if err := Remove(tx, "mallory", "BANKA"); !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("Remove by stranger: got %v", err)
	}
}

func TestSetValidation(t *testing.T) {
	tx := setup(t)
	if err := Set(tx, "registry", "a/b", "bank-a"); !errors.Is(err, ledgererr.ErrInvalidInput) {
		t.Fatalf("bad key: got %v", err)
	}
	if err := Set(tx, "registry", "BANKZ", "bank-z"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Fatalf("unknown ledger: got %v", err)
	}
}

func TestResolveReturnsReadErrors(t *testing.T) {
	b, err := badger.NewInMemory()
	if err != nil {
		t.Fatal(err)
	}
	s := state.New(b, nil)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	tx := s.Begin(context.Background(), time.Now())
	tx.Put(entryPrefix+"BANKA", []byte("bank-a"))

	if id, err := Resolve(tx, "BANKA"); !errors.Is(err, ledgererr.ErrClosed) {
		t.Fatalf("Resolve on closed store = %q, %v, want ErrClosed", id, err)
	}
}

func TestResolveKeyWithSpace(t *testing.T) {
	tx := setup(t)
	if err := Set(tx, "registry", "Bank A", "bank-a"); err != nil {
		t.Fatal(err)
	}
	if id, err := Resolve(tx, "Bank A"); err != nil || id != "bank-a" {
		t.Fatalf("Resolve(Bank A) = %q, %v", id, err)
	}
	if _, err := Resolve(tx, "BANKZ"); !errors.Is(err, ledgererr.ErrNotFound) {
		t.Fatalf("Resolve(BANKZ): got %v", err)
	}
}
