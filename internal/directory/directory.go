// Package directory maps human-readable keys, such as institution codes,
// to ledger ids. A single admin principal recorded at genesis may write
// entries; anyone may read them.
package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/state"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const (
	adminKey    = "dir/admin"
	entryPrefix = "dir/e/"
)

// Entry is one directory mapping.
type Entry struct {
	Key    string `json:"key"`
	Ledger string `json:"ledger"`
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty directory key: %w", ledgererr.ErrInvalidInput)
	}
	if strings.ContainsAny(key, "/\x00") {
		return fmt.Errorf("directory key %q contains a reserved character: %w", key, ledgererr.ErrInvalidInput)
	}
	return nil
}

// SetAdmin records the directory admin.
func SetAdmin(tx *state.Txn, admin access.Principal) error {
	if err := admin.Validate(); err != nil {
		return fmt.Errorf("directory admin: %w", err)
	}
	tx.Put(adminKey, []byte(admin))
	return nil
}

// Admin returns the directory admin.
func Admin(tx *state.Txn) (access.Principal, error) {
	v, ok, err := tx.Get(adminKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("directory admin not configured: %w", ledgererr.ErrNotFound)
	}
	return access.Principal(v), nil
}

func requireAdmin(tx *state.Txn, caller access.Principal) error {
	admin, err := Admin(tx)
	if err != nil {
		return err
	}
	if caller != admin {
		return fmt.Errorf("%s is not the directory admin: %w", caller, ledgererr.ErrUnauthorized)
	}
	return nil
}

// Set points key at ledgerID, which must exist.
func Set(tx *state.Txn, caller access.Principal, key, ledgerID string) error {
	if err := requireAdmin(tx, caller); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := ledger.Open(tx, ledgerID); err != nil {
		return err
	}
	tx.Put(entryPrefix+key, []byte(ledgerID))
	tx.Emit(state.Event{
		Kind:   events.KindDirectoryEntrySet,
		Ledger: ledgerID,
		Fields: map[string]any{events.FieldKey: key},
	})
	return nil
}

// Remove deletes key.
func Remove(tx *state.Txn, caller access.Principal, key string) error {
	if err := requireAdmin(tx, caller); err != nil {
		return err
	}
	id, err := Lookup(tx, key)
	if err != nil {
		return err
	}
	tx.Delete(entryPrefix + key)
	tx.Emit(state.Event{
		Kind:   events.KindDirectoryEntryRemoved,
		Ledger: id,
		Fields: map[string]any{events.FieldKey: key},
	})
	return nil
}

// Lookup returns the ledger id key points at.
func Lookup(tx *state.Txn, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	v, ok, err := tx.Get(entryPrefix + key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("directory key %s: %w", key, ledgererr.ErrNotFound)
	}
	return string(v), nil
}

// Resolve returns ref itself when it names a ledger, otherwise the ledger
// the directory maps it to. Read failures are returned as is.
func Resolve(tx *state.Txn, ref string) (string, error) {
	_, err := ledger.Open(tx, ref)
	switch {
	case err == nil:
		return ref, nil
	case errors.Is(err, ledgererr.ErrNotFound), errors.Is(err, ledgererr.ErrInvalidInput):
		return Lookup(tx, ref)
	default:
		return "", err
	}
}

// Entries returns every mapping in key order.
func Entries(tx *state.Txn) ([]Entry, error) {
	kvs, err := tx.Scan(entryPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, Entry{Key: strings.TrimPrefix(kv.Key, entryPrefix), Ledger: string(kv.Value)})
	}
	return out, nil
}
