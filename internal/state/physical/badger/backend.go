// Package badger provides a BadgerDB-backed state storage backend.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	KeyPath             = "path"
	KeySyncWrites       = "sync_writes"
	KeyValueLogFileSize = "value_log_file_size"
	KeyMemTableSize     = "mem_table_size"
	KeyInMemory         = "in_memory"
)

func init() {
	physical.Register("badger", NewFactory, Defaults())
}

// Defaults returns the default configuration for the BadgerDB backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:             "~/.arc-ledger/state",
		KeySyncWrites:       "true",
		KeyValueLogFileSize: strconv.FormatInt(256<<20, 10),
		KeyMemTableSize:     strconv.FormatInt(64<<20, 10),
		KeyInMemory:         "false",
	}
}

// NewFactory opens an on-disk BadgerDB, or an in-memory one when in_memory
// is set.
func NewFactory(_ context.Context, s storage.Settings) (physical.Backend, error) {
	inMemory, err := s.Bool(KeyInMemory, false)
	if err != nil {
		return nil, err
	}
	if inMemory {
		return NewInMemory()
	}

	path, err := s.Dir(KeyPath, 0o700)
	if err != nil {
		return nil, err
	}
	syncWrites, err := s.Bool(KeySyncWrites, true)
	if err != nil {
		return nil, err
	}
	valueLogFileSize, err := s.Int64(KeyValueLogFileSize, 256<<20)
	if err != nil {
		return nil, err
	}
	memTableSize, err := s.Int64(KeyMemTableSize, 64<<20)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithSyncWrites(syncWrites)
	if valueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(valueLogFileSize)
	}
	if memTableSize > 0 {
		opts = opts.WithMemTableSize(memTableSize)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, s.Invalid(KeyPath, "failed to open database", err)
	}

	slog.Info("badger state store opened", "path", path, "sync_writes", syncWrites)
	return NewWithDB(db), nil
}

// NewInMemory opens a BadgerDB instance that lives only in memory.
func NewInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.ConfigError{Backend: "badger", Field: KeyInMemory, Message: "failed to open in-memory database", Cause: err}
	}

	slog.Debug("badger state store opened in memory")
	return NewWithDB(db), nil
}

// Backend is a BadgerDB implementation of physical.Backend.
type Backend struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewWithDB creates a new backend with an existing BadgerDB instance.
func NewWithDB(db *badger.DB) *Backend {
	return &Backend{db: db}
}

// Get returns the value stored at key.
func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return physical.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil && !errors.Is(err, physical.ErrNotFound) {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return value, err
}

// Scan returns every pair whose key starts with prefix, in key order.
func (b *Backend) Scan(_ context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var out []physical.KV
	p := []byte(prefix)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, physical.KV{Key: string(item.KeyCopy(nil)), Value: v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger scan: %w", err)
	}
	return out, nil
}

// Commit applies the batch inside a single badger transaction. Conditions
// are read inside the same transaction, so a concurrent writer of a checked
// key makes badger abort it.
func (b *Backend) Commit(_ context.Context, batch *physical.Batch) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		for _, c := range batch.Conds() {
			var (
				value  []byte
				exists = true
			)
			item, err := txn.Get([]byte(c.Key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				exists = false
			case err != nil:
				return err
			default:
				if value, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}
			if !c.Holds(value, exists) {
				return fmt.Errorf("key %q changed: %w", c.Key, physical.ErrConflict)
			}
		}
		for _, op := range batch.Ops() {
			var err error
			if op.Delete {
				err = txn.Delete([]byte(op.Key))
			} else {
				err = txn.Set([]byte(op.Key), op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		err = fmt.Errorf("%w: %w", physical.ErrConflict, err)
	}
	if err != nil {
		return fmt.Errorf("badger commit: %w", err)
	}
	return nil
}

// Stats returns storage statistics.
func (b *Backend) Stats(_ context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var keys int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger stats: %w", err)
	}

	lsm, vlog := b.db.Size()
	return &physical.Stats{
		Keys:        keys,
		SizeBytes:   lsm + vlog,
		BackendType: "badger",
	}, nil
}

// RunGC triggers value log garbage collection.
func (b *Backend) RunGC(discardRatio float64) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	for {
		if err := b.db.RunValueLogGC(discardRatio); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				return nil
			}
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
