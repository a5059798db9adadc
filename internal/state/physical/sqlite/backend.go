// Package sqlite provides a SQLite-backed state storage backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/gezibash/arc-ledger/internal/state/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
	KeyCacheSize   = "cache_size"
)

func init() {
	physical.Register("sqlite", NewFactory, Defaults())
}

// Defaults returns the default configuration for the SQLite backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "~/.arc-ledger/state.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
		KeyCacheSize:   "-64000",
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key    TEXT PRIMARY KEY,
    value  BLOB NOT NULL
) WITHOUT ROWID;
`

// NewFactory opens the database file and creates the kv table.
func NewFactory(ctx context.Context, s storage.Settings) (physical.Backend, error) {
	path, err := s.File(KeyPath)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := s.Int(KeyBusyTimeout, 5000)
	if err != nil {
		return nil, err
	}
	cacheSize, err := s.Int(KeyCacheSize, -64000)
	if err != nil {
		return nil, err
	}
	journalMode := s.String(KeyJournalMode, "wal")

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(%s)&_pragma=busy_timeout(%d)&_pragma=cache_size(%d)",
		path, journalMode, busyTimeout, cacheSize)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, s.Invalid(KeyPath, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, s.Invalid(KeyPath, "failed to initialize schema", err)
	}

	slog.Info("sqlite state store opened", "path", path, "journal_mode", journalMode)
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database whose kv table already exists.
func NewWithDB(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

// Get returns the value stored at key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

// Scan returns every pair whose key starts with prefix, in key order.
func (b *Backend) Scan(ctx context.Context, prefix string) ([]physical.KV, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND substr(key, 1, ?) = ? ORDER BY key`,
		prefix, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite scan: %w", err)
	}
	defer rows.Close()

	var out []physical.KV
	for rows.Next() {
		var kv physical.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		if !strings.HasPrefix(kv.Key, prefix) {
			continue
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite scan: %w", err)
	}
	return out, nil
}

// Commit applies the batch inside a single SQL transaction. Databases
// opened by NewFactory begin it IMMEDIATE, so the condition checks and the
// writes hold the database write lock against other processes.
func (b *Backend) Commit(ctx context.Context, batch *physical.Batch) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite commit: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range batch.Conds() {
		var value []byte
		exists := true
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, c.Key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			exists, err = false, nil
		}
		if err != nil {
			return fmt.Errorf("sqlite commit: check %q: %w", c.Key, err)
		}
		if !c.Holds(value, exists) {
			return fmt.Errorf("sqlite commit: key %q changed: %w", c.Key, physical.ErrConflict)
		}
	}

	for _, op := range batch.Ops() {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, op.Key); err != nil {
				return fmt.Errorf("sqlite commit: delete %q: %w", op.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			op.Key, op.Value,
		); err != nil {
			return fmt.Errorf("sqlite commit: put %q: %w", op.Key, err)
		}
	}
	return tx.Commit()
}

// Stats returns storage statistics.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var keys, sizeBytes int64
	if err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM kv`).Scan(&keys); err != nil {
		return nil, fmt.Errorf("sqlite stats: %w", err)
	}
	err := b.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count, pragma_page_size`).Scan(&sizeBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite stats: %w", err)
	}

	return &physical.Stats{
		Keys:        keys,
		SizeBytes:   sizeBytes,
		BackendType: "sqlite",
	}, nil
}

// Close closes the SQLite database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
