// Package state provides the transactional key/value layer every ledger
// operation runs against.
//
// A Txn buffers writes and emitted events in memory. Reads see the
// transaction's own writes. Nothing reaches the backend until Store.Commit
// applies the whole write set as one physical batch, so a transaction that
// is dropped leaves no trace.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/state/physical"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// ErrTxnDone is returned when a committed or discarded transaction is reused.
var ErrTxnDone = errors.New("transaction already finished")

// Store wraps a physical backend with transactional access.
type Store struct {
	backend physical.Backend
	metrics *observability.Metrics
	closed  atomic.Bool
}

// New creates a store over backend. metrics may be nil.
func New(backend physical.Backend, metrics *observability.Metrics) *Store {
	return &Store{backend: backend, metrics: metrics}
}

// Backend returns the underlying physical backend.
func (s *Store) Backend() physical.Backend {
	return s.backend
}

// Begin starts a transaction whose logical time is now.
func (s *Store) Begin(ctx context.Context, now time.Time) *Txn {
	return &Txn{
		ctx:    ctx,
		store:  s,
		now:    now.UTC(),
		writes: make(map[string]physical.Op),
	}
}

// Get reads a committed value. Missing keys return physical.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ledgererr.ErrClosed
	}
	return s.backend.Get(ctx, key)
}

// Watch captures the committed state of key as a condition for Txn.Expect.
func (s *Store) Watch(ctx context.Context, key string) (physical.Cond, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, physical.ErrNotFound) {
		return physical.Cond{Key: key}, nil
	}
	if err != nil {
		return physical.Cond{}, err
	}
	return physical.Cond{Key: key, Value: v, Exists: true}, nil
}

// Scan reads committed pairs under prefix in key order.
func (s *Store) Scan(ctx context.Context, prefix string) ([]physical.KV, error) {
	if s.closed.Load() {
		return nil, ledgererr.ErrClosed
	}
	return s.backend.Scan(ctx, prefix)
}

// Commit applies every write of tx atomically and finishes it.
func (s *Store) Commit(tx *Txn) (err error) {
	if s.closed.Load() {
		return ledgererr.ErrClosed
	}
	if tx.store != s {
		return fmt.Errorf("commit: transaction belongs to another store")
	}
	if tx.done {
		return ErrTxnDone
	}

	batch := tx.Batch()
	op, ctx := observability.StartOperation(tx.ctx, s.metrics, "state.commit",
		attribute.Int("state.ops", batch.Len()),
		attribute.Int("state.events", len(tx.events)),
	)
	defer func() { op.End(err) }()

	tx.done = true
	if batch.Len() == 0 {
		return nil
	}
	if err := s.backend.Commit(ctx, batch); err != nil {
		if errors.Is(err, physical.ErrConflict) {
			return fmt.Errorf("commit: %w: %w", ledgererr.ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats returns backend statistics.
func (s *Store) Stats(ctx context.Context) (*physical.Stats, error) {
	if s.closed.Load() {
		return nil, ledgererr.ErrClosed
	}
	return s.backend.Stats(ctx)
}

// Ping reports whether the store can serve reads.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Stats(ctx)
	return err
}

// Close closes the backend. Subsequent calls return ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.backend.Close()
}
