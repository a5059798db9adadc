// Package physical provides the physical storage backend interface for ledger state.
package physical

import (
	"bytes"
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested key was not found.
	ErrNotFound = errors.New("key not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")

	// ErrConflict indicates a batch precondition no longer held at commit.
	ErrConflict = errors.New("commit conflict")
)

// KV is a single key/value pair returned by Scan.
type KV struct {
	Key   string
	Value []byte
}

// Op is one mutation inside a Batch. Delete ops carry no value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Cond is a precondition on the committed value of a key. Exists false
// requires the key to be absent.
type Cond struct {
	Key    string
	Value  []byte
	Exists bool
}

// Holds reports whether the committed state of the key satisfies c.
func (c Cond) Holds(value []byte, exists bool) bool {
	if c.Exists != exists {
		return false
	}
	return !exists || bytes.Equal(c.Value, value)
}

// Batch is an ordered set of mutations applied atomically by Commit.
type Batch struct {
	ops   []Op
	conds []Cond
}

// Expect makes the batch conditional on c. Commit checks every condition
// and applies nothing, returning ErrConflict, if one fails.
func (b *Batch) Expect(c Cond) {
	b.conds = append(b.conds, c)
}

// Conds returns the batch preconditions.
func (b *Batch) Conds() []Cond {
	return b.conds
}

// Put records a write of value at key.
func (b *Batch) Put(key string, value []byte) {
	b.ops = append(b.ops, Op{Key: key, Value: value})
}

// Delete records the removal of key.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, Op{Key: key, Delete: true})
}

// Ops returns the recorded mutations in insertion order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of recorded mutations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Stats contains storage statistics.
type Stats struct {
	Keys        int64
	SizeBytes   int64
	BackendType string
}

// Backend is the physical storage interface for ledger state.
// Scan returns pairs in ascending key order. Commit must apply every op of
// the batch or none of them, and must check the batch conditions in the
// same atomic step, against writers in other processes too. All
// implementations must be thread-safe.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]KV, error)
	Commit(ctx context.Context, batch *Batch) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
