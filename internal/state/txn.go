package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gezibash/arc-ledger/internal/state/physical"
)

// Event is a domain event collected by a transaction. Events are only made
// durable when the transaction commits.
type Event struct {
	Kind   string
	Ledger string
	Fields map[string]any
}

// Txn is a unit of work over a Store. It is not safe for concurrent use.
type Txn struct {
	ctx    context.Context
	store  *Store
	now    time.Time
	writes map[string]physical.Op
	order  []string
	events []Event
	conds  []physical.Cond
	done   bool
}

// Context returns the context the transaction was started with.
func (t *Txn) Context() context.Context {
	return t.ctx
}

// Now returns the logical time of the transaction.
func (t *Txn) Now() time.Time {
	return t.now
}

// Get returns the value at key, seeing writes made earlier in t.
func (t *Txn) Get(key string) ([]byte, bool, error) {
	if op, ok := t.writes[key]; ok {
		if op.Delete {
			return nil, false, nil
		}
		return op.Value, true, nil
	}
	v, err := t.store.Get(t.ctx, key)
	if errors.Is(err, physical.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put records a write of value at key.
func (t *Txn) Put(key string, value []byte) {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = physical.Op{Key: key, Value: value}
}

// Delete records the removal of key.
func (t *Txn) Delete(key string) {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = physical.Op{Key: key, Delete: true}
}

// GetJSON decodes the value at key into v. It reports false if key is absent.
func (t *Txn) GetJSON(key string, v any) (bool, error) {
	data, ok, err := t.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it at key.
func (t *Txn) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.Put(key, data)
	return nil
}

// GetInt64 returns the integer at key, or zero if absent.
func (t *Txn) GetInt64(key string) (int64, error) {
	data, ok, err := t.Get(key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return n, nil
}

// PutInt64 writes n at key. Zero deletes the key.
func (t *Txn) PutInt64(key string, n int64) {
	if n == 0 {
		t.Delete(key)
		return
	}
	t.Put(key, []byte(strconv.FormatInt(n, 10)))
}

// Scan returns pairs under prefix in key order, merging t's own writes over
// the committed state.
func (t *Txn) Scan(prefix string) ([]physical.KV, error) {
	base, err := t.store.Scan(t.ctx, prefix)
	if err != nil {
		return nil, err
	}

	merged := make(map[string][]byte, len(base))
	for _, kv := range base {
		merged[kv.Key] = kv.Value
	}
	for key, op := range t.writes {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if op.Delete {
			delete(merged, key)
			continue
		}
		merged[key] = op.Value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]physical.KV, len(keys))
	for i, k := range keys {
		out[i] = physical.KV{Key: k, Value: merged[k]}
	}
	return out, nil
}

// Emit records a domain event.
func (t *Txn) Emit(ev Event) {
	t.events = append(t.events, ev)
}

// Events returns the events emitted so far, in emission order.
func (t *Txn) Events() []Event {
	return t.events
}

// Expect makes the commit of t conditional on c, typically a value taken
// with Store.Watch before t began.
func (t *Txn) Expect(c physical.Cond) {
	t.conds = append(t.conds, c)
}

// Batch returns the write set as a physical batch, one op per key in
// first-write order carrying the latest value, guarded by t's conditions.
func (t *Txn) Batch() *physical.Batch {
	var b physical.Batch
	for _, c := range t.conds {
		b.Expect(c)
	}
	for _, key := range t.order {
		op := t.writes[key]
		if op.Delete {
			b.Delete(key)
		} else {
			b.Put(key, op.Value)
		}
	}
	return &b
}

// Dirty reports whether t holds writes or events.
func (t *Txn) Dirty() bool {
	return len(t.order) > 0 || len(t.events) > 0
}
