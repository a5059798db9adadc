// Package node is the single-writer sequencer in front of the ledger state.
//
// Every mutating operation runs through Apply, which holds the writer lock,
// stamps the operation with a non-decreasing logical time, and commits the
// operation's writes, its hash-chained events and the new clock mark as one
// backend batch. An operation that returns an error writes nothing and
// publishes nothing.
//
// Nodes in other processes may share the backend. Each commit bumps a
// commit counter and is conditional on the counter it saw when the
// operation started, so an operation that raced another writer is rerun
// against the new state instead of committing stale reads.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gezibash/arc-ledger/internal/clock"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

const (
	clockKey  = "clock/now"
	commitKey = "node/commit"

	// maxAttempts bounds how often Apply reruns an operation that lost a
	// commit race.
	maxAttempts = 5
)

// Options configures a Node. Zero values select the system clock, the
// default swap validity and a fresh bus.
type Options struct {
	Clock        clock.Clock
	SwapValidity time.Duration
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	Bus          *events.Bus
}

// Node sequences operations against one state store.
type Node struct {
	store   *state.Store
	clock   clock.Clock
	swaps   *swap.Coordinator
	bus     *events.Bus
	metrics *observability.Metrics
	log     *logging.Logger

	mu sync.RWMutex
}

// New creates a node over store.
func New(store *state.Store, opts Options) *Node {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Node{
		store:   store,
		clock:   opts.Clock,
		swaps:   swap.New(opts.SwapValidity),
		bus:     opts.Bus,
		metrics: opts.Metrics,
		log:     logging.New(opts.Logger).WithComponent("node"),
	}
}

// Store returns the underlying state store.
func (n *Node) Store() *state.Store { return n.store }

// Swaps returns the swap coordinator.
func (n *Node) Swaps() *swap.Coordinator { return n.swaps }

// Bus returns the bus committed events are published on.
func (n *Node) Bus() *events.Bus { return n.bus }

func (n *Node) mark(ctx context.Context) (time.Time, error) {
	tx := n.store.Begin(ctx, time.Time{})
	v, ok, err := tx.Get(clockKey)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode clock mark: %w", err)
	}
	return t, nil
}

// Apply runs fn as one atomic operation named name. fn may run more than
// once when another writer commits first; only the last run is applied.
func (n *Node) Apply(ctx context.Context, name string, fn func(tx *state.Txn) error) (err error) {
	op, ctx := observability.StartOperation(ctx, n.metrics, name)
	defer func() { op.End(err) }()

	n.mu.Lock()
	defer n.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	res, err := backoff.Retry(ctx, func() (*applied, error) {
		res, err := n.attempt(ctx, fn)
		if err != nil && !errors.Is(err, ledgererr.ErrConflict) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			n.log.WarnContext(ctx, "commit conflict, retrying", "operation", name, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return err
	}

	n.bus.Publish(res.events)
	for _, ev := range res.events {
		n.metrics.RecordEvent(ev.Kind)
	}
	for id, amount := range res.supply {
		n.metrics.SetTotalSupply(id, int64(amount))
	}
	if len(res.events) > 0 {
		n.log.DebugContext(ctx, "operation committed", "operation", name, "events", len(res.events), "head", res.events[len(res.events)-1].Seq)
	}
	return nil
}

// applied is what a committed attempt leaves for publication.
type applied struct {
	events []events.Event
	supply map[string]ledger.Amount
}

// attempt runs fn once and commits it if no other writer has committed
// since attempt started.
func (n *Node) attempt(ctx context.Context, fn func(tx *state.Txn) error) (*applied, error) {
	guard, err := n.store.Watch(ctx, commitKey)
	if err != nil {
		return nil, err
	}
	mark, err := n.mark(ctx)
	if err != nil {
		return nil, err
	}
	now := clock.Monotonic(n.clock, mark)
	tx := n.store.Begin(ctx, now)

	if err := fn(tx); err != nil {
		return nil, err
	}

	supply, err := supplies(tx)
	if err != nil {
		return nil, err
	}
	evs, err := events.Append(tx)
	if err != nil {
		return nil, err
	}
	if now.After(mark) {
		tx.Put(clockKey, []byte(now.Format(time.RFC3339Nano)))
	}
	if tx.Dirty() {
		count, err := tx.GetInt64(commitKey)
		if err != nil {
			return nil, err
		}
		tx.PutInt64(commitKey, count+1)
		tx.Expect(guard)
	}
	if err := n.store.Commit(tx); err != nil {
		return nil, err
	}
	return &applied{events: evs, supply: supply}, nil
}

// supplies returns the post-operation total supply of every ledger whose
// supply the operation changed.
func supplies(tx *state.Txn) (map[string]ledger.Amount, error) {
	var out map[string]ledger.Amount
	for _, ev := range tx.Events() {
		if ev.Kind != events.KindTransfer {
			continue
		}
		if ev.Fields[events.FieldFrom] != "" && ev.Fields[events.FieldTo] != "" {
			continue
		}
		if _, seen := out[ev.Ledger]; seen {
			continue
		}
		l, err := ledger.Open(tx, ev.Ledger)
		if err != nil {
			return nil, err
		}
		s, err := l.TotalSupply(tx)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make(map[string]ledger.Amount)
		}
		out[ev.Ledger] = s
	}
	return out, nil
}

// View runs fn against committed state. Writes made by fn are discarded.
func (n *Node) View(ctx context.Context, fn func(tx *state.Txn) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	mark, err := n.mark(ctx)
	if err != nil {
		return err
	}
	return fn(n.store.Begin(ctx, clock.Monotonic(n.clock, mark)))
}

// Now returns the logical time the next operation would be stamped with.
func (n *Node) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := n.View(ctx, func(tx *state.Txn) error {
		now = tx.Now()
		return nil
	})
	return now, err
}

// Subscribe delivers committed events matching filter. A nil filter
// matches everything.
func (n *Node) Subscribe(filter *events.Filter, buffer int) *events.Subscription {
	return n.bus.Subscribe(filter, buffer)
}

// Events lists committed events.
func (n *Node) Events(ctx context.Context, q events.Query) ([]events.Event, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return events.List(ctx, n.store, q)
}

// Event returns the committed event with sequence number seq.
func (n *Node) Event(ctx context.Context, seq uint64) (events.Event, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return events.Get(ctx, n.store, seq)
}

// Head returns the sequence number and hash of the newest event.
func (n *Node) Head(ctx context.Context) (uint64, string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return events.Head(ctx, n.store)
}

// VerifyEvents walks the event hash chain and returns the number of events
// checked.
func (n *Node) VerifyEvents(ctx context.Context) (uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return events.Verify(ctx, n.store)
}

// Ready reports whether the store can serve reads.
func (n *Node) Ready(ctx context.Context) error {
	return n.store.Ping(ctx)
}

// Close closes the bus and the store.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bus.Close()
	return n.store.Close()
}
