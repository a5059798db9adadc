package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/state/physical"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const (
	keySeq    = "event/seq"
	keyHead   = "event/head"
	keyPrefix = "event/e/"
)

// ErrChainBroken is returned by Verify when a stored event does not hash to
// its recorded value or does not link to its predecessor.
var ErrChainBroken = errors.New("event chain broken")

// Reader is the committed-state view the log reads from.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string) ([]physical.KV, error)
}

func eventKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", keyPrefix, seq)
}

// Append stamps the events emitted in tx, links them onto the chain and
// writes them into tx. It returns the stamped events in order.
func Append(tx *state.Txn) ([]Event, error) {
	drafts := tx.Events()
	if len(drafts) == 0 {
		return nil, nil
	}

	seq, err := tx.GetInt64(keySeq)
	if err != nil {
		return nil, err
	}
	head, _, err := tx.Get(keyHead)
	if err != nil {
		return nil, err
	}
	prev := string(head)

	out := make([]Event, 0, len(drafts))
	for _, d := range drafts {
		seq++
		ev := Event{
			Seq:      uint64(seq),
			ID:       uuid.NewString(),
			Kind:     d.Kind,
			Ledger:   d.Ledger,
			Time:     tx.Now(),
			Fields:   d.Fields,
			PrevHash: prev,
		}
		ev.Hash, err = ev.ComputeHash()
		if err != nil {
			return nil, err
		}
		if err := tx.PutJSON(eventKey(ev.Seq), ev); err != nil {
			return nil, err
		}
		prev = ev.Hash
		out = append(out, ev)
	}

	tx.PutInt64(keySeq, seq)
	tx.Put(keyHead, []byte(prev))
	return out, nil
}

// Decode parses one stored or exported event, keeping numbers exact.
func Decode(data []byte) (Event, error) {
	var ev Event
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Get returns the event with sequence number seq.
func Get(ctx context.Context, r Reader, seq uint64) (Event, error) {
	data, err := r.Get(ctx, eventKey(seq))
	if errors.Is(err, physical.ErrNotFound) {
		return Event{}, fmt.Errorf("event %d: %w", seq, ledgererr.ErrNotFound)
	}
	if err != nil {
		return Event{}, err
	}
	return Decode(data)
}

// Head returns the last sequence number and hash, or zero values for an empty log.
func Head(ctx context.Context, r Reader) (uint64, string, error) {
	data, err := r.Get(ctx, keySeq)
	if errors.Is(err, physical.ErrNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	seq, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("decode %s: %w", keySeq, err)
	}
	hash, err := r.Get(ctx, keyHead)
	if err != nil {
		return 0, "", fmt.Errorf("read %s: %w", keyHead, err)
	}
	return seq, string(hash), nil
}

// Query selects events from the log.
type Query struct {
	// After skips events with Seq <= After.
	After uint64
	// Limit caps the result; zero means no limit.
	Limit  int
	Filter *Filter
}

// List returns the events matching q in sequence order.
func List(ctx context.Context, r Reader, q Query) ([]Event, error) {
	kvs, err := r.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, kv := range kvs {
		ev, err := Decode(kv.Value)
		if err != nil {
			return nil, err
		}
		if ev.Seq <= q.After {
			continue
		}
		if q.Filter != nil && !q.Filter.Match(&ev) {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Verify recomputes every hash in the log and checks each link. It returns
// the number of events verified.
func Verify(ctx context.Context, r Reader) (uint64, error) {
	kvs, err := r.Scan(ctx, keyPrefix)
	if err != nil {
		return 0, err
	}

	var (
		prev  string
		count uint64
	)
	for _, kv := range kvs {
		ev, err := Decode(kv.Value)
		if err != nil {
			return count, err
		}
		if ev.Seq != count+1 {
			return count, fmt.Errorf("%w: expected seq %d, found %d", ErrChainBroken, count+1, ev.Seq)
		}
		if ev.PrevHash != prev {
			return count, fmt.Errorf("%w: event %d does not link to its predecessor", ErrChainBroken, ev.Seq)
		}
		want, err := ev.ComputeHash()
		if err != nil {
			return count, err
		}
		if want != ev.Hash {
			return count, fmt.Errorf("%w: event %d hash mismatch", ErrChainBroken, ev.Seq)
		}
		prev = ev.Hash
		count++
	}

	seq, head, err := Head(ctx, r)
	if err != nil {
		return count, err
	}
	if seq != count || head != prev {
		return count, fmt.Errorf("%w: head (%d) disagrees with log (%d)", ErrChainBroken, seq, count)
	}
	return count, nil
}
