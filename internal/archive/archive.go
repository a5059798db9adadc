// Package archive exports the audit log and the proposal table to an
// object store and verifies exported snapshots.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gezibash/arc-ledger/internal/archive/physical"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/observability"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const (
	eventsDir    = "events"
	proposalsDir = "proposals"
	manifestsDir = "manifests"
)

// Source is the read side of a node that an export draws from.
type Source interface {
	Head(ctx context.Context) (uint64, string, error)
	Events(ctx context.Context, q events.Query) ([]events.Event, error)
	Proposals(ctx context.Context, f swap.Filter) ([]*swap.Proposal, error)
	Now(ctx context.Context) (time.Time, error)
}

// Manifest describes one exported snapshot.
type Manifest struct {
	Head         uint64    `json:"head"`
	HeadHash     string    `json:"head_hash"`
	Events       int       `json:"events"`
	Proposals    int       `json:"proposals"`
	EventsKey    string    `json:"events_key"`
	ProposalsKey string    `json:"proposals_key"`
	ExportedAt   time.Time `json:"exported_at"`
}

func snapshotName(head uint64) string {
	return fmt.Sprintf("%020d", head)
}

// EventsKey returns the object key of the event log exported at head.
func EventsKey(head uint64) string {
	return path.Join(eventsDir, snapshotName(head)+".jsonl")
}

// ProposalsKey returns the object key of the proposal table exported at head.
func ProposalsKey(head uint64) string {
	return path.Join(proposalsDir, snapshotName(head)+".json")
}

// ManifestKey returns the object key of the manifest for head.
func ManifestKey(head uint64) string {
	return path.Join(manifestsDir, snapshotName(head)+".json")
}

// Export writes the event log as JSON lines and the proposal table as JSON,
// both keyed by the head event sequence, then writes the manifest. The
// manifest goes last so a present manifest implies a complete snapshot.
func Export(ctx context.Context, src Source, sink physical.Backend, metrics *observability.Metrics) (m *Manifest, err error) {
	op, ctx := observability.StartOperation(ctx, metrics, "archive.export")
	defer func() { op.End(err) }()

	head, headHash, err := src.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}
	evs, err := src.Events(ctx, events.Query{})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	// Events committed between Head and Events are left for the next export.
	for i, ev := range evs {
		if ev.Seq > head {
			evs = evs[:i]
			break
		}
	}
	proposals, err := src.Proposals(ctx, swap.Filter{})
	if err != nil {
		return nil, fmt.Errorf("read proposals: %w", err)
	}
	now, err := src.Now(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
	}
	if proposals == nil {
		proposals = []*swap.Proposal{}
	}
	table, err := json.MarshalIndent(proposals, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode proposals: %w", err)
	}

	m = &Manifest{
		Head:         head,
		HeadHash:     headHash,
		Events:       len(evs),
		Proposals:    len(proposals),
		EventsKey:    EventsKey(head),
		ProposalsKey: ProposalsKey(head),
		ExportedAt:   now,
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	if err := sink.Put(ctx, m.EventsKey, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write events: %w", err)
	}
	if err := sink.Put(ctx, m.ProposalsKey, table); err != nil {
		return nil, fmt.Errorf("write proposals: %w", err)
	}
	if err := sink.Put(ctx, ManifestKey(head), manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	op.SetAttributes(attribute.Int64("archive.head", int64(head)), attribute.Int("archive.events", len(evs)))
	slog.InfoContext(ctx, "archive exported", "head", head, "events", len(evs), "proposals", len(proposals))
	return m, nil
}

// Snapshots returns the heads of every exported snapshot, in ascending order.
func Snapshots(ctx context.Context, sink physical.Backend) ([]uint64, error) {
	keys, err := sink.List(ctx, manifestsDir+"/")
	if err != nil {
		return nil, err
	}
	heads := make([]uint64, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimSuffix(path.Base(k), ".json")
		head, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		heads = append(heads, head)
	}
	return heads, nil
}

// LoadManifest reads the manifest written for head.
func LoadManifest(ctx context.Context, sink physical.Backend, head uint64) (*Manifest, error) {
	data, err := sink.Get(ctx, ManifestKey(head))
	if err != nil {
		if errors.Is(err, physical.ErrNotFound) {
			return nil, fmt.Errorf("%w: snapshot %d", ledgererr.ErrNotFound, head)
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Verify reads the snapshot at head and checks that its event log forms an
// unbroken hash chain ending at the manifest's head hash. It returns the
// number of events verified.
func Verify(ctx context.Context, sink physical.Backend, head uint64) (uint64, error) {
	m, err := LoadManifest(ctx, sink, head)
	if err != nil {
		return 0, err
	}
	data, err := sink.Get(ctx, m.EventsKey)
	if err != nil {
		return 0, fmt.Errorf("read events: %w", err)
	}

	var (
		prev  string
		count uint64
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		ev, err := events.Decode(sc.Bytes())
		if err != nil {
			return count, err
		}
		if ev.Seq != count+1 || ev.PrevHash != prev {
			return count, fmt.Errorf("%w: event %d does not link to its predecessor", events.ErrChainBroken, ev.Seq)
		}
		want, err := ev.ComputeHash()
		if err != nil {
			return count, err
		}
		if want != ev.Hash {
			return count, fmt.Errorf("%w: event %d hash mismatch", events.ErrChainBroken, ev.Seq)
		}
		prev = ev.Hash
		count++
	}
	if err := sc.Err(); err != nil {
		return count, err
	}
	if count != m.Head || prev != m.HeadHash {
		return count, fmt.Errorf("%w: snapshot ends at %d, manifest head is %d", events.ErrChainBroken, count, m.Head)
	}
	return count, nil
}
