package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/events"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read and verify the audit log",
		Long: `Read and verify the hash-chained audit log.

Filters are CEL expressions over the event: kind, ledger, seq, time and every
payload field at top level, e.g.

  kind == "Transfer" && amount >= 10000
  ledger == "bank-a" && (from == "alice" || to == "alice")`,
	}
	cmd.AddCommand(
		newEventsListCmd(a),
		newEventsShowCmd(a),
		newEventsVerifyCmd(a),
		newEventsWatchCmd(a),
	)
	return cmd
}

func compileFilter(expr string) (*events.Filter, error) {
	if expr == "" {
		return nil, nil
	}
	return events.Compile(expr)
}

func newEventsListCmd(a *app) *cobra.Command {
	var (
		after  uint64
		limit  int
		filter string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events in sequence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				f, err := compileFilter(filter)
				if err != nil {
					return err
				}
				evs, err := env.Node.Events(ctx, events.Query{After: after, Limit: limit, Filter: f})
				if err != nil {
					return err
				}
				t := out.EventsTable(evs)
				if limit > 0 && len(evs) == limit {
					t.WithPagination(strconv.FormatUint(evs[len(evs)-1].Seq, 10), true)
				}
				return t.Render()
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter expression")
	return cmd
}

func newEventsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <seq>",
		Short: "Show one event in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				seq, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid sequence number %q: %w", args[0], ledgererr.ErrInvalidInput)
				}
				ev, err := env.Node.Event(ctx, seq)
				if err != nil {
					return err
				}
				return out.EventKV(ev).Render()
			})
		},
	}
}

func newEventsVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute the hash chain and check every link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				count, err := env.Node.VerifyEvents(ctx)
				if err != nil {
					return err
				}
				_, head, err := env.Node.Head(ctx)
				if err != nil {
					return err
				}
				return out.Result("events-verify", "event chain intact").
					With("Events", count).
					With("Head", head).
					Render()
			})
		},
	}
}

func newEventsWatchCmd(a *app) *cobra.Command {
	var (
		after    uint64
		filter   string
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the audit log and print new events as they commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				f, err := compileFilter(filter)
				if err != nil {
					return err
				}
				w := &eventWriter{w: out.Writer(), json: out.Format() == cli.FormatJSON}
				return watchEvents(ctx, env, events.Query{After: after, Filter: f}, interval, count, w.write)
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "start after this sequence number")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter expression")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many events (0 = run until interrupted)")
	return cmd
}

// watchEvents polls for events past q.After until ctx ends or count events
// have been delivered.
func watchEvents(ctx context.Context, env *cli.Env, q events.Query, interval time.Duration, count int, emit func(events.Event) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	delivered := 0
	for {
		head, _, err := env.Node.Head(ctx)
		if err != nil {
			return err
		}
		if head > q.After {
			evs, err := env.Node.Events(ctx, q)
			if err != nil {
				return err
			}
			next := head
			for _, ev := range evs {
				if err := emit(ev); err != nil {
					return err
				}
				delivered++
				if count > 0 && delivered >= count {
					return nil
				}
				next = max(next, ev.Seq)
			}
			q.After = next
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type eventWriter struct {
	w    io.Writer
	json bool
}

func (e *eventWriter) write(ev events.Event) error {
	if e.json {
		return json.NewEncoder(e.w).Encode(ev)
	}
	_, err := fmt.Fprintf(e.w, "%6d  %s  %-22s %-8s %s\n",
		ev.Seq, ev.Time.Format(time.RFC3339), ev.Kind, ev.Ledger, cli.FormatFields(ev.Fields))
	return err
}
