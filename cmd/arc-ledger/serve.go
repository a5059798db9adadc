package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/archive"
	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/config"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		archiveEvery time.Duration
		filter       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the ledger open and serve metrics, health and readiness",
		Long: `Open the state store, publish supply gauges and event counters on the
metrics address (/metrics, /health, /ready) and log committed events until
interrupted. With --archive-every the node exports a snapshot on that interval
and once more on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), archiveEvery, filter)
		},
	}
	cmd.Flags().DurationVar(&archiveEvery, "archive-every", 0, "export an archive snapshot on this interval (0 = never)")
	cmd.Flags().StringVar(&filter, "log-filter", "", "CEL filter selecting which committed events are logged")
	return cmd
}

func (a *app) serve(parent context.Context, archiveEvery time.Duration, filter string) error {
	cfg, err := config.Load(a.v, a.v.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f, err := compileFilter(filter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	env, err := cli.Open(ctx, cfg, cli.EnvOptions{LogWriter: a.stderr, ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	log := env.Obs.Logger

	if err := primeSupply(ctx, env); err != nil {
		_ = env.Close(context.WithoutCancel(ctx))
		return err
	}
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		env.Obs.ServeMetrics(addr, env.Node.Ready)
	}

	sub := env.Node.Subscribe(f, 256)
	env.Obs.Shutdown.Register("subscription", func(context.Context) error {
		sub.Cancel()
		return nil
	})
	go logEvents(ctx, log, sub)

	if archiveEvery > 0 {
		go exportLoop(ctx, env, archiveEvery)
		env.Obs.Shutdown.Register("archive", func(ctx context.Context) error {
			return exportOnce(ctx, env)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	head, _, err := env.Node.Head(ctx)
	if err != nil {
		_ = env.Close(context.WithoutCancel(ctx))
		return err
	}
	log.Info("serving", "head", head, "backend", cfg.Storage.State.Backend, "metrics", cfg.Observability.MetricsAddr)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig)
	case <-ctx.Done():
		log.Info("shutting down", "reason", ctx.Err())
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := env.Close(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	return nil
}

// primeSupply publishes the current supply of every ledger, so the gauges
// are populated before the first operation commits.
func primeSupply(ctx context.Context, env *cli.Env) error {
	metas, err := env.Node.Ledgers(ctx)
	if err != nil {
		return fmt.Errorf("read ledgers: %w", err)
	}
	for _, m := range metas {
		env.Obs.Metrics.SetTotalSupply(m.ID, int64(m.TotalSupply))
	}
	return nil
}

func logEvents(ctx context.Context, log *slog.Logger, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			attrs := []any{"seq", ev.Seq, "kind", ev.Kind}
			if ev.Ledger != "" {
				attrs = append(attrs, "ledger", ev.Ledger)
			}
			if amount, ok := ev.Int64("amount"); ok {
				attrs = append(attrs, "amount", ledger.Amount(amount).String())
			}
			log.Info("event committed", attrs...)
			if n := sub.Dropped(); n > 0 {
				log.Warn("event subscriber lagging", "dropped", n)
			}
		}
	}
}

func exportLoop(ctx context.Context, env *cli.Env, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := exportOnce(ctx, env); err != nil {
				env.Obs.Logger.Error("archive export failed", "error", err)
			}
		}
	}
}

// exportOnce writes a snapshot unless the latest one already covers the head.
func exportOnce(ctx context.Context, env *cli.Env) error {
	sink, err := env.Archive(ctx)
	if err != nil {
		return err
	}
	defer sink.Close() //nolint:errcheck

	head, _, err := env.Node.Head(ctx)
	if err != nil {
		return err
	}
	heads, err := archive.Snapshots(ctx, sink)
	if err != nil {
		return err
	}
	if head == 0 || len(heads) > 0 && heads[len(heads)-1] >= head {
		return nil
	}
	_, err = archive.Export(ctx, env.Node, sink, env.Obs.Metrics)
	return err
}
