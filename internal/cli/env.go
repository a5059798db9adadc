package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/archive/physical"
	"github.com/gezibash/arc-ledger/internal/config"
	"github.com/gezibash/arc-ledger/internal/node"
	"github.com/gezibash/arc-ledger/internal/observability"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"

	_ "github.com/gezibash/arc-ledger/internal/archive/physical/fs"
	_ "github.com/gezibash/arc-ledger/internal/archive/physical/s3"
)

// Env is everything a command needs: the loaded config, the observability
// stack and an open node.
type Env struct {
	Config config.Config
	Obs    *observability.Observability
	Node   *node.Node
}

// EnvOptions controls how Open sets up logging.
type EnvOptions struct {
	// LogWriter receives logs. Nil means {data_dir}/log/cli.log.
	LogWriter io.Writer
	// ServiceVersion is reported in traces.
	ServiceVersion string
}

// Open initialises observability, opens the state store and builds the node.
func Open(ctx context.Context, cfg config.Config, opts EnvOptions) (*Env, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir()
	}

	logWriter := opts.LogWriter
	var logFile *os.File
	if logWriter == nil {
		f, err := openLogFile(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		logFile, logWriter = f, f
	}

	version := cfg.Observability.ServiceVersion
	if opts.ServiceVersion != "" {
		version = opts.ServiceVersion
	}
	obs, err := observability.New(ctx, observability.ObsConfig{
		LogLevel:        cfg.Observability.LogLevel,
		LogFormat:       cfg.Observability.LogFormat,
		OTLPEndpoint:    cfg.Observability.OTLPEndpoint,
		OTLPProtocol:    cfg.Observability.OTLPProtocol,
		TraceSampleRate: cfg.Observability.TraceSampleRate,
		ServiceName:     cfg.Observability.ServiceName,
		ServiceVersion:  version,
	}, logWriter)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	slog.SetDefault(obs.Logger)
	if logFile != nil {
		obs.Shutdown.Register("log-file", func(context.Context) error { return logFile.Close() })
	}

	store, err := node.NewStateStore(ctx, cfg.StateConfig(), obs.Metrics)
	if err != nil {
		_ = obs.Close(ctx)
		return nil, fmt.Errorf("open state: %w", err)
	}

	n := node.New(store, node.Options{
		SwapValidity: cfg.Swap.Validity,
		Metrics:      obs.Metrics,
		Logger:       obs.Logger,
	})
	obs.Shutdown.Register("node", func(context.Context) error { return n.Close() })

	return &Env{Config: cfg, Obs: obs, Node: n}, nil
}

// openLogFile opens {data_dir}/log/cli.log so command output stays clean.
func openLogFile(dataDir string) (*os.File, error) {
	logDir := filepath.Join(dataDir, "log")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "cli.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is constructed from known data dir
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Caller returns the principal configured to perform mutating commands.
func (e *Env) Caller() (access.Principal, error) {
	p := access.Principal(e.Config.Caller)
	if p == "" {
		return "", fmt.Errorf("no caller: pass --as or set %s_CALLER: %w", config.EnvPrefix, ledgererr.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// Archive opens the configured archive backend. The caller closes it.
func (e *Env) Archive(ctx context.Context) (physical.Backend, error) {
	cfg := e.Config.ArchiveConfig()
	return physical.New(ctx, cfg.Backend, cfg.Config, e.Obs.Metrics)
}

// Close stops the node and flushes observability, in reverse setup order.
func (e *Env) Close(ctx context.Context) error {
	return e.Obs.Close(ctx)
}
