package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/gezibash/arc-ledger/internal/config"
)

// CommandConfig configures a CLI command that runs against a node.
type CommandConfig struct {
	// Name identifies this command in logs and error results.
	Name string

	// Viper holds the command's configuration.
	Viper *viper.Viper

	// Timeout for the command operation. Zero means no timeout.
	Timeout time.Duration

	// Stdout and Stderr default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// Run is the command's business logic.
	Run func(ctx context.Context, env *Env, out *Output) error
}

// ExitError carries a process exit code for an error already rendered.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// RunCommand executes a CLI command with standard infrastructure setup.
// Handles: config -> output -> Open -> timeout -> Run -> error rendering -> Close.
func RunCommand(ctx context.Context, cfg CommandConfig) (err error) {
	if cfg.Name == "" {
		return fmt.Errorf("command name required")
	}
	if cfg.Viper == nil {
		return fmt.Errorf("viper required")
	}
	if cfg.Run == nil {
		return fmt.Errorf("run function required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	c, err := config.Load(cfg.Viper, cfg.Viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	format, err := ParseFormat(c.Output)
	if err != nil {
		return err
	}
	out := NewOutput(format, cfg.Stdout)

	env, err := Open(ctx, c, EnvOptions{})
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if cerr := env.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if head, _, herr := env.Node.Head(ctx); herr == nil {
		out.SetHead(head)
	}

	if err := cfg.Run(ctx, env, out); err != nil {
		return Report(cfg.Name, out, cfg.Stderr, err)
	}
	return nil
}

// Report renders err as a structured error and wraps it in an ExitError.
// Text errors go to stderr; json and markdown errors go to the result stream.
func Report(name string, out *Output, stderr io.Writer, err error) error {
	var exit *ExitError
	if errors.As(err, &exit) {
		return err
	}
	target := out
	if out.Format() == FormatText {
		target = NewOutput(FormatText, stderr)
	}
	_ = target.Error(name, err).Render()
	return &ExitError{Code: 1, Err: err}
}

// Stamp records the current audit log head on out, for results rendered
// after a mutation.
func (e *Env) Stamp(ctx context.Context, out *Output) {
	if head, _, err := e.Node.Head(ctx); err == nil {
		out.SetHead(head)
	}
}
