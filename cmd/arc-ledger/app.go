package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/cli"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const commandTimeout = 30 * time.Second

type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

// query runs a read-only command.
func (a *app) query(cmd *cobra.Command, fn func(ctx context.Context, env *cli.Env, out *cli.Output) error) error {
	return a.runFor(cmd, commandTimeout, fn)
}

// stream runs a command that lasts until its context ends.
func (a *app) stream(cmd *cobra.Command, fn func(ctx context.Context, env *cli.Env, out *cli.Output) error) error {
	return a.runFor(cmd, 0, fn)
}

func (a *app) runFor(cmd *cobra.Command, timeout time.Duration, fn func(ctx context.Context, env *cli.Env, out *cli.Output) error) error {
	return cli.RunCommand(cmd.Context(), cli.CommandConfig{
		Name:    cmd.CommandPath(),
		Viper:   a.v,
		Timeout: timeout,
		Stdout:  a.stdout,
		Stderr:  a.stderr,
		Run:     fn,
	})
}

// mutate runs a command as the configured caller and renders message with
// details once fn succeeds.
func (a *app) mutate(cmd *cobra.Command, message string, fn func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error) error {
	return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
		caller, err := env.Caller()
		if err != nil {
			return err
		}
		res := out.Result(cmd.Name(), message)
		if err := fn(ctx, env, caller, res); err != nil {
			return err
		}
		env.Stamp(ctx, out)
		return res.With("Caller", string(caller)).Render()
	})
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid proposal id %q: %w", s, ledgererr.ErrInvalidInput)
	}
	return id, nil
}

func principal(s string) access.Principal {
	return access.Principal(s)
}
