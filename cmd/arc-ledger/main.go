package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(viper.New(), stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: v, stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "arc-ledger",
		Short: "Two-tier permissioned CBDC ledger",
		Long: `arc-ledger - a central-bank ledger and participant bank ledgers with
role-based access control and atomic interbank swaps.

Setup:
  arc-ledger genesis apply genesis.yaml

Operations run as the principal given by --as (or ARC_LEDGER_CALLER):
  arc-ledger ledger mint bank-a alice 100.00 --as bank-a-ops
  arc-ledger swap start bank-a bank-b bob 25.00 --as alice
  arc-ledger swap accept 1 --as bob`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	config.BindFlags(rootCmd, v)

	rootCmd.AddCommand(
		newGenesisCmd(a),
		newLedgerCmd(a),
		newAccessCmd(a),
		newSwapCmd(a),
		newDirectoryCmd(a),
		newEventsCmd(a),
		newArchiveCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}
