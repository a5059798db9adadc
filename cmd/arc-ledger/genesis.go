package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/genesis"
)

func newGenesisCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Initialise a store from a genesis document",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "apply <file>",
			Short: "Create the ledgers, roles, directory and balances of a genesis document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
					doc, err := genesis.Load(args[0])
					if err != nil {
						return err
					}
					if err := genesis.Apply(ctx, env.Node, doc); err != nil {
						return err
					}
					env.Stamp(ctx, out)
					metas, err := env.Node.Ledgers(ctx)
					if err != nil {
						return err
					}
					return out.LedgersTable(metas).Render()
				})
			},
		},
		&cobra.Command{
			Use:   "validate <file>",
			Short: "Check a genesis document without applying it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				doc, err := genesis.Load(args[0])
				if err != nil {
					return cli.Report(cmd.CommandPath(), cli.NewOutput(cli.FormatText, a.stdout), a.stderr, err)
				}
				_, err = fmt.Fprintf(a.stdout, "genesis document valid: %s + %d participant ledgers\n", doc.CBDC.ID, len(doc.Participants))
				return err
			},
		},
	)
	return cmd
}
