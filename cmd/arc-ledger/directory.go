package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/cli"
)

func newDirectoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "directory",
		Aliases: []string{"dir"},
		Short:   "Manage names that resolve to ledgers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key> <ledger>",
			Short: "Point key at a ledger (directory admin)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(cmd, "directory entry set", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
					if err := env.Node.SetDirectoryEntry(ctx, caller, args[0], args[1]); err != nil {
						return err
					}
					res.With("Key", args[0]).With("Ledger", args[1])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <key>",
			Short: "Remove a directory entry (directory admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(cmd, "directory entry removed", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
					if err := env.Node.RemoveDirectoryEntry(ctx, caller, args[0]); err != nil {
						return err
					}
					res.With("Key", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "lookup <key>",
			Short: "Resolve a key to a ledger id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
					id, err := env.Node.Lookup(ctx, args[0])
					if err != nil {
						return err
					}
					return out.KV("directory-entry").Set("Key", args[0]).Set("Ledger", id).Render()
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List directory entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
					entries, err := env.Node.DirectoryEntries(ctx)
					if err != nil {
						return err
					}
					return out.DirectoryTable(entries).Render()
				})
			},
		},
	)
	return cmd
}
