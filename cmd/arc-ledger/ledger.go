package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/ledger"
)

func newLedgerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect ledgers and move funds",
	}
	cmd.AddCommand(
		newLedgerListCmd(a),
		newLedgerShowCmd(a),
		newLedgerCreateCmd(a),
		newBalanceCmd(a),
		newAllowanceCmd(a),
		newVerifyAccountCmd(a),
		amountCmd(a, "mint <ledger> <to> <amount>", "Create funds in an enabled account (MINTER)", 3, "minted",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.Mint(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "burn <ledger> <amount>", "Destroy funds from the caller's account (BURNER)", 2, "burned",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.Burn(ctx, args[0], caller, amt)
			}),
		amountCmd(a, "burn-from <ledger> <owner> <amount>", "Destroy funds using an allowance (BURNER)", 3, "burned",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.BurnFrom(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "move <ledger> <from> <to> <amount>", "Move funds without an allowance (MOVER)", 4, "moved",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.Move(ctx, args[0], caller, principal(args[1]), principal(args[2]), amt)
			}),
		amountCmd(a, "transfer <ledger> <to> <amount>", "Transfer funds from the caller", 3, "transferred",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.Transfer(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "transfer-from <ledger> <from> <to> <amount>", "Transfer funds using an allowance", 4, "transferred",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.TransferFrom(ctx, args[0], caller, principal(args[1]), principal(args[2]), amt)
			}),
		amountCmd(a, "approve <ledger> <spender> <amount>", "Set the spender's allowance", 3, "approved",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.Approve(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "increase-allowance <ledger> <spender> <amount>", "Raise the spender's allowance", 3, "allowance increased",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.IncreaseAllowance(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "decrease-allowance <ledger> <spender> <amount>", "Lower the spender's allowance", 3, "allowance decreased",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.DecreaseAllowance(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "freeze <ledger> <principal> <amount>", "Freeze part of a balance (FREEZER)", 3, "frozen",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.IncreaseFrozenBalance(ctx, args[0], caller, principal(args[1]), amt)
			}),
		amountCmd(a, "unfreeze <ledger> <principal> <amount>", "Release part of a frozen balance (FREEZER)", 3, "unfrozen",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error {
				return env.Node.DecreaseFrozenBalance(ctx, args[0], caller, principal(args[1]), amt)
			}),
		refCmd(a, "pause <ledger>", "Pause every state-changing operation (PAUSER)", 1, "paused",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error {
				return env.Node.Pause(ctx, args[0], caller)
			}),
		refCmd(a, "unpause <ledger>", "Resume operations (PAUSER)", 1, "unpaused",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error {
				return env.Node.Unpause(ctx, args[0], caller)
			}),
		refCmd(a, "set-reserve <ledger> <principal>", "Change a participant's reserve account (ADMIN)", 2, "reserve account changed",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error {
				return env.Node.SetReserveAccount(ctx, args[0], caller, principal(args[1]))
			}),
	)
	return cmd
}

// amountCmd builds a mutating command whose last argument is an amount.
func amountCmd(a *app, use, short string, nargs int, message string,
	fn func(ctx context.Context, env *cli.Env, caller access.Principal, args []string, amt ledger.Amount) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, message, func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				amt, err := ledger.ParseAmount(args[nargs-1])
				if err != nil {
					return err
				}
				if err := fn(ctx, env, caller, args, amt); err != nil {
					return err
				}
				res.With("Ledger", args[0]).With("Amount", amt.String())
				return nil
			})
		},
	}
}

// refCmd builds a mutating command addressed to one ledger.
func refCmd(a *app, use, short string, nargs int, message string,
	fn func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, message, func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				if err := fn(ctx, env, caller, args); err != nil {
					return err
				}
				res.With("Ledger", args[0])
				for _, extra := range args[1:] {
					res.With("Target", extra)
				}
				return nil
			})
		},
	}
}

func newLedgerListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				metas, err := env.Node.Ledgers(ctx)
				if err != nil {
					return err
				}
				return out.LedgersTable(metas).Render()
			})
		},
	}
}

func newLedgerShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ledger>",
		Short: "Show a ledger's metadata, accounts and roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				info, err := env.Node.Ledger(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Ledger(info).Render()
			})
		},
	}
}

func newLedgerCreateCmd(a *app) *cobra.Command {
	var (
		kind        string
		authority   string
		admin       string
		institution string
		reserve     string
	)
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a CBDC or participant ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "ledger created", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				p := ledger.Params{
					ID:        args[0],
					Kind:      ledger.Kind(kind),
					Authority: principal(authority),
					Admin:     principal(admin),
				}
				if p.Admin == "" {
					p.Admin = caller
				}
				if institution != "" || reserve != "" {
					p.Institution = &ledger.Institution{ID: institution, ReserveAccount: principal(reserve)}
				}
				if err := env.Node.CreateLedger(ctx, p); err != nil {
					return err
				}
				res.With("Ledger", p.ID).With("Kind", kind).With("Authority", authority).With("Admin", string(p.Admin))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(ledger.KindParticipant), "ledger kind (cbdc, participant)")
	cmd.Flags().StringVar(&authority, "authority", "", "principal granted the operational roles")
	cmd.Flags().StringVar(&admin, "admin", "", "principal granted ADMIN (default: the caller)")
	cmd.Flags().StringVar(&institution, "institution", "", "institution id (participant ledgers)")
	cmd.Flags().StringVar(&reserve, "reserve", "", "reserve account on the CBDC ledger (participant ledgers)")
	_ = cmd.MarkFlagRequired("authority")
	return cmd
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <ledger> <principal>",
		Short: "Show a principal's balance, frozen and spendable amounts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				p := principal(args[1])
				acct, err := env.Node.Account(ctx, args[0], p)
				if err != nil {
					return err
				}
				enabled, err := env.Node.VerifyAccount(ctx, args[0], p)
				if err != nil {
					return err
				}
				return out.AccountKV(args[0], p, acct, enabled).Render()
			})
		},
	}
}

func newAllowanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "allowance <ledger> <owner> <spender>",
		Short: "Show the amount spender may draw from owner",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				amt, err := env.Node.Allowance(ctx, args[0], principal(args[1]), principal(args[2]))
				if err != nil {
					return err
				}
				return out.KV("allowance").
					Set("Ledger", args[0]).
					Set("Owner", args[1]).
					Set("Spender", args[2]).
					Set("Allowance", amt.String()).
					Render()
			})
		},
	}
}

func newVerifyAccountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <ledger> <principal>",
		Short: "Report whether a principal is enabled on a ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				ok, err := env.Node.VerifyAccount(ctx, args[0], principal(args[1]))
				if err != nil {
					return err
				}
				return out.KV("verify-account").
					Set("Ledger", args[0]).
					Set("Principal", args[1]).
					Set("Enabled", ok).
					Render()
			})
		},
	}
}
