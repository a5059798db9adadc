package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/cli"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/swap"
)

func newSwapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Move funds between participant ledgers",
		Long: `Move funds between participant ledgers through the CBDC ledger.

A swap burns on the sender ledger, moves reserves on the CBDC ledger and
mints on the receiver ledger in one atomic step. "execute" settles at once;
"start" records a proposal the receiver accepts within the validity window.`,
	}
	cmd.AddCommand(
		newSwapExecuteCmd(a),
		newSwapStartCmd(a),
		newSwapAcceptCmd(a),
		newSwapCancelCmd(a),
		newSwapListCmd(a),
		newSwapShowCmd(a),
	)
	return cmd
}

func newSwapExecuteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <sender-ledger> <receiver-ledger> <receiver> <amount>",
		Short: "Swap funds from the caller to receiver in one step",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "swap executed", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				amt, err := ledger.ParseAmount(args[3])
				if err != nil {
					return err
				}
				if err := env.Node.ExecuteSwap(ctx, caller, args[0], args[1], principal(args[2]), amt); err != nil {
					return err
				}
				res.With("From", args[0]).With("To", args[1]).With("Receiver", args[2]).With("Amount", amt.String())
				return nil
			})
		},
	}
}

func newSwapStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <sender-ledger> <receiver-ledger> <receiver> <amount>",
		Short: "Propose a swap for the receiver to accept",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "swap proposed", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				amt, err := ledger.ParseAmount(args[3])
				if err != nil {
					return err
				}
				p, err := env.Node.StartSwap(ctx, caller, args[0], args[1], principal(args[2]), amt)
				if err != nil {
					return err
				}
				proposalDetails(res, p, env.Node.Swaps().Validity())
				return nil
			})
		},
	}
}

func newSwapAcceptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <proposal-id>",
		Short: "Accept a pending proposal addressed to the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "swap executed", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				p, err := env.Node.AcceptSwap(ctx, caller, id)
				if err != nil {
					return err
				}
				proposalDetails(res, p, env.Node.Swaps().Validity())
				return nil
			})
		},
	}
}

func newSwapCancelCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <proposal-id>",
		Short: "Cancel a pending proposal (sender or receiver)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "swap cancelled", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				p, err := env.Node.CancelSwap(ctx, caller, id, reason)
				if err != nil {
					return err
				}
				proposalDetails(res, p, env.Node.Swaps().Validity())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the cancellation")
	return cmd
}

func proposalDetails(res *cli.Result, p *swap.Proposal, validity time.Duration) {
	res.With("Proposal", p.ID).
		With("Status", string(p.Status)).
		With("From", p.SenderLedger).
		With("To", p.ReceiverLedger).
		With("Sender", string(p.Sender)).
		With("Receiver", string(p.Receiver)).
		With("Amount", p.Amount.String()).
		With("Expires", p.ExpiresAt(validity).Format(time.RFC3339))
}

func newSwapListCmd(a *app) *cobra.Command {
	var (
		status string
		who    string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List two-step swap proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				f := swap.Filter{Principal: principal(who), Limit: limit}
				if status != "" {
					st, err := swap.ParseStatus(status)
					if err != nil {
						return err
					}
					f.Status = st
				}
				ps, err := env.Node.Proposals(ctx, f)
				if err != nil {
					return err
				}
				now, err := env.Node.Now(ctx)
				if err != nil {
					return err
				}
				return out.ProposalsTable(ps, env.Node.Swaps().Validity(), now).Render()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only proposals in this status (pending, executed, cancelled)")
	cmd.Flags().StringVar(&who, "principal", "", "only proposals sent or received by this principal")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of proposals (0 = all)")
	return cmd
}

func newSwapShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show one proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				p, err := env.Node.Proposal(ctx, id)
				if err != nil {
					return err
				}
				return out.ProposalKV(p, env.Node.Swaps().Validity()).Render()
			})
		},
	}
}
