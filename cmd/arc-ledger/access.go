package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/cli"
)

func newAccessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage roles and the participant allow-list",
		Long: `Manage roles and the participant allow-list of a ledger.

Roles: PAUSER, MINTER, BURNER, MOVER, FREEZER, ACCESS, ADMIN.`,
	}
	cmd.AddCommand(
		roleCmd(a, "grant <ledger> <role> <principal>", "Grant a role (admin of the role)", "role granted",
			func(ctx context.Context, env *cli.Env, caller access.Principal, ref string, role access.Role, p access.Principal) error {
				return env.Node.GrantRole(ctx, ref, caller, role, p)
			}),
		roleCmd(a, "revoke <ledger> <role> <principal>", "Revoke a role (admin of the role)", "role revoked",
			func(ctx context.Context, env *cli.Env, caller access.Principal, ref string, role access.Role, p access.Principal) error {
				return env.Node.RevokeRole(ctx, ref, caller, role, p)
			}),
		newRenounceCmd(a),
		newSetRoleAdminCmd(a),
		newHasRoleCmd(a),
		newMembersCmd(a),
		refCmd(a, "enable <ledger> <principal>", "Add a principal to the allow-list (ACCESS)", 2, "account enabled",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error {
				return env.Node.Enable(ctx, args[0], caller, principal(args[1]))
			}),
		refCmd(a, "disable <ledger> <principal>", "Remove a principal from the allow-list (ACCESS)", 2, "account disabled",
			func(ctx context.Context, env *cli.Env, caller access.Principal, args []string) error {
				return env.Node.Disable(ctx, args[0], caller, principal(args[1]))
			}),
	)
	return cmd
}

func roleCmd(a *app, use, short, message string,
	fn func(ctx context.Context, env *cli.Env, caller access.Principal, ref string, role access.Role, p access.Principal) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, message, func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				role, err := access.ParseRole(args[1])
				if err != nil {
					return err
				}
				if err := fn(ctx, env, caller, args[0], role, principal(args[2])); err != nil {
					return err
				}
				res.With("Ledger", args[0]).With("Role", string(role)).With("Principal", args[2])
				return nil
			})
		},
	}
}

func newRenounceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renounce <ledger> <role>",
		Short: "Give up a role held by the caller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "role renounced", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				role, err := access.ParseRole(args[1])
				if err != nil {
					return err
				}
				if err := env.Node.RenounceRole(ctx, args[0], caller, role); err != nil {
					return err
				}
				res.With("Ledger", args[0]).With("Role", string(role))
				return nil
			})
		},
	}
}

func newSetRoleAdminCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-admin <ledger> <role> <admin-role>",
		Short: "Change the role that governs a role (admin of the role)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, "role admin changed", func(ctx context.Context, env *cli.Env, caller access.Principal, res *cli.Result) error {
				role, err := access.ParseRole(args[1])
				if err != nil {
					return err
				}
				admin, err := access.ParseRole(args[2])
				if err != nil {
					return err
				}
				if err := env.Node.SetRoleAdmin(ctx, args[0], caller, role, admin); err != nil {
					return err
				}
				res.With("Ledger", args[0]).With("Role", string(role)).With("Admin Role", string(admin))
				return nil
			})
		},
	}
}

func newHasRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "has-role <ledger> <role> <principal>",
		Short: "Report whether a principal holds a role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				role, err := access.ParseRole(args[1])
				if err != nil {
					return err
				}
				ok, err := env.Node.HasRole(ctx, args[0], role, principal(args[2]))
				if err != nil {
					return err
				}
				return out.KV("has-role").
					Set("Ledger", args[0]).
					Set("Role", string(role)).
					Set("Principal", args[2]).
					Set("Has Role", ok).
					Render()
			})
		},
	}
}

func newMembersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "members <ledger> [role]",
		Short: "List the holders of a role, or the allow-list when no role is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.query(cmd, func(ctx context.Context, env *cli.Env, out *cli.Output) error {
				info, err := env.Node.Ledger(ctx, args[0])
				if err != nil {
					return err
				}
				members := info.Enabled
				if len(args) == 2 {
					role, err := access.ParseRole(args[1])
					if err != nil {
						return err
					}
					members = info.Roles[role]
				}
				list := out.StringList("members")
				for _, p := range members {
					list.Add(string(p))
				}
				return list.Render()
			})
		},
	}
}
