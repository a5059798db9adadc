package node

import (
	"context"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/state"
)

// onLedger resolves ref, by ledger id or directory key, and runs fn on it
// as one operation.
func (n *Node) onLedger(ctx context.Context, name, ref string, fn func(tx *state.Txn, l *ledger.Ledger) error) error {
	return n.Apply(ctx, name, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		return fn(tx, l)
	})
}

func openRef(tx *state.Txn, ref string) (*ledger.Ledger, error) {
	id, err := directory.Resolve(tx, ref)
	if err != nil {
		return nil, err
	}
	return ledger.Open(tx, id)
}

// CreateLedger creates a ledger outside genesis.
func (n *Node) CreateLedger(ctx context.Context, p ledger.Params) error {
	return n.Apply(ctx, "ledger.create", func(tx *state.Txn) error {
		_, err := ledger.Create(tx, p)
		return err
	})
}

func (n *Node) Mint(ctx context.Context, ref string, caller, to access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.mint", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Mint(tx, caller, to, amount)
	})
}

func (n *Node) Burn(ctx context.Context, ref string, caller access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.burn", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Burn(tx, caller, amount)
	})
}

func (n *Node) BurnFrom(ctx context.Context, ref string, caller, owner access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.burn_from", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.BurnFrom(tx, caller, owner, amount)
	})
}

func (n *Node) Move(ctx context.Context, ref string, caller, from, to access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.move", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Move(tx, caller, from, to, amount)
	})
}

func (n *Node) Transfer(ctx context.Context, ref string, caller, to access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.transfer", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Transfer(tx, caller, to, amount)
	})
}

func (n *Node) TransferFrom(ctx context.Context, ref string, caller, from, to access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.transfer_from", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.TransferFrom(tx, caller, from, to, amount)
	})
}

func (n *Node) Approve(ctx context.Context, ref string, caller, spender access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.approve", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Approve(tx, caller, spender, amount)
	})
}

func (n *Node) IncreaseAllowance(ctx context.Context, ref string, caller, spender access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.increase_allowance", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.IncreaseAllowance(tx, caller, spender, amount)
	})
}

func (n *Node) DecreaseAllowance(ctx context.Context, ref string, caller, spender access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.decrease_allowance", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.DecreaseAllowance(tx, caller, spender, amount)
	})
}

func (n *Node) IncreaseFrozenBalance(ctx context.Context, ref string, caller, from access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.freeze", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.IncreaseFrozenBalance(tx, caller, from, amount)
	})
}

func (n *Node) DecreaseFrozenBalance(ctx context.Context, ref string, caller, from access.Principal, amount ledger.Amount) error {
	return n.onLedger(ctx, "ledger.unfreeze", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.DecreaseFrozenBalance(tx, caller, from, amount)
	})
}

func (n *Node) Pause(ctx context.Context, ref string, caller access.Principal) error {
	return n.onLedger(ctx, "ledger.pause", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Pause(tx, caller)
	})
}

func (n *Node) Unpause(ctx context.Context, ref string, caller access.Principal) error {
	return n.onLedger(ctx, "ledger.unpause", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Unpause(tx, caller)
	})
}

func (n *Node) SetReserveAccount(ctx context.Context, ref string, caller, reserve access.Principal) error {
	return n.onLedger(ctx, "ledger.set_reserve_account", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.SetReserveAccount(tx, caller, reserve)
	})
}

// --- Access registry ---

func (n *Node) GrantRole(ctx context.Context, ref string, caller access.Principal, role access.Role, p access.Principal) error {
	return n.onLedger(ctx, "access.grant_role", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().GrantRole(tx, caller, role, p)
	})
}

func (n *Node) RevokeRole(ctx context.Context, ref string, caller access.Principal, role access.Role, p access.Principal) error {
	return n.onLedger(ctx, "access.revoke_role", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().RevokeRole(tx, caller, role, p)
	})
}

func (n *Node) RenounceRole(ctx context.Context, ref string, caller access.Principal, role access.Role) error {
	return n.onLedger(ctx, "access.renounce_role", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().RenounceRole(tx, caller, role)
	})
}

func (n *Node) SetRoleAdmin(ctx context.Context, ref string, caller access.Principal, role, admin access.Role) error {
	return n.onLedger(ctx, "access.set_role_admin", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().SetRoleAdmin(tx, caller, role, admin)
	})
}

func (n *Node) Enable(ctx context.Context, ref string, caller, p access.Principal) error {
	return n.onLedger(ctx, "access.enable", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().Enable(tx, caller, p)
	})
}

func (n *Node) Disable(ctx context.Context, ref string, caller, p access.Principal) error {
	return n.onLedger(ctx, "access.disable", ref, func(tx *state.Txn, l *ledger.Ledger) error {
		return l.Access().Disable(tx, caller, p)
	})
}

// --- Directory ---

func (n *Node) SetDirectoryEntry(ctx context.Context, caller access.Principal, key, ledgerID string) error {
	return n.Apply(ctx, "directory.set", func(tx *state.Txn) error {
		return directory.Set(tx, caller, key, ledgerID)
	})
}

func (n *Node) RemoveDirectoryEntry(ctx context.Context, caller access.Principal, key string) error {
	return n.Apply(ctx, "directory.remove", func(tx *state.Txn) error {
		return directory.Remove(tx, caller, key)
	})
}

// --- Queries ---

// LedgerInfo is a read-only snapshot of one ledger.
type LedgerInfo struct {
	Meta     ledger.Meta
	Accounts []ledger.Account
	Enabled  []access.Principal
	Roles    map[access.Role][]access.Principal
}

// Ledgers returns the metadata of every ledger.
func (n *Node) Ledgers(ctx context.Context) ([]ledger.Meta, error) {
	var out []ledger.Meta
	err := n.View(ctx, func(tx *state.Txn) error {
		var err error
		out, err = ledger.List(tx)
		return err
	})
	return out, err
}

// Ledger returns a snapshot of the ledger ref names.
func (n *Node) Ledger(ctx context.Context, ref string) (*LedgerInfo, error) {
	var info LedgerInfo
	err := n.View(ctx, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		meta, err := l.Meta(tx)
		if err != nil {
			return err
		}
		info.Meta = *meta
		if info.Accounts, err = l.Accounts(tx); err != nil {
			return err
		}
		if info.Enabled, err = l.Access().Enabled(tx); err != nil {
			return err
		}
		info.Roles = make(map[access.Role][]access.Principal)
		for _, role := range access.Roles() {
			members, err := l.Access().Members(tx, role)
			if err != nil {
				return err
			}
			info.Roles[role] = members
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Account returns p's holdings on ref.
func (n *Node) Account(ctx context.Context, ref string, p access.Principal) (ledger.Account, error) {
	var acct ledger.Account
	err := n.View(ctx, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		acct, err = l.Account(tx, p)
		return err
	})
	return acct, err
}

// Allowance returns spender's remaining allowance over owner's balance on ref.
func (n *Node) Allowance(ctx context.Context, ref string, owner, spender access.Principal) (ledger.Amount, error) {
	var a ledger.Amount
	err := n.View(ctx, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		a, err = l.Allowance(tx, owner, spender)
		return err
	})
	return a, err
}

// VerifyAccount reports whether p is enabled on ref.
func (n *Node) VerifyAccount(ctx context.Context, ref string, p access.Principal) (bool, error) {
	var ok bool
	err := n.View(ctx, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		ok, err = l.VerifyAccount(tx, p)
		return err
	})
	return ok, err
}

// HasRole reports whether p holds role on ref.
func (n *Node) HasRole(ctx context.Context, ref string, role access.Role, p access.Principal) (bool, error) {
	var ok bool
	err := n.View(ctx, func(tx *state.Txn) error {
		l, err := openRef(tx, ref)
		if err != nil {
			return err
		}
		ok, err = l.Access().HasRole(tx, role, p)
		return err
	})
	return ok, err
}

// Lookup returns the ledger id key maps to.
func (n *Node) Lookup(ctx context.Context, key string) (string, error) {
	var id string
	err := n.View(ctx, func(tx *state.Txn) error {
		var err error
		id, err = directory.Lookup(tx, key)
		return err
	})
	return id, err
}

// DirectoryEntries returns every directory mapping.
func (n *Node) DirectoryEntries(ctx context.Context) ([]directory.Entry, error) {
	var out []directory.Entry
	err := n.View(ctx, func(tx *state.Txn) error {
		var err error
		out, err = directory.Entries(tx)
		return err
	})
	return out, err
}
