package ledger

import (
	"fmt"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/state"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// side is one end of a balance change. The zero side is the supply end of a
// mint or burn and never names an account.
type side struct {
	p       access.Principal
	account bool
}

func holder(p access.Principal) side { return side{p: p, account: true} }

var supply side

// validate rejects the first principal that is not a usable identifier.
func validate(ps ...access.Principal) error {
	for _, p := range ps {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) requireNotPaused(tx *state.Txn) (*Meta, error) {
	m, err := l.Meta(tx)
	if err != nil {
		return nil, err
	}
	if m.Paused {
		return nil, fmt.Errorf("ledger %s: %w", l.id, ledgererr.ErrPaused)
	}
	return m, nil
}

// beforeTransfer is the single guard on every balance-changing path. It
// rejects a paused ledger, then a debit larger than the spendable balance,
// then, when checkAccess is set, any account endpoint that is not enabled.
func (l *Ledger) beforeTransfer(tx *state.Txn, from, to side, amount Amount, checkAccess bool) error {
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	if from.account {
		acct, err := l.Account(tx, from.p)
		if err != nil {
			return err
		}
		if acct.Spendable() < amount {
			return fmt.Errorf("%s has %s spendable on %s, needs %s: %w",
				from.p, acct.Spendable(), l.id, amount, ledgererr.ErrInsufficientBalance)
		}
	}
	if !checkAccess {
		return nil
	}
	for _, end := range []side{from, to} {
		if !end.account {
			continue
		}
		if err := l.access.RequireEnabled(tx, end.p); err != nil {
			return err
		}
	}
	return nil
}

// update moves amount from one side to the other after beforeTransfer has
// passed, keeping the supply counters in step, and emits Transfer.
func (l *Ledger) update(tx *state.Txn, from, to side, amount Amount) error {
	if !from.account && !to.account {
		return fmt.Errorf("balance change on %s has no account: %w", l.id, ledgererr.ErrInvalidInput)
	}
	if from.account {
		acct, err := l.Account(tx, from.p)
		if err != nil {
			return err
		}
		acct.Balance -= amount
		if err := l.putAccount(tx, acct); err != nil {
			return err
		}
	}
	if to.account {
		acct, err := l.Account(tx, to.p)
		if err != nil {
			return err
		}
		if acct.Balance, err = add(acct.Balance, amount); err != nil {
			return err
		}
		if err := l.putAccount(tx, acct); err != nil {
			return err
		}
	}

	if !from.account || !to.account {
		m, err := l.Meta(tx)
		if err != nil {
			return err
		}
		if !from.account {
			if m.TotalSupply, err = add(m.TotalSupply, amount); err != nil {
				return err
			}
			if m.Minted, err = add(m.Minted, amount); err != nil {
				return err
			}
		} else {
			m.TotalSupply -= amount
			if m.Burned, err = add(m.Burned, amount); err != nil {
				return err
			}
		}
		if err := l.putMeta(tx, m); err != nil {
			return err
		}
	}

	l.emit(tx, events.KindTransfer, map[string]any{
		events.FieldFrom:   string(from.p),
		events.FieldTo:     string(to.p),
		events.FieldAmount: int64(amount),
	})
	return nil
}

// Mint creates amount in to's account. caller must hold MINTER and to must
// be enabled.
func (l *Ledger) Mint(tx *state.Txn, caller, to access.Principal, amount Amount) error {
	if err := validate(caller, to); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Minter, caller); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, supply, holder(to), amount, true); err != nil {
		return err
	}
	return l.update(tx, supply, holder(to), amount)
}

// Burn destroys amount of caller's own balance. caller must hold BURNER.
func (l *Ledger) Burn(tx *state.Txn, caller access.Principal, amount Amount) error {
	if err := validate(caller); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Burner, caller); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, holder(caller), supply, amount, true); err != nil {
		return err
	}
	return l.update(tx, holder(caller), supply, amount)
}

// BurnFrom destroys amount of owner's balance, consuming caller's allowance
// from owner.
func (l *Ledger) BurnFrom(tx *state.Txn, caller, owner access.Principal, amount Amount) error {
	if err := validate(caller, owner); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.spendAllowance(tx, owner, caller, amount); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, holder(owner), supply, amount, true); err != nil {
		return err
	}
	return l.update(tx, holder(owner), supply, amount)
}

// Move transfers amount between any two accounts without allowance or
// allow-list checks. caller must hold MOVER.
func (l *Ledger) Move(tx *state.Txn, caller, from, to access.Principal, amount Amount) error {
	if err := validate(caller, from, to); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Mover, caller); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, holder(from), holder(to), amount, false); err != nil {
		return err
	}
	return l.update(tx, holder(from), holder(to), amount)
}

// Transfer sends amount from caller to to. Both must be enabled.
func (l *Ledger) Transfer(tx *state.Txn, caller, to access.Principal, amount Amount) error {
	if err := validate(caller, to); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, holder(caller), holder(to), amount, true); err != nil {
		return err
	}
	return l.update(tx, holder(caller), holder(to), amount)
}

// TransferFrom sends amount from from to to, consuming caller's allowance
// from from. Both endpoints must be enabled.
func (l *Ledger) TransferFrom(tx *state.Txn, caller, from, to access.Principal, amount Amount) error {
	if err := validate(caller, from, to); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.spendAllowance(tx, from, caller, amount); err != nil {
		return err
	}
	if err := l.beforeTransfer(tx, holder(from), holder(to), amount, true); err != nil {
		return err
	}
	return l.update(tx, holder(from), holder(to), amount)
}

func (l *Ledger) spendAllowance(tx *state.Txn, owner, spender access.Principal, amount Amount) error {
	if err := amount.validate(); err != nil {
		return err
	}
	current, err := l.Allowance(tx, owner, spender)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%s may spend %s of %s on %s, needs %s: %w",
			spender, current, owner, l.id, amount, ledgererr.ErrInsufficientAllowance)
	}
	l.setAllowance(tx, owner, spender, current-amount)
	return nil
}

func (l *Ledger) setAllowance(tx *state.Txn, owner, spender access.Principal, amount Amount) {
	tx.PutInt64(l.allowanceKey(owner, spender), int64(amount))
	l.emit(tx, events.KindApproval, map[string]any{
		events.FieldOwner:   string(owner),
		events.FieldSpender: string(spender),
		events.FieldAmount:  int64(amount),
	})
}

// Approve sets spender's allowance over caller's balance to amount.
func (l *Ledger) Approve(tx *state.Txn, caller, spender access.Principal, amount Amount) error {
	if err := validate(caller, spender); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	l.setAllowance(tx, caller, spender, amount)
	return nil
}

// IncreaseAllowance raises spender's allowance over caller's balance.
func (l *Ledger) IncreaseAllowance(tx *state.Txn, caller, spender access.Principal, amount Amount) error {
	if err := validate(caller, spender); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	current, err := l.Allowance(tx, caller, spender)
	if err != nil {
		return err
	}
	next, err := add(current, amount)
	if err != nil {
		return err
	}
	l.setAllowance(tx, caller, spender, next)
	return nil
}

// DecreaseAllowance lowers spender's allowance over caller's balance,
// failing with ErrAllowanceUnderflow if it would go below zero.
func (l *Ledger) DecreaseAllowance(tx *state.Txn, caller, spender access.Principal, amount Amount) error {
	if err := validate(caller, spender); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	current, err := l.Allowance(tx, caller, spender)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("allowance of %s over %s is %s, cannot decrease by %s: %w",
			spender, caller, current, amount, ledgererr.ErrAllowanceUnderflow)
	}
	l.setAllowance(tx, caller, spender, current-amount)
	return nil
}

// IncreaseFrozenBalance excludes amount more of from's balance from
// spending. The frozen amount may not exceed the balance. caller must hold
// FREEZER.
func (l *Ledger) IncreaseFrozenBalance(tx *state.Txn, caller, from access.Principal, amount Amount) error {
	if err := validate(caller, from); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Freezer, caller); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	acct, err := l.Account(tx, from)
	if err != nil {
		return err
	}
	if acct.Spendable() < amount {
		return fmt.Errorf("%s has %s unfrozen on %s, cannot freeze %s: %w",
			from, acct.Spendable(), l.id, amount, ledgererr.ErrInsufficientBalance)
	}
	acct.Frozen += amount
	return l.setFrozen(tx, acct)
}

// DecreaseFrozenBalance releases amount of from's frozen balance. caller
// must hold FREEZER.
func (l *Ledger) DecreaseFrozenBalance(tx *state.Txn, caller, from access.Principal, amount Amount) error {
	if err := validate(caller, from); err != nil {
		return err
	}
	if _, err := l.requireNotPaused(tx); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Freezer, caller); err != nil {
		return err
	}
	if err := amount.validate(); err != nil {
		return err
	}
	acct, err := l.Account(tx, from)
	if err != nil {
		return err
	}
	if acct.Frozen < amount {
		return fmt.Errorf("%s has %s frozen on %s, cannot release %s: %w",
			from, acct.Frozen, l.id, amount, ledgererr.ErrInsufficientFrozenBalance)
	}
	acct.Frozen -= amount
	return l.setFrozen(tx, acct)
}

func (l *Ledger) setFrozen(tx *state.Txn, acct Account) error {
	if err := l.putAccount(tx, acct); err != nil {
		return err
	}
	l.emit(tx, events.KindFrozenBalance, map[string]any{
		events.FieldWallet: string(acct.Principal),
		events.FieldFrozen: int64(acct.Frozen),
	})
	return nil
}

// Pause stops every mutating operation except Unpause. caller must hold PAUSER.
func (l *Ledger) Pause(tx *state.Txn, caller access.Principal) error {
	if err := validate(caller); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Pauser, caller); err != nil {
		return err
	}
	m, err := l.requireNotPaused(tx)
	if err != nil {
		return err
	}
	m.Paused = true
	if err := l.putMeta(tx, m); err != nil {
		return err
	}
	l.emit(tx, events.KindPaused, map[string]any{events.FieldAccount: string(caller)})
	return nil
}

// Unpause resumes a paused ledger. caller must hold PAUSER.
func (l *Ledger) Unpause(tx *state.Txn, caller access.Principal) error {
	if err := validate(caller); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Pauser, caller); err != nil {
		return err
	}
	m, err := l.Meta(tx)
	if err != nil {
		return err
	}
	if !m.Paused {
		return fmt.Errorf("ledger %s: %w", l.id, ledgererr.ErrNotPaused)
	}
	m.Paused = false
	if err := l.putMeta(tx, m); err != nil {
		return err
	}
	l.emit(tx, events.KindUnpaused, map[string]any{events.FieldAccount: string(caller)})
	return nil
}

// SetReserveAccount points the participant ledger at a new reserve account
// on the CBDC ledger. caller must hold ADMIN.
func (l *Ledger) SetReserveAccount(tx *state.Txn, caller, reserve access.Principal) error {
	if err := validate(caller, reserve); err != nil {
		return err
	}
	if err := l.access.RequireRole(tx, access.Admin, caller); err != nil {
		return err
	}
	m, err := l.Meta(tx)
	if err != nil {
		return err
	}
	if !m.IsParticipant() {
		return fmt.Errorf("ledger %s has no reserve account: %w", l.id, ledgererr.ErrInvalidInput)
	}
	previous := m.Institution.ReserveAccount
	if previous == reserve {
		return nil
	}
	m.Institution.ReserveAccount = reserve
	if err := l.putMeta(tx, m); err != nil {
		return err
	}
	l.emit(tx, events.KindReserveAccountChanged, map[string]any{
		events.FieldPrevious: string(previous),
		events.FieldCurrent:  string(reserve),
	})
	return nil
}
