// Package ledger implements a permissioned token ledger: role-gated
// issuance, destruction and movement, allowance-based delegated spending,
// frozen-balance accounting, pause control and participant allow-listing.
//
// The same type serves the central-bank ledger and every participant
// ledger; participant ledgers additionally carry Institution metadata.
// Ledger values are handles. All state lives in the transaction passed to
// each call, so a failed call leaves nothing behind once its transaction is
// dropped.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/state"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const metaPrefix = "ledger/"

// Ledger is a handle on one ledger instance.
type Ledger struct {
	id     string
	access *access.Registry
}

// Params describes a ledger to create.
type Params struct {
	ID          string
	Kind        Kind
	Authority   access.Principal
	Admin       access.Principal
	Institution *Institution
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ledger id: %w", ledgererr.ErrInvalidInput)
	}
	if strings.ContainsAny(id, "/ \t\n\x00") {
		return fmt.Errorf("ledger id %q contains a reserved character: %w", id, ledgererr.ErrInvalidInput)
	}
	return nil
}

func (p Params) validate() error {
	if err := validateID(p.ID); err != nil {
		return err
	}
	if _, err := ParseKind(string(p.Kind)); err != nil {
		return err
	}
	if err := p.Authority.Validate(); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if err := p.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	switch p.Kind {
	case KindParticipant:
		if p.Institution == nil || p.Institution.ID == "" {
			return fmt.Errorf("participant ledger %s needs an institution id: %w", p.ID, ledgererr.ErrInvalidInput)
		}
		if err := p.Institution.ReserveAccount.Validate(); err != nil {
			return fmt.Errorf("reserve account: %w", err)
		}
	case KindCBDC:
		if p.Institution != nil {
			return fmt.Errorf("cbdc ledger %s cannot carry an institution: %w", p.ID, ledgererr.ErrInvalidInput)
		}
	}
	return nil
}

// Create writes a new ledger. The admin receives ADMIN; the authority
// receives every operational role.
func Create(tx *state.Txn, p Params) (*Ledger, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	l := handle(p.ID)
	if _, ok, err := tx.Get(l.metaKey()); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("ledger %s: %w", p.ID, ledgererr.ErrAlreadyExists)
	}

	meta := Meta{
		ID:        p.ID,
		Kind:      p.Kind,
		Authority: p.Authority,
		Admin:     p.Admin,
		Decimals:  Decimals,
		CreatedAt: tx.Now(),
	}
	if p.Institution != nil {
		inst := *p.Institution
		meta.Institution = &inst
	}
	if err := l.putMeta(tx, &meta); err != nil {
		return nil, err
	}

	fields := map[string]any{
		events.FieldLedgerKind: string(p.Kind),
		events.FieldAccount:    string(p.Authority),
	}
	if meta.Institution != nil {
		fields[events.FieldInstitution] = meta.Institution.ID
	}
	tx.Emit(state.Event{Kind: events.KindLedgerCreated, Ledger: p.ID, Fields: fields})

	if err := l.access.Bootstrap(tx, access.Admin, p.Admin); err != nil {
		return nil, err
	}
	for _, role := range []access.Role{access.Pauser, access.Minter, access.Burner, access.Mover, access.Freezer, access.Access} {
		if err := l.access.Bootstrap(tx, role, p.Authority); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Open returns the ledger id, failing with ErrNotFound if it does not exist.
func Open(tx *state.Txn, id string) (*Ledger, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	l := handle(id)
	if _, err := l.Meta(tx); err != nil {
		return nil, err
	}
	return l, nil
}

// List returns the metadata of every ledger ordered by id.
func List(tx *state.Txn) ([]Meta, error) {
	kvs, err := tx.Scan(metaPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(kvs))
	for _, kv := range kvs {
		var m Meta
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func handle(id string) *Ledger {
	return &Ledger{id: id, access: access.New(id)}
}

// ID returns the ledger id.
func (l *Ledger) ID() string { return l.id }

// Access returns the ledger's access registry.
func (l *Ledger) Access() *access.Registry { return l.access }

func (l *Ledger) metaKey() string { return metaPrefix + l.id }

func (l *Ledger) accountKey(p access.Principal) string {
	return fmt.Sprintf("l/%s/acct/%s", l.id, p)
}

func (l *Ledger) allowanceKey(owner, spender access.Principal) string {
	return fmt.Sprintf("l/%s/allow/%s/%s", l.id, owner, spender)
}

// Meta returns the ledger's metadata.
func (l *Ledger) Meta(tx *state.Txn) (*Meta, error) {
	var m Meta
	ok, err := tx.GetJSON(l.metaKey(), &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ledger %s: %w", l.id, ledgererr.ErrNotFound)
	}
	return &m, nil
}

func (l *Ledger) putMeta(tx *state.Txn, m *Meta) error {
	return tx.PutJSON(l.metaKey(), m)
}

func (l *Ledger) emit(tx *state.Txn, kind string, fields map[string]any) {
	tx.Emit(state.Event{Kind: kind, Ledger: l.id, Fields: fields})
}

// Account returns p's holdings. Unknown principals hold nothing.
func (l *Ledger) Account(tx *state.Txn, p access.Principal) (Account, error) {
	acct := Account{Principal: p}
	if _, err := tx.GetJSON(l.accountKey(p), &acct); err != nil {
		return Account{}, err
	}
	acct.Principal = p
	return acct, nil
}

func (l *Ledger) putAccount(tx *state.Txn, acct Account) error {
	if acct.Balance == 0 && acct.Frozen == 0 {
		tx.Delete(l.accountKey(acct.Principal))
		return nil
	}
	return tx.PutJSON(l.accountKey(acct.Principal), acct)
}

// Accounts returns every account with a non-zero balance or frozen amount.
func (l *Ledger) Accounts(tx *state.Txn) ([]Account, error) {
	prefix := fmt.Sprintf("l/%s/acct/", l.id)
	kvs, err := tx.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(kvs))
	for _, kv := range kvs {
		acct, err := l.Account(tx, access.Principal(strings.TrimPrefix(kv.Key, prefix)))
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

// BalanceOf returns p's balance, frozen part included.
func (l *Ledger) BalanceOf(tx *state.Txn, p access.Principal) (Amount, error) {
	acct, err := l.Account(tx, p)
	return acct.Balance, err
}

// FrozenBalanceOf returns the frozen part of p's balance.
func (l *Ledger) FrozenBalanceOf(tx *state.Txn, p access.Principal) (Amount, error) {
	acct, err := l.Account(tx, p)
	return acct.Frozen, err
}

// TotalSupply returns the amount in circulation.
func (l *Ledger) TotalSupply(tx *state.Txn) (Amount, error) {
	m, err := l.Meta(tx)
	if err != nil {
		return 0, err
	}
	return m.TotalSupply, nil
}

// Decimals returns the ledger's fixed precision.
func (l *Ledger) Decimals() int { return Decimals }

// VerifyAccount reports whether p is on the ledger's allow-list.
func (l *Ledger) VerifyAccount(tx *state.Txn, p access.Principal) (bool, error) {
	return l.access.IsEnabled(tx, p)
}

// Allowance returns how much spender may still spend on behalf of owner.
func (l *Ledger) Allowance(tx *state.Txn, owner, spender access.Principal) (Amount, error) {
	n, err := tx.GetInt64(l.allowanceKey(owner, spender))
	return Amount(n), err
}

// Institution returns the participant metadata, or ErrInvalidInput for the
// CBDC ledger.
func (l *Ledger) Institution(tx *state.Txn) (Institution, error) {
	m, err := l.Meta(tx)
	if err != nil {
		return Institution{}, err
	}
	if !m.IsParticipant() {
		return Institution{}, fmt.Errorf("ledger %s is not a participant ledger: %w", l.id, ledgererr.ErrInvalidInput)
	}
	return *m.Institution, nil
}

// ReserveAccount returns the participant's reserve account on the CBDC ledger.
func (l *Ledger) ReserveAccount(tx *state.Txn) (access.Principal, error) {
	inst, err := l.Institution(tx)
	return inst.ReserveAccount, err
}
