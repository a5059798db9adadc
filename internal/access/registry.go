// Package access implements the per-ledger role store and participant
// allow-list.
//
// Every role is governed by an admin role whose holders may grant and revoke
// it. Roles default to being governed by ADMIN, and ADMIN governs itself.
package access

import (
	"fmt"
	"strings"

	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/state"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Registry is the access registry of one ledger. It holds no state of its
// own; every call reads and writes through the given transaction.
type Registry struct {
	ledger string
}

// New returns the registry of ledger.
func New(ledger string) *Registry {
	return &Registry{ledger: ledger}
}

// Ledger returns the id of the ledger this registry belongs to.
func (r *Registry) Ledger() string {
	return r.ledger
}

func (r *Registry) roleKey(role Role, p Principal) string {
	return fmt.Sprintf("l/%s/role/%s/%s", r.ledger, role, p)
}

func (r *Registry) rolePrefix(role Role) string {
	return fmt.Sprintf("l/%s/role/%s/", r.ledger, role)
}

func (r *Registry) roleAdminKey(role Role) string {
	return fmt.Sprintf("l/%s/roleadmin/%s", r.ledger, role)
}

func (r *Registry) enabledKey(p Principal) string {
	return fmt.Sprintf("l/%s/enabled/%s", r.ledger, p)
}

func (r *Registry) emit(tx *state.Txn, kind string, fields map[string]any) {
	tx.Emit(state.Event{Kind: kind, Ledger: r.ledger, Fields: fields})
}

func checkRole(role Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q: %w", role, ledgererr.ErrInvalidInput)
	}
	return nil
}

// HasRole reports whether p holds role.
func (r *Registry) HasRole(tx *state.Txn, role Role, p Principal) (bool, error) {
	if err := checkRole(role); err != nil {
		return false, err
	}
	_, ok, err := tx.Get(r.roleKey(role, p))
	return ok, err
}

// RequireRole fails with ErrUnauthorized unless p holds role.
func (r *Registry) RequireRole(tx *state.Txn, role Role, p Principal) error {
	ok, err := r.HasRole(tx, role, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s lacks %s on %s: %w", p, role, r.ledger, ledgererr.ErrUnauthorized)
	}
	return nil
}

// RoleAdmin returns the role governing role.
func (r *Registry) RoleAdmin(tx *state.Txn, role Role) (Role, error) {
	if err := checkRole(role); err != nil {
		return "", err
	}
	data, ok, err := tx.Get(r.roleAdminKey(role))
	if err != nil {
		return "", err
	}
	if !ok {
		return Admin, nil
	}
	return Role(data), nil
}

// GrantRole adds p to role. caller must hold the admin role of role.
func (r *Registry) GrantRole(tx *state.Txn, caller Principal, role Role, p Principal) error {
	if err := r.requireAdminOf(tx, caller, role); err != nil {
		return err
	}
	return r.grant(tx, caller, role, p)
}

// Bootstrap grants role to p without an authorization check. It is used
// when a ledger is created and no administrator exists yet.
func (r *Registry) Bootstrap(tx *state.Txn, role Role, p Principal) error {
	if err := checkRole(role); err != nil {
		return err
	}
	return r.grant(tx, "", role, p)
}

func (r *Registry) grant(tx *state.Txn, sender Principal, role Role, p Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	has, err := r.HasRole(tx, role, p)
	if err != nil || has {
		return err
	}
	tx.Put(r.roleKey(role, p), []byte{1})
	r.emit(tx, events.KindRoleGranted, map[string]any{
		events.FieldRole:    string(role),
		events.FieldAccount: string(p),
		events.FieldSender:  string(sender),
	})
	return nil
}

// RevokeRole removes p from role. caller must hold the admin role of role.
func (r *Registry) RevokeRole(tx *state.Txn, caller Principal, role Role, p Principal) error {
	if err := r.requireAdminOf(tx, caller, role); err != nil {
		return err
	}
	return r.revoke(tx, caller, role, p)
}

// RenounceRole removes caller's own membership of role.
func (r *Registry) RenounceRole(tx *state.Txn, caller Principal, role Role) error {
	if err := checkRole(role); err != nil {
		return err
	}
	return r.revoke(tx, caller, role, caller)
}

func (r *Registry) revoke(tx *state.Txn, sender Principal, role Role, p Principal) error {
	has, err := r.HasRole(tx, role, p)
	if err != nil || !has {
		return err
	}
	tx.Delete(r.roleKey(role, p))
	r.emit(tx, events.KindRoleRevoked, map[string]any{
		events.FieldRole:    string(role),
		events.FieldAccount: string(p),
		events.FieldSender:  string(sender),
	})
	return nil
}

// SetRoleAdmin changes the role governing role. caller must hold the
// current admin role. ADMIN always governs itself.
func (r *Registry) SetRoleAdmin(tx *state.Txn, caller Principal, role, admin Role) error {
	if err := checkRole(admin); err != nil {
		return err
	}
	if role == Admin {
		return fmt.Errorf("the admin role of %s is fixed: %w", Admin, ledgererr.ErrInvalidInput)
	}
	if err := r.requireAdminOf(tx, caller, role); err != nil {
		return err
	}
	previous, err := r.RoleAdmin(tx, role)
	if err != nil || previous == admin {
		return err
	}
	if admin == Admin {
		tx.Delete(r.roleAdminKey(role))
	} else {
		tx.Put(r.roleAdminKey(role), []byte(admin))
	}
	r.emit(tx, events.KindRoleAdminChanged, map[string]any{
		events.FieldRole:              string(role),
		events.FieldPreviousAdminRole: string(previous),
		events.FieldNewAdminRole:      string(admin),
	})
	return nil
}

func (r *Registry) requireAdminOf(tx *state.Txn, caller Principal, role Role) error {
	admin, err := r.RoleAdmin(tx, role)
	if err != nil {
		return err
	}
	return r.RequireRole(tx, admin, caller)
}

// Members returns the holders of role in key order.
func (r *Registry) Members(tx *state.Txn, role Role) ([]Principal, error) {
	if err := checkRole(role); err != nil {
		return nil, err
	}
	prefix := r.rolePrefix(role)
	kvs, err := tx.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Principal, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, Principal(strings.TrimPrefix(kv.Key, prefix)))
	}
	return out, nil
}

// Enable adds p to the allow-list. caller must hold ACCESS.
func (r *Registry) Enable(tx *state.Txn, caller Principal, p Principal) error {
	if err := r.RequireRole(tx, Access, caller); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	tx.Put(r.enabledKey(p), []byte{1})
	r.emit(tx, events.KindEnabledAccount, map[string]any{events.FieldMember: string(p)})
	return nil
}

// Disable removes p from the allow-list. caller must hold ACCESS.
func (r *Registry) Disable(tx *state.Txn, caller Principal, p Principal) error {
	if err := r.RequireRole(tx, Access, caller); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	tx.Delete(r.enabledKey(p))
	r.emit(tx, events.KindDisabledAccount, map[string]any{events.FieldMember: string(p)})
	return nil
}

// IsEnabled reports whether p is on the allow-list.
func (r *Registry) IsEnabled(tx *state.Txn, p Principal) (bool, error) {
	_, ok, err := tx.Get(r.enabledKey(p))
	return ok, err
}

// RequireEnabled fails with ErrNotAuthorized unless p is on the allow-list.
func (r *Registry) RequireEnabled(tx *state.Txn, p Principal) error {
	ok, err := r.IsEnabled(tx, p)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not enabled on %s: %w", p, r.ledger, ledgererr.ErrNotAuthorized)
	}
	return nil
}

// Enabled returns every principal on the allow-list in key order.
func (r *Registry) Enabled(tx *state.Txn) ([]Principal, error) {
	prefix := fmt.Sprintf("l/%s/enabled/", r.ledger)
	kvs, err := tx.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Principal, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, Principal(strings.TrimPrefix(kv.Key, prefix)))
	}
	return out, nil
}
