package access

import (
	"fmt"
	"strings"

	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Role is a stable symbolic role identifier.
type Role string

const (
	Pauser  Role = "PAUSER"
	Minter  Role = "MINTER"
	Burner  Role = "BURNER"
	Mover   Role = "MOVER"
	Freezer Role = "FREEZER"
	Access  Role = "ACCESS"
	Admin   Role = "ADMIN"
)

// Roles returns every role in a fixed order.
func Roles() []Role {
	return []Role{Pauser, Minter, Burner, Mover, Freezer, Access, Admin}
}

// Valid reports whether r is one of the fixed role identifiers.
func (r Role) Valid() bool {
	switch r {
	case Pauser, Minter, Burner, Mover, Freezer, Access, Admin:
		return true
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q: %w", s, ledgererr.ErrInvalidInput)
	}
	return r, nil
}

// Principal identifies an account holder or operator.
type Principal string

// Validate rejects empty principals and principals containing '/'.
func (p Principal) Validate() error {
	if p == "" {
		return fmt.Errorf("empty principal: %w", ledgererr.ErrInvalidInput)
	}
	if strings.ContainsAny(string(p), "/\x00") {
		return fmt.Errorf("principal %q contains a reserved character: %w", p, ledgererr.ErrInvalidInput)
	}
	return nil
}
