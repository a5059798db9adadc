package ledger

import (
	"fmt"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Kind selects between the central-bank ledger and a participant ledger.
type Kind string

const (
	KindCBDC        Kind = "cbdc"
	KindParticipant Kind = "participant"
)

// ParseKind parses a ledger kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCBDC, KindParticipant:
		return k, nil
	}
	return "", fmt.Errorf("unknown ledger kind %q: %w", s, ledgererr.ErrInvalidInput)
}

// Institution is the metadata a participant ledger carries. ID is fixed at
// creation; ReserveAccount names the institution's account on the CBDC
// ledger and may be changed by the ledger's ADMIN.
type Institution struct {
	ID             string           `json:"id"`
	ReserveAccount access.Principal `json:"reserve_account"`
}

// Meta is the persisted description of one ledger.
type Meta struct {
	ID          string           `json:"id"`
	Kind        Kind             `json:"kind"`
	Authority   access.Principal `json:"authority"`
	Admin       access.Principal `json:"admin"`
	Paused      bool             `json:"paused"`
	Decimals    int              `json:"decimals"`
	Institution *Institution     `json:"institution,omitempty"`
	TotalSupply Amount           `json:"total_supply"`
	Minted      Amount           `json:"minted"`
	Burned      Amount           `json:"burned"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IsParticipant reports whether the ledger is a participant ledger.
func (m *Meta) IsParticipant() bool {
	return m.Kind == KindParticipant && m.Institution != nil
}

// Account is one principal's holdings on a ledger.
type Account struct {
	Principal access.Principal `json:"-"`
	Balance   Amount           `json:"balance"`
	Frozen    Amount           `json:"frozen"`
}

// Spendable returns the balance not held frozen.
func (a Account) Spendable() Amount {
	return a.Balance - a.Frozen
}
