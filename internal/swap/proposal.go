package swap

import (
	"fmt"
	"strings"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/ledger"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Status is the lifecycle state of a two-step proposal. PENDING moves to
// EXECUTED or CANCELLED exactly once.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuted  Status = "EXECUTED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusExecuted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown proposal status %q: %w", s, ledgererr.ErrInvalidInput)
}

// Proposal is a stored two-step swap.
type Proposal struct {
	ID                  uint64           `json:"id"`
	SenderLedger        string           `json:"sender_ledger"`
	ReceiverLedger      string           `json:"receiver_ledger"`
	SenderInstitution   string           `json:"sender_institution"`
	ReceiverInstitution string           `json:"receiver_institution"`
	Sender              access.Principal `json:"sender"`
	Receiver            access.Principal `json:"receiver"`
	Amount              ledger.Amount    `json:"amount"`
	Status              Status           `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Reason              string           `json:"reason,omitempty"`
}

// ExpiresAt returns the last instant at which the proposal can be accepted.
func (p *Proposal) ExpiresAt(validity time.Duration) time.Time {
	return p.CreatedAt.Add(validity)
}

// Expired reports whether now lies past the validity window.
func (p *Proposal) Expired(now time.Time, validity time.Duration) bool {
	return now.After(p.ExpiresAt(validity))
}

// Involves reports whether who is the sender or the receiver.
func (p *Proposal) Involves(who access.Principal) bool {
	return p.Sender == who || p.Receiver == who
}

// Filter narrows Proposals. Zero fields match everything.
type Filter struct {
	Status    Status
	Principal access.Principal
	Limit     int
}

func (f Filter) match(p *Proposal) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Principal != "" && !p.Involves(f.Principal) {
		return false
	}
	return true
}
