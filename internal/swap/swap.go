// Package swap settles tokenized-deposit exchanges between participant
// ledgers.
//
// A swap burns the sender's deposit on the sender ledger, moves the same
// amount of central-bank money between the two institutions' reserve
// accounts on the CBDC ledger, and mints the deposit for the receiver on
// the receiver ledger. The coordinator acts under its own principal, which
// holds MOVER on the CBDC ledger and MINTER on every participant ledger,
// and spends the sender's allowance on the sender ledger.
//
// All three steps write to the caller's transaction, so either the whole
// swap commits or nothing does.
package swap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/events"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/state"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// DefaultValidity is how long a two-step proposal stays acceptable.
const DefaultValidity = 7 * 24 * time.Hour

// DefaultPrincipal is the coordinator principal used when genesis names none.
const DefaultPrincipal access.Principal = "swap"

const (
	settingsKey    = "swap/coordinator"
	seqKey         = "swap/seq"
	proposalPrefix = "swap/p/"
)

func proposalKey(id uint64) string {
	return fmt.Sprintf("%s%020d", proposalPrefix, id)
}

// Settings is the persisted coordinator configuration.
type Settings struct {
	Principal access.Principal `json:"principal"`
	CBDC      string           `json:"cbdc"`
}

// Coordinator runs one-step and two-step swaps.
type Coordinator struct {
	validity time.Duration
}

// New returns a coordinator enforcing validity on two-step proposals.
// A non-positive validity selects DefaultValidity.
func New(validity time.Duration) *Coordinator {
	if validity <= 0 {
		validity = DefaultValidity
	}
	return &Coordinator{validity: validity}
}

// Validity returns the proposal validity window.
func (c *Coordinator) Validity() time.Duration {
	return c.validity
}

// Configure records the coordinator principal and the CBDC ledger. It does
// not grant roles; genesis does that when it creates the ledgers.
func Configure(tx *state.Txn, s Settings) error {
	if err := s.Principal.Validate(); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	if _, err := ledger.Open(tx, s.CBDC); err != nil {
		return fmt.Errorf("cbdc ledger: %w", err)
	}
	return tx.PutJSON(settingsKey, s)
}

// LoadSettings returns the coordinator configuration.
func LoadSettings(tx *state.Txn) (Settings, error) {
	var s Settings
	ok, err := tx.GetJSON(settingsKey, &s)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return Settings{}, fmt.Errorf("swap coordinator not configured: %w", ledgererr.ErrNotFound)
	}
	return s, nil
}

// leg is one participant side of a swap.
type leg struct {
	ledger *ledger.Ledger
	inst   ledger.Institution
}

func openLeg(tx *state.Txn, id string) (leg, error) {
	l, err := ledger.Open(tx, id)
	if err != nil {
		return leg{}, err
	}
	inst, err := l.Institution(tx)
	if err != nil {
		return leg{}, err
	}
	return leg{ledger: l, inst: inst}, nil
}

func checkAmount(amount ledger.Amount) error {
	if amount < 0 {
		return fmt.Errorf("swap amount %d is negative: %w", amount, ledgererr.ErrInvalidInput)
	}
	return nil
}

// settle performs the three settlement steps as the coordinator.
func settle(tx *state.Txn, s Settings, from, to leg, owner, receiver access.Principal, amount ledger.Amount) error {
	cbdc, err := ledger.Open(tx, s.CBDC)
	if err != nil {
		return fmt.Errorf("cbdc ledger: %w", err)
	}
	if err := from.ledger.BurnFrom(tx, s.Principal, owner, amount); err != nil {
		return fmt.Errorf("burn on %s: %w", from.ledger.ID(), err)
	}
	if err := cbdc.Move(tx, s.Principal, from.inst.ReserveAccount, to.inst.ReserveAccount, amount); err != nil {
		return fmt.Errorf("reserve move on %s: %w", cbdc.ID(), err)
	}
	if err := to.ledger.Mint(tx, s.Principal, receiver, amount); err != nil {
		return fmt.Errorf("mint on %s: %w", to.ledger.ID(), err)
	}
	return nil
}

func executedFields(from, to leg, sender, receiver access.Principal, amount ledger.Amount) map[string]any {
	return map[string]any{
		events.FieldSenderLedger:        from.ledger.ID(),
		events.FieldReceiverLedger:      to.ledger.ID(),
		events.FieldSenderInstitution:   from.inst.ID,
		events.FieldReceiverInstitution: to.inst.ID,
		events.FieldSender:              string(sender),
		events.FieldReceiver:            string(receiver),
		events.FieldAmount:              int64(amount),
	}
}

// Execute swaps amount of caller's deposit on senderLedger for the same
// amount credited to receiver on receiverLedger, in one step.
func (c *Coordinator) Execute(tx *state.Txn, caller access.Principal, senderLedger, receiverLedger string, receiver access.Principal, amount ledger.Amount) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := receiver.Validate(); err != nil {
		return err
	}
	s, err := LoadSettings(tx)
	if err != nil {
		return err
	}
	from, err := openLeg(tx, senderLedger)
	if err != nil {
		return err
	}
	to, err := openLeg(tx, receiverLedger)
	if err != nil {
		return err
	}
	if err := settle(tx, s, from, to, caller, receiver, amount); err != nil {
		return err
	}
	tx.Emit(state.Event{
		Kind:   events.KindSwapExecuted,
		Ledger: from.ledger.ID(),
		Fields: executedFields(from, to, caller, receiver, amount),
	})
	return nil
}

// Start records a pending proposal from caller to receiver. It moves no
// funds; the sender must still hold the amount and the allowance when the
// receiver accepts.
func (c *Coordinator) Start(tx *state.Txn, caller access.Principal, senderLedger, receiverLedger string, receiver access.Principal, amount ledger.Amount) (*Proposal, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if err := receiver.Validate(); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if _, err := LoadSettings(tx); err != nil {
		return nil, err
	}
	from, err := openLeg(tx, senderLedger)
	if err != nil {
		return nil, err
	}
	to, err := openLeg(tx, receiverLedger)
	if err != nil {
		return nil, err
	}

	last, err := tx.GetInt64(seqKey)
	if err != nil {
		return nil, err
	}
	id := uint64(last) + 1
	tx.PutInt64(seqKey, int64(id))

	now := tx.Now()
	p := &Proposal{
		ID:                  id,
		SenderLedger:        from.ledger.ID(),
		ReceiverLedger:      to.ledger.ID(),
		SenderInstitution:   from.inst.ID,
		ReceiverInstitution: to.inst.ID,
		Sender:              caller,
		Receiver:            receiver,
		Amount:              amount,
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := tx.PutJSON(proposalKey(id), p); err != nil {
		return nil, err
	}

	fields := executedFields(from, to, caller, receiver, amount)
	fields[events.FieldProposalID] = id
	tx.Emit(state.Event{Kind: events.KindSwapStarted, Ledger: p.SenderLedger, Fields: fields})
	return p, nil
}

// Accept settles a pending proposal. Only the receiver may accept, and only
// until the validity window has passed.
func (c *Coordinator) Accept(tx *state.Txn, caller access.Principal, id uint64) (*Proposal, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	p, err := c.Proposal(tx, id)
	if err != nil {
		return nil, err
	}
	if caller != p.Receiver {
		return nil, fmt.Errorf("proposal %d: %w", id, ledgererr.ErrNotReceiver)
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("proposal %d is %s: %w", id, p.Status, ledgererr.ErrInvalidStatus)
	}
	if p.Expired(tx.Now(), c.validity) {
		return nil, fmt.Errorf("proposal %d expired at %s: %w",
			id, p.ExpiresAt(c.validity).Format(time.RFC3339), ledgererr.ErrProposalExpired)
	}

	s, err := LoadSettings(tx)
	if err != nil {
		return nil, err
	}
	from, err := openLeg(tx, p.SenderLedger)
	if err != nil {
		return nil, err
	}
	to, err := openLeg(tx, p.ReceiverLedger)
	if err != nil {
		return nil, err
	}
	if err := settle(tx, s, from, to, p.Sender, p.Receiver, p.Amount); err != nil {
		return nil, err
	}

	p.Status = StatusExecuted
	p.UpdatedAt = tx.Now()
	if err := tx.PutJSON(proposalKey(id), p); err != nil {
		return nil, err
	}

	fields := map[string]any{
		events.FieldProposalID:          id,
		events.FieldSenderInstitution:   p.SenderInstitution,
		events.FieldReceiverInstitution: p.ReceiverInstitution,
		events.FieldSender:              string(p.Sender),
		events.FieldReceiver:            string(p.Receiver),
		events.FieldAmount:              int64(p.Amount),
	}
	tx.Emit(state.Event{Kind: events.KindSwapExecuted, Ledger: p.SenderLedger, Fields: fields})
	return p, nil
}

// Cancel withdraws a pending proposal. Either party may cancel, including
// after the validity window has passed.
func (c *Coordinator) Cancel(tx *state.Txn, caller access.Principal, id uint64, reason string) (*Proposal, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	p, err := c.Proposal(tx, id)
	if err != nil {
		return nil, err
	}
	if !p.Involves(caller) {
		return nil, fmt.Errorf("proposal %d: %w", id, ledgererr.ErrNotSenderOrReceiver)
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("proposal %d is %s: %w", id, p.Status, ledgererr.ErrInvalidStatus)
	}

	p.Status = StatusCancelled
	p.UpdatedAt = tx.Now()
	p.Reason = reason
	if err := tx.PutJSON(proposalKey(id), p); err != nil {
		return nil, err
	}
	tx.Emit(state.Event{
		Kind:   events.KindSwapCancelled,
		Ledger: p.SenderLedger,
		Fields: map[string]any{
			events.FieldProposalID: id,
			events.FieldReason:     reason,
		},
	})
	return p, nil
}

// Proposal returns proposal id.
func (c *Coordinator) Proposal(tx *state.Txn, id uint64) (*Proposal, error) {
	var p Proposal
	ok, err := tx.GetJSON(proposalKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("proposal %d: %w", id, ledgererr.ErrNotFound)
	}
	return &p, nil
}

// Proposals returns proposals matching f in id order.
func (c *Coordinator) Proposals(tx *state.Txn, f Filter) ([]*Proposal, error) {
	kvs, err := tx.Scan(proposalPrefix)
	if err != nil {
		return nil, err
	}
	var out []*Proposal
	for _, kv := range kvs {
		var p Proposal
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		if !f.match(&p) {
			continue
		}
		out = append(out, &p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}
