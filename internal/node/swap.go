package node

import (
	"context"

	"github.com/gezibash/arc-ledger/internal/access"
	"github.com/gezibash/arc-ledger/internal/directory"
	"github.com/gezibash/arc-ledger/internal/ledger"
	"github.com/gezibash/arc-ledger/internal/state"
	"github.com/gezibash/arc-ledger/internal/swap"
	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

const (
	variantOneStep = "one_step"
	variantTwoStep = "two_step"
)

func (n *Node) recordSwap(variant, success string, err error) {
	if err != nil {
		n.metrics.RecordSwap(variant, ledgererr.Code(err))
		return
	}
	n.metrics.RecordSwap(variant, success)
}

func resolvePair(tx *state.Txn, senderRef, receiverRef string) (string, string, error) {
	from, err := directory.Resolve(tx, senderRef)
	if err != nil {
		return "", "", err
	}
	to, err := directory.Resolve(tx, receiverRef)
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

// ExecuteSwap runs a one-step swap from caller on senderRef to receiver on
// receiverRef.
func (n *Node) ExecuteSwap(ctx context.Context, caller access.Principal, senderRef, receiverRef string, receiver access.Principal, amount ledger.Amount) (err error) {
	defer func() { n.recordSwap(variantOneStep, "executed", err) }()
	return n.Apply(ctx, "swap.execute", func(tx *state.Txn) error {
		from, to, err := resolvePair(tx, senderRef, receiverRef)
		if err != nil {
			return err
		}
		return n.swaps.Execute(tx, caller, from, to, receiver, amount)
	})
}

// StartSwap records a two-step proposal.
func (n *Node) StartSwap(ctx context.Context, caller access.Principal, senderRef, receiverRef string, receiver access.Principal, amount ledger.Amount) (p *swap.Proposal, err error) {
	defer func() { n.recordSwap(variantTwoStep, "started", err) }()
	err = n.Apply(ctx, "swap.start", func(tx *state.Txn) error {
		from, to, err := resolvePair(tx, senderRef, receiverRef)
		if err != nil {
			return err
		}
		p, err = n.swaps.Start(tx, caller, from, to, receiver, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.log.WithProposal(p.ID).WithPrincipal("sender", string(caller)).InfoContext(ctx, "swap proposed")
	return p, nil
}

// AcceptSwap settles proposal id as its receiver.
func (n *Node) AcceptSwap(ctx context.Context, caller access.Principal, id uint64) (p *swap.Proposal, err error) {
	defer func() { n.recordSwap(variantTwoStep, "executed", err) }()
	err = n.Apply(ctx, "swap.accept", func(tx *state.Txn) error {
		var err error
		p, err = n.swaps.Accept(tx, caller, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.log.WithProposal(id).InfoContext(ctx, "swap executed")
	return p, nil
}

// CancelSwap withdraws proposal id.
func (n *Node) CancelSwap(ctx context.Context, caller access.Principal, id uint64, reason string) (p *swap.Proposal, err error) {
	defer func() { n.recordSwap(variantTwoStep, "cancelled", err) }()
	err = n.Apply(ctx, "swap.cancel", func(tx *state.Txn) error {
		var err error
		p, err = n.swaps.Cancel(tx, caller, id, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.log.WithProposal(id).InfoContext(ctx, "swap cancelled", "reason", reason)
	return p, nil
}

// Proposal returns proposal id.
func (n *Node) Proposal(ctx context.Context, id uint64) (*swap.Proposal, error) {
	var p *swap.Proposal
	err := n.View(ctx, func(tx *state.Txn) error {
		var err error
		p, err = n.swaps.Proposal(tx, id)
		return err
	})
	return p, err
}

// Proposals returns the proposals matching f.
func (n *Node) Proposals(ctx context.Context, f swap.Filter) ([]*swap.Proposal, error) {
	var out []*swap.Proposal
	err := n.View(ctx, func(tx *state.Txn) error {
		var err error
		out, err = n.swaps.Proposals(tx, f)
		return err
	})
	return out, err
}
