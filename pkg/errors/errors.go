// Package errors provides the shared sentinel errors used throughout arc-ledger.
//
// Components wrap these with fmt.Errorf("...: %w", ...) for context; callers
// match them with errors.Is. Code maps any wrapped sentinel to a stable
// identifier suitable for CLI output and metric labels.
package errors

import stderrors "errors"

var (
	// ErrUnauthorized indicates the caller lacks the role an operation requires.
	ErrUnauthorized = stderrors.New("unauthorized")

	// ErrNotAuthorized indicates an endpoint failed the participant allow-list check.
	ErrNotAuthorized = stderrors.New("participant not enabled")

	// ErrInsufficientBalance indicates the debited account's spendable balance is too low.
	ErrInsufficientBalance = stderrors.New("insufficient balance")

	// ErrInsufficientFrozenBalance indicates an unfreeze larger than the frozen amount.
	ErrInsufficientFrozenBalance = stderrors.New("insufficient frozen balance")

	// ErrInsufficientAllowance indicates the spender's allowance is below the amount.
	ErrInsufficientAllowance = stderrors.New("insufficient allowance")

	// ErrAllowanceUnderflow indicates an allowance decrease below zero.
	ErrAllowanceUnderflow = stderrors.New("allowance underflow")

	// ErrPaused indicates the ledger is paused.
	ErrPaused = stderrors.New("ledger paused")

	// ErrNotPaused indicates an unpause of a ledger that is not paused.
	ErrNotPaused = stderrors.New("ledger not paused")

	// ErrInvalidStatus indicates a swap proposal is not PENDING.
	ErrInvalidStatus = stderrors.New("invalid proposal status")

	// ErrNotReceiver indicates the caller is not the proposal's receiver.
	ErrNotReceiver = stderrors.New("caller is not the receiver")

	// ErrNotSenderOrReceiver indicates the caller is neither party of the proposal.
	ErrNotSenderOrReceiver = stderrors.New("caller is not the sender or receiver")

	// ErrProposalExpired indicates the proposal's validity window has passed.
	ErrProposalExpired = stderrors.New("proposal expired")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrInvalidInput indicates the input is invalid.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = stderrors.New("already exists")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")

	// ErrConflict indicates another writer committed first and the operation
	// was not applied.
	ErrConflict = stderrors.New("conflicting write")
)

// ErrParticipantDisabled is the allow-list failure under its alternate name.
var ErrParticipantDisabled = ErrNotAuthorized

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "UNAUTHORIZED"},
	{ErrNotAuthorized, "NOT_AUTHORIZED"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientFrozenBalance, "INSUFFICIENT_FROZEN_BALANCE"},
	{ErrInsufficientAllowance, "INSUFFICIENT_ALLOWANCE"},
	{ErrAllowanceUnderflow, "ALLOWANCE_UNDERFLOW"},
	{ErrPaused, "PAUSED"},
	{ErrNotPaused, "NOT_PAUSED"},
	{ErrInvalidStatus, "INVALID_STATUS"},
	{ErrNotReceiver, "NOT_RECEIVER"},
	{ErrNotSenderOrReceiver, "NOT_SENDER_OR_RECEIVER"},
	{ErrProposalExpired, "PROPOSAL_EXPIRED"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrAlreadyExists, "ALREADY_EXISTS"},
	{ErrClosed, "CLOSED"},
	{ErrConflict, "CONFLICT"},
}

// Code returns the stable identifier of the first sentinel wrapped by err.
// A nil error yields "" and an unclassified error yields "INTERNAL".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
