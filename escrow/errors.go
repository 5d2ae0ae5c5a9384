package escrow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParty indicates a missing, duplicate or unrecognised party
	// address.
	ErrInvalidParty = errors.New("escrow: invalid party")
	// ErrInvalidAmount indicates a nil, zero or negative amount.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrDuplicateLink indicates the external identifier already funded a
	// trade.
	ErrDuplicateLink = errors.New("escrow: external id already linked")
	// ErrInvalidState indicates the trade is not in a state that permits
	// the attempted transition.
	ErrInvalidState = errors.New("escrow: transition not allowed in current state")
	// ErrUnauthorized indicates the caller does not hold the required role.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidSplit indicates dispute payout shares that do not sum to
	// 10000 basis points.
	ErrInvalidSplit = errors.New("escrow: split shares must sum to 10000 bps")
	// ErrTimeoutNotReached indicates the release timeout has not elapsed.
	ErrTimeoutNotReached = errors.New("escrow: release timeout not reached")
	// ErrTransferFailed indicates the underlying asset transfer did not
	// succeed.
	ErrTransferFailed = errors.New("escrow: transfer failed")
	// ErrAlreadyCompleted guards the internal release path against double
	// completion.
	ErrAlreadyCompleted = errors.New("escrow: trade already completed")
	// ErrTradeNotFound indicates the trade id resolves to no stored trade.
	ErrTradeNotFound = errors.New("escrow: trade not found")
	// ErrReentrantCall indicates a nested call into a guarded operation
	// while one is already executing on the same ledger.
	ErrReentrantCall = errors.New("escrow: reentrant call rejected")
)

func transferFailed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
