package escrow

import "math/big"

// Custodian moves value in and out of escrow custody. Pull and Push operate
// on the settlement asset and must be atomic: either the full amount moves or
// nothing does. Pull requires prior authorization by the source account.
// Withdraw moves an arbitrary custodied token and backs the owner-only
// recovery path for misdirected assets.
//
// The engine only invokes the custodian after all ledger state for the
// current operation has been committed, so a misbehaving counterparty cannot
// re-enter and observe a half-updated trade.
type Custodian interface {
	Pull(from [20]byte, amount *big.Int) error
	Push(to [20]byte, amount *big.Int) error
	Withdraw(token string, to [20]byte, amount *big.Int) error
}
