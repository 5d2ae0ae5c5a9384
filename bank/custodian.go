package bank

import "math/big"

// Custodian adapts the ledger to the escrow custody interface for one vault
// address and one settlement token. Pulls spend the vault's allowance on the
// source account; pushes move directly out of the vault.
type Custodian struct {
	ledger *Ledger
	vault  [20]byte
	token  string
}

// NewCustodian binds a custodian to the vault account holding escrowed funds.
func NewCustodian(ledger *Ledger, vault [20]byte, token string) *Custodian {
	return &Custodian{ledger: ledger, vault: vault, token: NormalizeToken(token)}
}

// Vault returns the custody account address.
func (c *Custodian) Vault() [20]byte { return c.vault }

// Token returns the canonical settlement token symbol the custodian moves.
func (c *Custodian) Token() string { return c.token }

// Pull transfers amount from the source account into custody, consuming the
// vault's prior authorization.
func (c *Custodian) Pull(from [20]byte, amount *big.Int) error {
	return c.ledger.TransferFrom(c.token, c.vault, from, c.vault, amount)
}

// Push transfers amount out of custody.
func (c *Custodian) Push(to [20]byte, amount *big.Int) error {
	return c.ledger.Transfer(c.token, c.vault, to, amount)
}

// Withdraw moves an arbitrary custodied token out of the vault. Backs the
// owner-only recovery path.
func (c *Custodian) Withdraw(token string, to [20]byte, amount *big.Int) error {
	return c.ledger.Transfer(token, c.vault, to, amount)
}

// Authorize grants the vault the right to pull up to amount of the settlement
// asset from the owner's account, replacing any prior grant. Funding pulls
// consume the grant, so a buyer authorizes before submitting a trade and
// re-authorizes before resubmitting after a failed pull.
func (c *Custodian) Authorize(owner [20]byte, amount *big.Int) error {
	return c.ledger.Approve(c.token, owner, c.vault, amount)
}

// Authorized returns the remaining pull authorization for the owner.
func (c *Custodian) Authorized(owner [20]byte) *big.Int {
	return c.ledger.Allowance(c.token, owner, c.vault)
}
