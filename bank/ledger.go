package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	// ErrUnknownToken indicates the token symbol is not registered.
	ErrUnknownToken = errors.New("bank: unknown token")
	// ErrInsufficientBalance indicates the source account cannot cover the
	// transfer.
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInsufficientAllowance indicates the spender lacks prior
	// authorization for the requested amount.
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
)

// Ledger is an in-process multi-token account ledger. Transfers are
// all-or-nothing, and third-party pulls require a prior allowance from the
// source account, mirroring the authorization contract of the external
// value-transfer interface.
type Ledger struct {
	mu         sync.RWMutex
	tokens     map[string]struct{}
	balances   map[string]map[[20]byte]*big.Int
	allowances map[string]map[[20]byte]map[[20]byte]*big.Int
}

// NewLedger registers the supplied token symbols. Symbols are canonicalised
// to uppercase.
func NewLedger(tokens ...string) (*Ledger, error) {
	l := &Ledger{
		tokens:     make(map[string]struct{}, len(tokens)),
		balances:   make(map[string]map[[20]byte]*big.Int),
		allowances: make(map[string]map[[20]byte]map[[20]byte]*big.Int),
	}
	for _, token := range tokens {
		normalized := NormalizeToken(token)
		if normalized == "" {
			return nil, fmt.Errorf("bank: empty token symbol")
		}
		l.tokens[normalized] = struct{}{}
	}
	if len(l.tokens) == 0 {
		return nil, fmt.Errorf("bank: at least one token required")
	}
	return l, nil
}

// NormalizeToken canonicalises a token symbol for consistent lookups.
func NormalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (l *Ledger) resolve(token string) (string, error) {
	normalized := NormalizeToken(token)
	if _, ok := l.tokens[normalized]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return normalized, nil
}

func (l *Ledger) balance(token string, addr [20]byte) *big.Int {
	if holders, ok := l.balances[token]; ok {
		if bal, ok := holders[addr]; ok && bal != nil {
			return bal
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) setBalance(token string, addr [20]byte, amount *big.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[[20]byte]*big.Int)
		l.balances[token] = holders
	}
	holders[addr] = amount
}

// Balance returns a copy of the holder's balance for the token. An
// unregistered token reads as zero.
func (l *Ledger) Balance(token string, addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	normalized := NormalizeToken(token)
	return new(big.Int).Set(l.balance(normalized, addr))
}

// Mint credits freshly issued units to the account. Used for genesis
// allocations and tests.
func (l *Ledger) Mint(token string, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.resolve(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: mint amount must be non-negative")
	}
	l.setBalance(normalized, to, new(big.Int).Add(l.balance(normalized, to), amount))
	return nil
}

// Approve authorises the spender to pull up to amount from the owner's
// account. A fresh approval replaces any prior allowance.
func (l *Ledger) Approve(token string, owner, spender [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.resolve(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: allowance must be non-negative")
	}
	owners, ok := l.allowances[normalized]
	if !ok {
		owners = make(map[[20]byte]map[[20]byte]*big.Int)
		l.allowances[normalized] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[[20]byte]*big.Int)
		owners[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the remaining authorization.
func (l *Ledger) Allowance(token string, owner, spender [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	normalized := NormalizeToken(token)
	if owners, ok := l.allowances[normalized]; ok {
		if spenders, ok := owners[owner]; ok {
			if remaining, ok := spenders[spender]; ok && remaining != nil {
				return new(big.Int).Set(remaining)
			}
		}
	}
	return big.NewInt(0)
}

func (l *Ledger) move(token string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBal := l.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.setBalance(token, from, new(big.Int).Sub(fromBal, amount))
	l.setBalance(token, to, new(big.Int).Add(l.balance(token, to), amount))
	return nil
}

// Transfer moves amount from one account to another. Either the full amount
// moves or nothing does.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.resolve(token)
	if err != nil {
		return err
	}
	return l.move(normalized, from, to, amount)
}

// TransferFrom moves amount from the owner to the destination on behalf of
// the spender, consuming allowance. The allowance check and the balance move
// succeed or fail together.
func (l *Ledger) TransferFrom(token string, spender, from, to [20]byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.resolve(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	owners, ok := l.allowances[normalized]
	if !ok {
		return ErrInsufficientAllowance
	}
	spenders, ok := owners[from]
	if !ok {
		return ErrInsufficientAllowance
	}
	remaining, ok := spenders[spender]
	if !ok || remaining == nil || remaining.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(normalized, from, to, amount); err != nil {
		return err
	}
	spenders[spender] = new(big.Int).Sub(remaining, amount)
	return nil
}
