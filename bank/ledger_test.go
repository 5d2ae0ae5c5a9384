package bank

import (
	"errors"
	"math/big"
	"testing"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	alice = addr(0x0A)
	bob   = addr(0x0B)
	vault = addr(0x0E)
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger("usde", "ZTOK")
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func TestNewLedgerValidation(t *testing.T) {
	if _, err := NewLedger(); err == nil {
		t.Fatalf("empty token set accepted")
	}
	if _, err := NewLedger("  "); err == nil {
		t.Fatalf("blank token accepted")
	}
}

func TestMintAndBalance(t *testing.T) {
	l := newLedger(t)
	if err := l.Mint("USDE", alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Symbols are case-insensitive.
	if got := l.Balance("usde", alice); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("balance = %s, want 1000", got)
	}
	if err := l.Mint("DOGE", alice, big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if got := l.Balance("ZTOK", alice); got.Sign() != 0 {
		t.Fatalf("unfunded token must read zero, got %s", got)
	}
}

func TestTransferAllOrNothing(t *testing.T) {
	l := newLedger(t)
	if err := l.Mint("USDE", alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer("USDE", alice, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Balance("USDE", alice); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed transfer must not move funds, balance %s", got)
	}
	if err := l.Transfer("USDE", alice, bob, big.NewInt(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.Balance("USDE", bob); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("destination balance %s", got)
	}
	if err := l.Transfer("USDE", alice, bob, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer must be a no-op: %v", err)
	}
	if err := l.Transfer("USDE", alice, bob, big.NewInt(-1)); err == nil {
		t.Fatalf("negative transfer accepted")
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := newLedger(t)
	if err := l.Mint("USDE", alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.TransferFrom("USDE", vault, alice, vault, big.NewInt(100)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance without approval, got %v", err)
	}
	if err := l.Approve("USDE", alice, vault, big.NewInt(150)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferFrom("USDE", vault, alice, vault, big.NewInt(100)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := l.Allowance("USDE", alice, vault); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("allowance not consumed, remaining %s", got)
	}
	if err := l.TransferFrom("USDE", vault, alice, vault, big.NewInt(51)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance past remainder, got %v", err)
	}
	if got := l.Balance("USDE", vault); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault balance %s", got)
	}
	// A fresh approval replaces the remainder rather than adding to it.
	if err := l.Approve("USDE", alice, vault, big.NewInt(10)); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if got := l.Allowance("USDE", alice, vault); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("approval must replace, remaining %s", got)
	}
}

func TestTransferFromInsufficientBalanceKeepsAllowance(t *testing.T) {
	l := newLedger(t)
	if err := l.Mint("USDE", alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Approve("USDE", alice, vault, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferFrom("USDE", vault, alice, vault, big.NewInt(50)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Allowance("USDE", alice, vault); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed pull must not burn allowance, remaining %s", got)
	}
}

func TestCustodianRoundTrip(t *testing.T) {
	l := newLedger(t)
	custodian := NewCustodian(l, vault, "usde")
	if custodian.Vault() != vault {
		t.Fatalf("vault address mismatch")
	}
	if custodian.Token() != "USDE" {
		t.Fatalf("token not canonicalised: %q", custodian.Token())
	}
	if err := l.Mint("USDE", alice, big.NewInt(1025)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := custodian.Authorize(alice, big.NewInt(1025)); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got := custodian.Authorized(alice); got.Cmp(big.NewInt(1025)) != 0 {
		t.Fatalf("authorization not visible, got %s", got)
	}
	if err := custodian.Pull(alice, big.NewInt(1025)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := l.Balance("USDE", vault); got.Cmp(big.NewInt(1025)) != 0 {
		t.Fatalf("custody balance %s", got)
	}
	if err := custodian.Push(bob, big.NewInt(975)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := l.Balance("USDE", bob); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("payout balance %s", got)
	}
	if err := custodian.Withdraw("USDE", alice, big.NewInt(50)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.Balance("USDE", vault); got.Sign() != 0 {
		t.Fatalf("vault should be drained, got %s", got)
	}
	if err := custodian.Push(bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance from empty vault, got %v", err)
	}
}

func TestCustodianPullRequiresAuthorization(t *testing.T) {
	l := newLedger(t)
	custodian := NewCustodian(l, vault, "USDE")
	if err := l.Mint("USDE", alice, big.NewInt(1025)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// A funded account alone is not pullable.
	if err := custodian.Pull(alice, big.NewInt(1025)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance without a grant, got %v", err)
	}
	if err := custodian.Authorize(alice, big.NewInt(1025)); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := custodian.Pull(alice, big.NewInt(1025)); err != nil {
		t.Fatalf("pull after grant: %v", err)
	}
	// The grant was consumed; a resubmission needs a fresh one.
	if got := custodian.Authorized(alice); got.Sign() != 0 {
		t.Fatalf("consumed grant still visible: %s", got)
	}
}
