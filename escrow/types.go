package escrow

import (
	"fmt"
	"math/big"
)

// Status represents the lifecycle states of an escrowed trade. A trade is
// stored only once funding has completed; the pre-funding phase is never
// externally observable.
type Status uint8

const (
	StatusFunded Status = iota + 1
	StatusDelivered
	StatusCompleted
	StatusCancelled
	StatusDisputed
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusFunded, StatusDelivered, StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// String returns the canonical lowercase name used in events and API
// responses.
func (s Status) String() string {
	switch s {
	case StatusFunded:
		return "funded"
	case StatusDelivered:
		return "delivered"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Trade captures the immutable metadata and runtime status of a single
// escrowed exchange. Identifiers are assigned from a monotonic counter and
// never reused; id zero is reserved to mean "no trade".
type Trade struct {
	ID          uint64
	Buyer       [20]byte
	Seller      [20]byte
	Principal   *big.Int
	PendingFee  *big.Int
	Status      Status
	CreatedAt   int64
	DeliveredAt int64
}

// Clone returns a deep copy of the trade so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := *t
	if t.Principal != nil {
		clone.Principal = new(big.Int).Set(t.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	if t.PendingFee != nil {
		clone.PendingFee = new(big.Int).Set(t.PendingFee)
	} else {
		clone.PendingFee = big.NewInt(0)
	}
	return &clone
}

// SanitizeTrade validates the supplied trade definition, returning a cloned
// instance with non-nil amount fields. The function does not mutate the
// original value.
func SanitizeTrade(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("escrow: nil trade")
	}
	clone := t.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow: trade id must be positive")
	}
	if clone.Buyer == ([20]byte{}) || clone.Seller == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: trade parties must be set")
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("escrow: buyer and seller must differ")
	}
	if clone.Principal.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: principal must be positive")
	}
	if clone.PendingFee.Sign() < 0 {
		return nil, fmt.Errorf("escrow: pending fee must be non-negative")
	}
	if clone.Status.Terminal() && clone.PendingFee.Sign() != 0 {
		return nil, fmt.Errorf("escrow: terminal trade retains pending fee")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	return clone, nil
}
