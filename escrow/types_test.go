package escrow

import (
	"math/big"
	"testing"
)

func TestStatusPredicates(t *testing.T) {
	cases := []struct {
		status   Status
		valid    bool
		terminal bool
		name     string
	}{
		{StatusFunded, true, false, "funded"},
		{StatusDelivered, true, false, "delivered"},
		{StatusCompleted, true, true, "completed"},
		{StatusCancelled, true, true, "cancelled"},
		{StatusDisputed, true, false, "disputed"},
		{Status(0), false, false, "status(0)"},
		{Status(9), false, false, "status(9)"},
	}
	for _, tc := range cases {
		if tc.status.Valid() != tc.valid {
			t.Fatalf("%s: Valid() = %v", tc.name, tc.status.Valid())
		}
		if tc.status.Terminal() != tc.terminal {
			t.Fatalf("%s: Terminal() = %v", tc.name, tc.status.Terminal())
		}
		if tc.status.String() != tc.name {
			t.Fatalf("String() = %q, want %q", tc.status.String(), tc.name)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	trade := &Trade{
		ID:         7,
		Buyer:      testBuyer,
		Seller:     testSeller,
		Principal:  big.NewInt(1000),
		PendingFee: big.NewInt(25),
		Status:     StatusFunded,
		CreatedAt:  100,
	}
	clone := trade.Clone()
	clone.Principal.SetInt64(1)
	clone.PendingFee.SetInt64(2)
	clone.Status = StatusCompleted
	if trade.Principal.Cmp(big.NewInt(1000)) != 0 || trade.PendingFee.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("clone aliased big.Int fields")
	}
	if trade.Status != StatusFunded {
		t.Fatalf("clone aliased status")
	}
	var nilTrade *Trade
	if nilTrade.Clone() != nil {
		t.Fatalf("nil clone must stay nil")
	}
}

func TestCloneNormalisesNilAmounts(t *testing.T) {
	clone := (&Trade{ID: 1, Status: StatusFunded}).Clone()
	if clone.Principal == nil || clone.PendingFee == nil {
		t.Fatalf("clone must materialise nil amounts")
	}
	if clone.Principal.Sign() != 0 || clone.PendingFee.Sign() != 0 {
		t.Fatalf("materialised amounts must be zero")
	}
}

func TestSanitizeTrade(t *testing.T) {
	base := func() *Trade {
		return &Trade{
			ID:         1,
			Buyer:      testBuyer,
			Seller:     testSeller,
			Principal:  big.NewInt(1000),
			PendingFee: big.NewInt(25),
			Status:     StatusFunded,
		}
	}
	if _, err := SanitizeTrade(base()); err != nil {
		t.Fatalf("valid trade rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"zero id", func(tr *Trade) { tr.ID = 0 }},
		{"missing buyer", func(tr *Trade) { tr.Buyer = [20]byte{} }},
		{"missing seller", func(tr *Trade) { tr.Seller = [20]byte{} }},
		{"self trade", func(tr *Trade) { tr.Seller = tr.Buyer }},
		{"zero principal", func(tr *Trade) { tr.Principal = big.NewInt(0) }},
		{"negative principal", func(tr *Trade) { tr.Principal = big.NewInt(-1) }},
		{"negative fee", func(tr *Trade) { tr.PendingFee = big.NewInt(-1) }},
		{"invalid status", func(tr *Trade) { tr.Status = Status(42) }},
		{"completed with fee", func(tr *Trade) { tr.Status = StatusCompleted }},
		{"cancelled with fee", func(tr *Trade) { tr.Status = StatusCancelled }},
	}
	for _, tc := range cases {
		trade := base()
		tc.mutate(trade)
		if _, err := SanitizeTrade(trade); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}

	settled := base()
	settled.Status = StatusCompleted
	settled.PendingFee = big.NewInt(0)
	if _, err := SanitizeTrade(settled); err != nil {
		t.Fatalf("settled trade rejected: %v", err)
	}
	if _, err := SanitizeTrade(nil); err == nil {
		t.Fatalf("nil trade accepted")
	}
}

func TestSanitizeTradeDoesNotMutateInput(t *testing.T) {
	trade := &Trade{
		ID:        1,
		Buyer:     testBuyer,
		Seller:    testSeller,
		Principal: big.NewInt(1000),
		Status:    StatusFunded,
	}
	sanitized, err := SanitizeTrade(trade)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	sanitized.Principal.SetInt64(5)
	if trade.Principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("sanitize aliased the input")
	}
	if trade.PendingFee != nil {
		t.Fatalf("sanitize mutated the input's nil fee")
	}
}
