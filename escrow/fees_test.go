package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestFeeTruncatesTowardZero(t *testing.T) {
	cases := []struct {
		amount  int64
		rateBps uint32
		want    int64
	}{
		{1000, 250, 25},
		{975, 250, 24},
		{1, 250, 0},
		{39, 250, 0},
		{40, 250, 1},
		{1000, 0, 0},
		{0, 250, 0},
		{1_000_000, 1, 100},
	}
	for _, tc := range cases {
		got := Fee(big.NewInt(tc.amount), tc.rateBps)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("Fee(%d, %d) = %s, want %d", tc.amount, tc.rateBps, got, tc.want)
		}
	}
}

func TestFeeNilAndNegative(t *testing.T) {
	if got := Fee(nil, 250); got.Sign() != 0 {
		t.Fatalf("nil amount must yield zero, got %s", got)
	}
	if got := Fee(big.NewInt(-100), 250); got.Sign() != 0 {
		t.Fatalf("negative amount must yield zero, got %s", got)
	}
}

func TestSplitAssignsRemainderToSecondLeg(t *testing.T) {
	first, second, err := Split(big.NewInt(975), 6_000, 4_000)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if first.Cmp(big.NewInt(585)) != 0 || second.Cmp(big.NewInt(390)) != 0 {
		t.Fatalf("split 975 at 6000/4000 = %s/%s, want 585/390", first, second)
	}
	// The legs always reconstruct the whole.
	sum := new(big.Int).Add(first, second)
	if sum.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("legs must sum to distributable, got %s", sum)
	}
}

func TestSplitBoundaries(t *testing.T) {
	first, second, err := Split(big.NewInt(975), 10_000, 0)
	if err != nil {
		t.Fatalf("split 10000/0: %v", err)
	}
	if first.Cmp(big.NewInt(975)) != 0 || second.Sign() != 0 {
		t.Fatalf("split 10000/0 = %s/%s, want 975/0", first, second)
	}
	first, second, err = Split(big.NewInt(975), 0, 10_000)
	if err != nil {
		t.Fatalf("split 0/10000: %v", err)
	}
	if first.Sign() != 0 || second.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("split 0/10000 = %s/%s, want 0/975", first, second)
	}
}

func TestSplitRejectsInvalidShares(t *testing.T) {
	for _, tc := range []struct{ first, second uint32 }{
		{6_000, 4_001},
		{6_000, 3_999},
		{0, 0},
		{10_001, 0},
		{5_000, 6_000},
	} {
		if _, _, err := Split(big.NewInt(100), tc.first, tc.second); !errors.Is(err, ErrInvalidSplit) {
			t.Fatalf("split %d/%d: expected ErrInvalidSplit, got %v", tc.first, tc.second, err)
		}
	}
}

func TestSplitUnevenRemainder(t *testing.T) {
	// 100 at 3333/6667: first leg floors to 33, second takes the rest.
	first, second, err := Split(big.NewInt(100), 3_333, 6_667)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if first.Cmp(big.NewInt(33)) != 0 || second.Cmp(big.NewInt(67)) != 0 {
		t.Fatalf("split 100 at 3333/6667 = %s/%s, want 33/67", first, second)
	}
}
