package escrow

import "math/big"

const feeDenominator = 10_000

// Fee returns floor(amount * rateBps / 10000). Division truncates toward
// zero so collection never rounds in favour of the payee. A nil or negative
// amount yields zero.
func Fee(amount *big.Int, rateBps uint32) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(rateBps)))
	return fee.Div(fee, big.NewInt(feeDenominator))
}

// Split divides a distributable amount into two payouts according to the
// supplied basis-point shares. The shares must sum to exactly 10000. The
// first payout is truncated with the same rule as Fee; the remainder is
// assigned to the second payout so the legs always sum to the distributable
// amount.
func Split(distributable *big.Int, firstBps, secondBps uint32) (*big.Int, *big.Int, error) {
	if uint64(firstBps)+uint64(secondBps) != feeDenominator {
		return nil, nil, ErrInvalidSplit
	}
	if distributable == nil || distributable.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	first := Fee(distributable, firstBps)
	second := new(big.Int).Sub(distributable, first)
	return first, second, nil
}
