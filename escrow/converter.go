package escrow

import (
	"context"
	"math/big"
	"time"

	"escrowd/core/events"
)

const defaultConvertTimeout = 10 * time.Second

// Venue executes a conversion of the settlement asset into the secondary
// settlement asset at the external exchange, forwarding the proceeds to the
// recipient. The venue may fail for any reason; it has no other side channel.
type Venue interface {
	Convert(ctx context.Context, amount *big.Int, recipient [20]byte) error
}

// FeeConverter routes collected fees to the fee receiver, attempting a
// best-effort conversion through the external venue first. The venue call is
// an isolated failure domain: when it fails, the original amount is pushed
// directly to the recipient instead and a failure event is emitted. The
// enclosing settlement operation never rolls back because of a conversion
// failure.
type FeeConverter struct {
	venue        Venue
	venueAccount [20]byte
	custodian    Custodian
	emitter      events.Emitter
	timeout      time.Duration
}

// NewFeeConverter constructs a converter that settles successful conversions
// against the venue's deposit account. A nil venue disables conversion and
// routes every fee directly to the recipient.
func NewFeeConverter(venue Venue, venueAccount [20]byte, custodian Custodian) *FeeConverter {
	return &FeeConverter{
		venue:        venue,
		venueAccount: venueAccount,
		custodian:    custodian,
		emitter:      events.NoopEmitter{},
		timeout:      defaultConvertTimeout,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (c *FeeConverter) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetTimeout bounds the venue call. Non-positive values restore the default.
func (c *FeeConverter) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultConvertTimeout
	}
	c.timeout = d
}

func (c *FeeConverter) emit(evt *events.Event) {
	if c == nil || c.emitter == nil || evt == nil {
		return
	}
	c.emitter.Emit(evt)
}

// Route disburses a captured fee for the given trade. A zero amount is a
// no-op. The returned error only ever reflects a custody transfer failure,
// never a venue failure.
func (c *FeeConverter) Route(tradeID uint64, amount *big.Int, recipient [20]byte) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if c.venue == nil {
		if err := c.custodian.Push(recipient, amount); err != nil {
			return transferFailed(err)
		}
		c.emit(NewFeeConversionFailedEvent(tradeID, amount, "venue not configured"))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.venue.Convert(ctx, amount, recipient); err != nil {
		if pushErr := c.custodian.Push(recipient, amount); pushErr != nil {
			return transferFailed(pushErr)
		}
		c.emit(NewFeeConversionFailedEvent(tradeID, amount, err.Error()))
		return nil
	}
	// The venue sold the fee; settle the spent amount against its deposit
	// account.
	if err := c.custodian.Push(c.venueAccount, amount); err != nil {
		return transferFailed(err)
	}
	c.emit(NewFeeConvertedEvent(tradeID, amount))
	return nil
}
