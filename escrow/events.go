package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"escrowd/core/events"
)

const (
	EventTypeTradeCreated       = "escrow.trade.created"
	EventTypeTradeFunded        = "escrow.trade.funded"
	EventTypeLinkEstablished    = "escrow.link.established"
	EventTypeTradeDelivered     = "escrow.trade.delivered"
	EventTypeTradeReleased      = "escrow.trade.released"
	EventTypeTradeDisputed      = "escrow.trade.disputed"
	EventTypeTradeResolved      = "escrow.trade.resolved"
	EventTypeTradeRefunded      = "escrow.trade.refunded"
	EventTypeFeeSplit           = "escrow.fee.split"
	EventTypeFeeConverted       = "escrow.fee.converted"
	EventTypeFeeConvertFailed   = "escrow.fee.convert_failed"
	EventTypeRoleUpdated        = "escrow.role.updated"
	EventTypeEmergencyWithdrawn = "escrow.emergency_withdrawn"
)

func newTradeEvent(eventType string, t *Trade) *events.Event {
	attrs := make(map[string]string)
	if t == nil {
		return &events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["tradeId"] = strconv.FormatUint(t.ID, 10)
	attrs["buyer"] = hex.EncodeToString(t.Buyer[:])
	attrs["seller"] = hex.EncodeToString(t.Seller[:])
	if t.Principal != nil {
		attrs["principal"] = t.Principal.String()
	}
	if t.PendingFee != nil {
		attrs["pendingFee"] = t.PendingFee.String()
	}
	attrs["status"] = t.Status.String()
	attrs["createdAt"] = strconv.FormatInt(t.CreatedAt, 10)
	if t.DeliveredAt != 0 {
		attrs["deliveredAt"] = strconv.FormatInt(t.DeliveredAt, 10)
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}

// NewTradeCreatedEvent returns the canonical payload for a newly created
// trade.
func NewTradeCreatedEvent(t *Trade) *events.Event {
	return newTradeEvent(EventTypeTradeCreated, t)
}

// NewTradeFundedEvent returns the payload emitted once the funding pull has
// completed. The deposit attribute carries principal plus buyer fee.
func NewTradeFundedEvent(t *Trade, deposit *big.Int) *events.Event {
	evt := newTradeEvent(EventTypeTradeFunded, t)
	if deposit != nil {
		evt.Attributes["deposit"] = deposit.String()
	}
	return evt
}

// NewLinkEstablishedEvent records the permanent association between an
// external identifier and the trade it funded.
func NewLinkEstablishedEvent(externalID [32]byte, tradeID uint64) *events.Event {
	return &events.Event{Type: EventTypeLinkEstablished, Attributes: map[string]string{
		"externalId": hex.EncodeToString(externalID[:]),
		"tradeId":    strconv.FormatUint(tradeID, 10),
	}}
}

// NewTradeDeliveredEvent returns the payload emitted when the operator marks
// delivery.
func NewTradeDeliveredEvent(t *Trade) *events.Event {
	return newTradeEvent(EventTypeTradeDelivered, t)
}

// NewTradeReleasedEvent returns the payload emitted when principal is
// released to the seller, whether by approval or timeout.
func NewTradeReleasedEvent(t *Trade, payout, fee *big.Int, byTimeout bool) *events.Event {
	evt := newTradeEvent(EventTypeTradeReleased, t)
	if payout != nil {
		evt.Attributes["payout"] = payout.String()
	}
	if fee != nil {
		evt.Attributes["fee"] = fee.String()
	}
	evt.Attributes["byTimeout"] = strconv.FormatBool(byTimeout)
	return evt
}

// NewTradeDisputedEvent returns the payload emitted when a dispute is opened.
func NewTradeDisputedEvent(t *Trade, raisedBy [20]byte) *events.Event {
	evt := newTradeEvent(EventTypeTradeDisputed, t)
	evt.Attributes["raisedBy"] = hex.EncodeToString(raisedBy[:])
	return evt
}

// NewTradeResolvedEvent returns the payload emitted when a disputed trade is
// settled by the arbiter.
func NewTradeResolvedEvent(t *Trade, buyerBps, sellerBps uint32) *events.Event {
	evt := newTradeEvent(EventTypeTradeResolved, t)
	evt.Attributes["buyerBps"] = strconv.FormatUint(uint64(buyerBps), 10)
	evt.Attributes["sellerBps"] = strconv.FormatUint(uint64(sellerBps), 10)
	return evt
}

// NewFeeSplitEvent records the payout legs produced by a dispute resolution.
func NewFeeSplitEvent(tradeID uint64, buyerPayout, sellerPayout *big.Int) *events.Event {
	attrs := map[string]string{"tradeId": strconv.FormatUint(tradeID, 10)}
	if buyerPayout != nil {
		attrs["buyerPayout"] = buyerPayout.String()
	}
	if sellerPayout != nil {
		attrs["sellerPayout"] = sellerPayout.String()
	}
	return &events.Event{Type: EventTypeFeeSplit, Attributes: attrs}
}

// NewTradeRefundedEvent returns the payload emitted when a funded trade is
// cancelled and the principal returned to the buyer.
func NewTradeRefundedEvent(t *Trade, refund, forfeitedFee *big.Int) *events.Event {
	evt := newTradeEvent(EventTypeTradeRefunded, t)
	if refund != nil {
		evt.Attributes["refund"] = refund.String()
	}
	if forfeitedFee != nil {
		evt.Attributes["forfeitedFee"] = forfeitedFee.String()
	}
	return evt
}

// NewFeeConvertedEvent signals a successful venue conversion of a captured
// fee.
func NewFeeConvertedEvent(tradeID uint64, amount *big.Int) *events.Event {
	attrs := map[string]string{"tradeId": strconv.FormatUint(tradeID, 10)}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &events.Event{Type: EventTypeFeeConverted, Attributes: attrs}
}

// NewFeeConversionFailedEvent signals that the venue call failed and the fee
// fell back to a direct transfer. Informational only; the enclosing
// settlement has already committed.
func NewFeeConversionFailedEvent(tradeID uint64, amount *big.Int, reason string) *events.Event {
	attrs := map[string]string{
		"tradeId": strconv.FormatUint(tradeID, 10),
		"reason":  reason,
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &events.Event{Type: EventTypeFeeConvertFailed, Attributes: attrs}
}

// NewRoleUpdatedEvent audits an owner-driven role change.
func NewRoleUpdatedEvent(role string, previous, next [20]byte) *events.Event {
	return &events.Event{Type: EventTypeRoleUpdated, Attributes: map[string]string{
		"role":     role,
		"previous": hex.EncodeToString(previous[:]),
		"next":     hex.EncodeToString(next[:]),
	}}
}

// NewEmergencyWithdrawnEvent audits an owner recovery transfer out of
// custody.
func NewEmergencyWithdrawnEvent(token string, to [20]byte, amount *big.Int) *events.Event {
	attrs := map[string]string{
		"token": token,
		"to":    hex.EncodeToString(to[:]),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &events.Event{Type: EventTypeEmergencyWithdrawn, Attributes: attrs}
}
