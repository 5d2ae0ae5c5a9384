package escrow

import (
	"fmt"
	"math/big"
	"time"

	"escrowd/core/events"
)

// Params carries the settlement policy. Fee rate and timeout are
// configuration, not constants.
type Params struct {
	// FeeBps is the fee rate in basis points charged on each leg.
	FeeBps uint32
	// ReleaseTimeout is the number of seconds after delivery before the
	// operator may release without buyer approval.
	ReleaseTimeout int64
}

// Engine orchestrates the trade lifecycle against one ledger. Every public
// operation runs to completion as a single atomic unit: the ledger's re-entry
// flag rejects nested calls, and all ledger state is committed before any
// outbound transfer is issued.
type Engine struct {
	ledger    *Ledger
	custodian Custodian
	converter *FeeConverter
	emitter   events.Emitter
	nowFn     func() int64
	params    Params
}

// NewEngine constructs an engine bound to the supplied ledger and custodian.
// The default converter routes fees directly to the fee receiver; wire a
// venue-backed converter via SetConverter.
func NewEngine(ledger *Ledger, custodian Custodian, params Params) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("escrow: ledger required")
	}
	if custodian == nil {
		return nil, fmt.Errorf("escrow: custodian required")
	}
	if params.FeeBps >= feeDenominator {
		return nil, fmt.Errorf("escrow: fee bps out of range")
	}
	if params.ReleaseTimeout <= 0 {
		return nil, fmt.Errorf("escrow: release timeout must be positive")
	}
	return &Engine{
		ledger:    ledger,
		custodian: custodian,
		converter: NewFeeConverter(nil, [20]byte{}, custodian),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		params:    params,
	}, nil
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetConverter replaces the fee converter. Nil restores the direct-route
// default.
func (e *Engine) SetConverter(c *FeeConverter) {
	if c == nil {
		c = NewFeeConverter(nil, [20]byte{}, e.custodian)
	}
	e.converter = c
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 { return e.nowFn() }

// Trade returns a deep copy of the stored trade, if any.
func (e *Engine) Trade(id uint64) (*Trade, bool) { return e.ledger.Get(id) }

// IsExternalIDFunded reports whether the external identifier has ever funded
// a trade. Read-only.
func (e *Engine) IsExternalIDFunded(externalID [32]byte) bool {
	return e.ledger.LinkTarget(externalID) != 0
}

// CreateAndFund atomically creates a trade and pulls principal plus buyer fee
// from the buyer. The external identifier is permanently reserved; a failed
// funding pull unwinds the creation entirely.
func (e *Engine) CreateAndFund(buyer, seller [20]byte, principal *big.Int, externalID [32]byte) (uint64, error) {
	if err := e.ledger.enter(); err != nil {
		return 0, err
	}
	defer e.ledger.exit()
	if buyer == ([20]byte{}) || seller == ([20]byte{}) || buyer == seller {
		return 0, ErrInvalidParty
	}
	if principal == nil || principal.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if e.ledger.LinkTarget(externalID) != 0 {
		return 0, ErrDuplicateLink
	}
	buyerFee := Fee(principal, e.params.FeeBps)
	deposit := new(big.Int).Add(principal, buyerFee)
	id := e.ledger.assignID()
	trade := &Trade{
		ID:         id,
		Buyer:      buyer,
		Seller:     seller,
		Principal:  new(big.Int).Set(principal),
		PendingFee: buyerFee,
		Status:     StatusFunded,
		CreatedAt:  e.now(),
	}
	if err := e.ledger.Put(trade); err != nil {
		e.ledger.abortFunding(id, externalID)
		return 0, err
	}
	if err := e.ledger.ReserveLink(externalID, id); err != nil {
		e.ledger.abortFunding(id, externalID)
		return 0, err
	}
	if err := e.custodian.Pull(buyer, deposit); err != nil {
		e.ledger.abortFunding(id, externalID)
		return 0, transferFailed(err)
	}
	e.emit(NewTradeCreatedEvent(trade))
	e.emit(NewLinkEstablishedEvent(externalID, id))
	e.emit(NewTradeFundedEvent(trade, deposit))
	return id, nil
}

// MarkDelivered records delivery of the off-chain obligation and starts the
// release timeout clock.
func (e *Engine) MarkDelivered(caller [20]byte, id uint64) error {
	if err := RequireOperator(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusFunded {
		return ErrInvalidState
	}
	trade.Status = StatusDelivered
	trade.DeliveredAt = e.now()
	if err := e.ledger.Put(trade); err != nil {
		return err
	}
	e.emit(NewTradeDeliveredEvent(trade))
	return nil
}

// ApproveDelivery releases the principal to the seller on the buyer's
// instruction, relayed by the operator.
func (e *Engine) ApproveDelivery(caller [20]byte, id uint64) error {
	if err := RequireOperator(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusDelivered {
		return ErrInvalidState
	}
	return e.release(trade, false)
}

// ReleaseAfterTimeout releases the principal to the seller once the timeout
// since delivery has elapsed. It fails with ErrTimeoutNotReached until then;
// there is no explicit cancel-and-retry protocol.
func (e *Engine) ReleaseAfterTimeout(caller [20]byte, id uint64) error {
	if err := RequireOperator(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusDelivered {
		return ErrInvalidState
	}
	if e.now() < trade.DeliveredAt+e.params.ReleaseTimeout {
		return ErrTimeoutNotReached
	}
	return e.release(trade, true)
}

// release settles a delivered trade in favour of the seller. Status and
// pendingFee are committed before any outbound transfer so a reentrant call
// only ever observes terminal, already-settled state.
func (e *Engine) release(trade *Trade, byTimeout bool) error {
	if trade.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	sellerFee := Fee(trade.Principal, e.params.FeeBps)
	payout := new(big.Int).Sub(trade.Principal, sellerFee)
	totalFee := new(big.Int).Add(trade.PendingFee, sellerFee)
	snapshot := trade.Clone()
	trade.PendingFee = big.NewInt(0)
	trade.Status = StatusCompleted
	if err := e.ledger.Put(trade); err != nil {
		return err
	}
	if payout.Sign() > 0 {
		if err := e.custodian.Push(trade.Seller, payout); err != nil {
			// Nothing has moved yet; restore the pre-release state.
			if putErr := e.ledger.Put(snapshot); putErr != nil {
				return putErr
			}
			return transferFailed(err)
		}
	}
	e.emit(NewTradeReleasedEvent(trade, payout, totalFee, byTimeout))
	return e.converter.Route(trade.ID, totalFee, e.ledger.FeeReceiver())
}

// OpenDispute freezes a delivered trade pending arbitration. Only the buyer
// or the seller may raise it, via the operator.
func (e *Engine) OpenDispute(caller [20]byte, id uint64, raisedBy [20]byte) error {
	if err := RequireOperator(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusDelivered {
		return ErrInvalidState
	}
	if raisedBy != trade.Buyer && raisedBy != trade.Seller {
		return ErrInvalidParty
	}
	trade.Status = StatusDisputed
	if err := e.ledger.Put(trade); err != nil {
		return err
	}
	e.emit(NewTradeDisputedEvent(trade, raisedBy))
	return nil
}

// ResolveDispute settles a disputed trade according to the arbiter-determined
// shares. Only the seller-side fee is charged here; the buyer-side fee was
// collected at funding. The boundary case 10000/0 is accepted.
func (e *Engine) ResolveDispute(caller [20]byte, id uint64, buyerBps, sellerBps uint32) error {
	if err := RequireOperator(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusDisputed {
		return ErrInvalidState
	}
	sellerFee := Fee(trade.Principal, e.params.FeeBps)
	distributable := new(big.Int).Sub(trade.Principal, sellerFee)
	buyerPayout, sellerPayout, err := Split(distributable, buyerBps, sellerBps)
	if err != nil {
		return err
	}
	totalFee := new(big.Int).Add(trade.PendingFee, sellerFee)
	snapshot := trade.Clone()
	trade.PendingFee = big.NewInt(0)
	trade.Status = StatusCompleted
	if err := e.ledger.Put(trade); err != nil {
		return err
	}
	moved := false
	if buyerPayout.Sign() > 0 {
		if err := e.custodian.Push(trade.Buyer, buyerPayout); err != nil {
			if putErr := e.ledger.Put(snapshot); putErr != nil {
				return putErr
			}
			return transferFailed(err)
		}
		moved = true
	}
	if sellerPayout.Sign() > 0 {
		if err := e.custodian.Push(trade.Seller, sellerPayout); err != nil {
			if !moved {
				if putErr := e.ledger.Put(snapshot); putErr != nil {
					return putErr
				}
			}
			return transferFailed(err)
		}
	}
	e.emit(NewTradeResolvedEvent(trade, buyerBps, sellerBps))
	e.emit(NewFeeSplitEvent(trade.ID, buyerPayout, sellerPayout))
	return e.converter.Route(trade.ID, totalFee, e.ledger.FeeReceiver())
}

// RefundBuyer cancels a funded trade and returns exactly the principal to the
// buyer. The buyer fee collected at funding is forfeited to the platform and
// routed through the converter so the trade leaves no pending fee behind.
func (e *Engine) RefundBuyer(caller [20]byte, id uint64) error {
	if err := RequireOperatorOrOwner(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	trade, ok := e.ledger.Get(id)
	if !ok {
		return ErrTradeNotFound
	}
	if trade.Status != StatusFunded {
		return ErrInvalidState
	}
	forfeited := new(big.Int).Set(trade.PendingFee)
	snapshot := trade.Clone()
	trade.PendingFee = big.NewInt(0)
	trade.Status = StatusCancelled
	if err := e.ledger.Put(trade); err != nil {
		return err
	}
	if err := e.custodian.Push(trade.Buyer, trade.Principal); err != nil {
		if putErr := e.ledger.Put(snapshot); putErr != nil {
			return putErr
		}
		return transferFailed(err)
	}
	e.emit(NewTradeRefundedEvent(trade, trade.Principal, forfeited))
	return e.converter.Route(trade.ID, forfeited, e.ledger.FeeReceiver())
}

// SetOperator rotates the operator role. Owner only.
func (e *Engine) SetOperator(caller, next [20]byte) error {
	if err := RequireOwner(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	if next == ([20]byte{}) {
		return ErrInvalidParty
	}
	previous := e.ledger.operator
	e.ledger.operator = next
	e.emit(NewRoleUpdatedEvent("operator", previous, next))
	return nil
}

// SetFeeReceiver rotates the fee receiver. Owner only.
func (e *Engine) SetFeeReceiver(caller, next [20]byte) error {
	if err := RequireOwner(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	if next == ([20]byte{}) {
		return ErrInvalidParty
	}
	previous := e.ledger.feeReceiver
	e.ledger.feeReceiver = next
	e.emit(NewRoleUpdatedEvent("feeReceiver", previous, next))
	return nil
}

// EmergencyWithdraw moves an arbitrary custodied token to the owner. It is an
// unconditional recovery path for misdirected assets.
func (e *Engine) EmergencyWithdraw(caller [20]byte, token string, amount *big.Int) error {
	if err := RequireOwner(e.ledger, caller); err != nil {
		return err
	}
	if err := e.ledger.enter(); err != nil {
		return err
	}
	defer e.ledger.exit()
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.custodian.Withdraw(token, caller, amount); err != nil {
		return transferFailed(err)
	}
	e.emit(NewEmergencyWithdrawnEvent(token, caller, amount))
	return nil
}
