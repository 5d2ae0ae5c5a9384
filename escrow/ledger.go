package escrow

import "fmt"

// Ledger owns all mutable settlement state: the trade counter, the trade
// collection, the external-link collection and the role addresses. It is a
// plain value passed explicitly to the engine, never ambient state, so the
// engine stays testable without a shared-process fixture. Trades are archived
// in place; nothing is ever removed.
type Ledger struct {
	nextID      uint64
	trades      map[uint64]*Trade
	links       map[[32]byte]uint64
	owner       [20]byte
	operator    [20]byte
	feeReceiver [20]byte

	// busy is the re-entry flag guarding every state-mutating entry point.
	busy bool
}

// NewLedger initialises a ledger with the fixed role addresses. All three
// roles must be set.
func NewLedger(owner, operator, feeReceiver [20]byte) (*Ledger, error) {
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: owner address required")
	}
	if operator == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: operator address required")
	}
	if feeReceiver == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: fee receiver address required")
	}
	return &Ledger{
		trades:      make(map[uint64]*Trade),
		links:       make(map[[32]byte]uint64),
		owner:       owner,
		operator:    operator,
		feeReceiver: feeReceiver,
	}, nil
}

// Owner returns the owner role address.
func (l *Ledger) Owner() [20]byte { return l.owner }

// Operator returns the operator role address.
func (l *Ledger) Operator() [20]byte { return l.operator }

// FeeReceiver returns the fee receiver address.
func (l *Ledger) FeeReceiver() [20]byte { return l.feeReceiver }

// TradeCount returns the number of trades ever created.
func (l *Ledger) TradeCount() uint64 { return l.nextID }

func (l *Ledger) assignID() uint64 {
	l.nextID++
	return l.nextID
}

// Put validates and stores a deep copy of the trade.
func (l *Ledger) Put(t *Trade) error {
	sanitized, err := SanitizeTrade(t)
	if err != nil {
		return err
	}
	l.trades[sanitized.ID] = sanitized
	return nil
}

// Get returns a deep copy of the stored trade, if any.
func (l *Ledger) Get(id uint64) (*Trade, bool) {
	t, ok := l.trades[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// ReserveLink records the mapping from an external identifier to a trade id.
// A reservation is permanent: an identifier that already maps to a nonzero id
// can never be remapped, even after the trade is cancelled.
func (l *Ledger) ReserveLink(externalID [32]byte, tradeID uint64) error {
	if tradeID == 0 {
		return fmt.Errorf("escrow: link target must be a valid trade id")
	}
	if l.links[externalID] != 0 {
		return ErrDuplicateLink
	}
	l.links[externalID] = tradeID
	return nil
}

// LinkTarget resolves an external identifier to a trade id, zero when the
// identifier was never used.
func (l *Ledger) LinkTarget(externalID [32]byte) uint64 {
	return l.links[externalID]
}

// abortFunding unwinds the state committed for a creation whose funding pull
// failed, restoring the ledger exactly as it was before the operation. It is
// only reachable from CreateAndFund and never from an external surface.
func (l *Ledger) abortFunding(tradeID uint64, externalID [32]byte) {
	delete(l.trades, tradeID)
	delete(l.links, externalID)
	if l.nextID == tradeID {
		l.nextID--
	}
}

func (l *Ledger) enter() error {
	if l.busy {
		return ErrReentrantCall
	}
	l.busy = true
	return nil
}

func (l *Ledger) exit() { l.busy = false }
