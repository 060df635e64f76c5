package trade

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"tradevault/core/events"
	"tradevault/core/types"
	nativecommon "tradevault/native/common"
)

// CancelPolicy selects which parties may cancel a pending trade. The policy
// is a deployment decision, not a per-trade attribute.
type CancelPolicy uint8

const (
	// CancelSellerOrBuyer lets either counterparty cancel before expiry.
	CancelSellerOrBuyer CancelPolicy = iota
	// CancelSellerOnly restricts cancellation to the seller.
	CancelSellerOnly
)

const tradeModuleName = "trade"

var errNilLedger = errors.New("trade engine: ledger not configured")

// withRestore surfaces a failed escrow restore alongside the failure that
// triggered it. The triggering error stays matchable with errors.Is.
func withRestore(err, restoreErr error) error {
	if restoreErr == nil {
		return err
	}
	return fmt.Errorf("%w; escrow restore failed: %v", err, restoreErr)
}

// Engine drives the trade lifecycle: creation with multi-asset precondition
// checks, confirmation with atomic bilateral settlement, cancellation,
// deadline-based expiry sweeping and post-expiry withdrawal. Every operation
// executes as a single atomic step; no two lifecycle operations on the same
// trade interleave.
type Engine struct {
	mu           sync.Mutex
	ledger       *Ledger
	custody      *Custody
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	nowFn        func() int64
	cancelPolicy CancelPolicy
	compoundLegs bool
	metrics      *engineMetrics
}

// NewEngine constructs a trade engine over the supplied ledger and custody
// adapter, with a no-op emitter. Callers can override the emitter via
// SetEmitter.
func NewEngine(ledger *Ledger, custody *Custody) *Engine {
	return &Engine{
		ledger:  ledger,
		custody: custody,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		metrics: Metrics(),
	}
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

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses configures the module kill-switch consulted before every
// mutating operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetCancelPolicy configures who may cancel pending trades.
func (e *Engine) SetCancelPolicy(policy CancelPolicy) { e.cancelPolicy = policy }

// SetCompoundLegs enables legs that combine a fungible and a non-fungible
// component. Disabled by default.
func (e *Engine) SetCompoundLegs(enabled bool) { e.compoundLegs = enabled }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(tradeEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// AddTrade validates and escrows the seller's offered leg and records the new
// trade as pending. value is the native amount attached to the call; it must
// equal the offered leg's native component exactly. Returns the new trade id.
func (e *Engine) AddTrade(seller, buyer [20]byte, offered, requested AssetLeg, tradePeriodSeconds int64, value *big.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := e.addTrade(seller, buyer, offered, requested, tradePeriodSeconds, value)
	if err != nil {
		e.metrics.observeFailure("addTrade")
	}
	return id, err
}

func (e *Engine) addTrade(seller, buyer [20]byte, offered, requested AssetLeg, tradePeriodSeconds int64, value *big.Int) (uint64, error) {
	if e.ledger == nil {
		return 0, errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, tradeModuleName); err != nil {
		return 0, err
	}
	if tradePeriodSeconds <= 0 {
		return 0, ErrInvalidInputs
	}
	if err := ValidateLegs(seller, buyer, offered, requested, e.compoundLegs); err != nil {
		return 0, err
	}
	if err := e.custody.Verify(seller, offered); err != nil {
		return 0, err
	}
	if err := e.custody.CheckValue(offered, value); err != nil {
		return 0, err
	}
	if err := e.custody.Lock(seller, offered); err != nil {
		return 0, err
	}
	now := e.now()
	t := &Trade{
		Seller:         seller,
		Buyer:          buyer,
		Offered:        offered.Clone(),
		Requested:      requested.Clone(),
		CreatedAt:      now,
		Deadline:       now + tradePeriodSeconds,
		EscrowedNative: offered.nativeAmount(),
		Status:         StatusPending,
	}
	id, err := e.ledger.Insert(t)
	if err != nil {
		// Return the locked leg so a storage failure never strands escrow.
		return 0, withRestore(err, e.custody.Release(offered, seller))
	}
	e.metrics.observeTransition("created")
	e.emit(NewTradeCreatedEvent(t))
	return id, nil
}

// ConfirmTrade settles the trade: the buyer's requested leg is pulled in and
// both legs are released to their new owners atomically. Only the buyer may
// confirm, and only before the deadline; the deadline is re-checked here so a
// lagging sweeper can never let a stale trade settle.
func (e *Engine) ConfirmTrade(id uint64, caller [20]byte, value *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.confirmTrade(id, caller, value); err != nil {
		e.metrics.observeFailure("confirmTrade")
		return err
	}
	return nil
}

func (e *Engine) confirmTrade(id uint64, caller [20]byte, value *big.Int) error {
	if err := nativecommon.Guard(e.pauses, tradeModuleName); err != nil {
		return err
	}
	t, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	if caller != t.Buyer {
		return ErrOnlyBuyer
	}
	if e.now() >= t.Deadline {
		return ErrTradeExpired
	}
	if t.Status != StatusPending {
		return ErrInvalidStatus
	}
	if err := e.custody.CheckValue(t.Requested, value); err != nil {
		return err
	}
	if err := e.custody.Verify(caller, t.Requested); err != nil {
		return err
	}
	// Settlement is all or nothing: each step that fails undoes every step
	// already taken, so a rejected transfer leaves the trade exactly as it
	// was before the call.
	if err := e.custody.Lock(caller, t.Requested); err != nil {
		return err
	}
	if err := e.custody.Release(t.Offered, t.Buyer); err != nil {
		return withRestore(err, e.custody.Release(t.Requested, t.Buyer))
	}
	if err := e.custody.Release(t.Requested, t.Seller); err != nil {
		restoreErr := e.custody.Reclaim(t.Offered, t.Buyer)
		if restoreErr == nil {
			restoreErr = e.custody.Release(t.Requested, t.Buyer)
		}
		return withRestore(err, restoreErr)
	}
	t.EscrowedNative = big.NewInt(0)
	t.Status = StatusConfirmed
	if err := e.ledger.Update(t); err != nil {
		restoreErr := e.custody.Reclaim(t.Requested, t.Seller)
		if restoreErr == nil {
			restoreErr = e.custody.Release(t.Requested, t.Buyer)
		}
		if restoreErr == nil {
			restoreErr = e.custody.Reclaim(t.Offered, t.Buyer)
		}
		return withRestore(err, restoreErr)
	}
	e.ledger.RemoveFromPending(id)
	e.metrics.observeTransition("confirmed")
	e.emit(NewTradeConfirmedEvent(t))
	return nil
}

// CancelTrade returns the offered leg to the seller before expiry. Which
// parties may cancel is controlled by the engine's CancelPolicy.
func (e *Engine) CancelTrade(id uint64, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cancelTrade(id, caller); err != nil {
		e.metrics.observeFailure("cancelTrade")
		return err
	}
	return nil
}

func (e *Engine) cancelTrade(id uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, tradeModuleName); err != nil {
		return err
	}
	t, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	switch e.cancelPolicy {
	case CancelSellerOnly:
		if caller != t.Seller {
			return ErrOnlySeller
		}
	default:
		if caller != t.Seller && caller != t.Buyer {
			return ErrOnlySellerOrBuyer
		}
	}
	if e.now() >= t.Deadline {
		return ErrTradeExpired
	}
	if t.Status != StatusPending {
		return ErrInvalidStatus
	}
	if err := e.custody.Release(t.Offered, t.Seller); err != nil {
		return err
	}
	t.EscrowedNative = big.NewInt(0)
	t.Status = StatusCanceled
	if err := e.ledger.Update(t); err != nil {
		// Persist failed, so the stored record still says pending; pull the
		// offered leg back into escrow to keep the record truthful.
		return withRestore(err, e.custody.Reclaim(t.Offered, t.Seller))
	}
	e.ledger.RemoveFromPending(id)
	e.metrics.observeTransition("canceled")
	e.emit(NewTradeCanceledEvent(t))
	return nil
}

// Withdraw returns the offered leg of an expired trade to the seller. The
// trade must have been swept: deadline passage alone is insufficient.
func (e *Engine) Withdraw(id uint64, caller [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.withdraw(id, caller); err != nil {
		e.metrics.observeFailure("withdraw")
		return err
	}
	return nil
}

func (e *Engine) withdraw(id uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, tradeModuleName); err != nil {
		return err
	}
	t, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	if caller != t.Seller {
		return ErrOnlySeller
	}
	if !t.Withdrawable {
		return ErrTradeNotExpired
	}
	if err := e.custody.Release(t.Offered, t.Seller); err != nil {
		return err
	}
	t.EscrowedNative = big.NewInt(0)
	t.Status = StatusWithdrawn
	t.Withdrawable = false
	if err := e.ledger.Update(t); err != nil {
		return withRestore(err, e.custody.Reclaim(t.Offered, t.Seller))
	}
	e.metrics.observeTransition("withdrawn")
	e.emit(NewTradeWithdrawnEvent(t))
	return nil
}

// CheckExpiredTrades scans the pending set, reclassifies every trade whose
// deadline has passed as expired and withdrawable, and removes it from the
// pending set. Idempotent and safe to call at any frequency; a swept trade is
// no longer pending so a second sweep is a no-op. Returns the number of
// trades swept.
func (e *Engine) CheckExpiredTrades() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, tradeModuleName); err != nil {
		return 0, err
	}
	now := e.now()
	swept := 0
	for _, id := range e.ledger.PendingIDs() {
		t, err := e.ledger.Get(id)
		if err != nil {
			return swept, err
		}
		if now < t.Deadline {
			continue
		}
		t.Status = StatusExpired
		t.Withdrawable = true
		if err := e.ledger.Update(t); err != nil {
			return swept, err
		}
		e.ledger.RemoveFromPending(id)
		swept++
		e.emit(NewTradeExpiredEvent(t))
	}
	e.metrics.observeSweep(swept)
	return swept, nil
}

// IsSweepNeeded is the cheap predicate for the external scheduler: it reports
// whether any pending trade has passed its deadline, without mutating state.
func (e *Engine) IsSweepNeeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	for _, id := range e.ledger.PendingIDs() {
		t, err := e.ledger.Get(id)
		if err != nil {
			continue
		}
		if now >= t.Deadline {
			return true
		}
	}
	return false
}

// GetTrade returns a copy of the stored trade.
func (e *Engine) GetTrade(id uint64) (*Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(id)
}

// TradeIDsBySeller returns the ids of every trade created by the seller.
func (e *Engine) TradeIDsBySeller(seller [20]byte) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.IDsBySeller(seller)
}

// TradeIDsByBuyer returns the ids of every trade naming the buyer.
func (e *Engine) TradeIDsByBuyer(buyer [20]byte) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.IDsByBuyer(buyer)
}

// PendingTradeIDs returns a snapshot of the pending working set. Order is
// unspecified.
func (e *Engine) PendingTradeIDs() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PendingIDs()
}

// EscrowedNative returns the native value currently held for the trade.
func (e *Engine) EscrowedNative(id uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, err := e.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	return t.EscrowedNative, nil
}

// EscrowedNativeBySeller returns the total native value held on behalf of
// the seller across their trades.
func (e *Engine) EscrowedNativeBySeller(seller [20]byte) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.EscrowedNativeBySeller(seller)
}

// TotalEscrowedNative sums the escrowed native attribution over all trades.
func (e *Engine) TotalEscrowedNative() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalEscrowedNative()
}

// VaultNativeBalance returns the engine vault's actual native holdings. At
// every quiescent point it equals TotalEscrowedNative.
func (e *Engine) VaultNativeBalance() *big.Int {
	return e.custody.VaultNativeBalance()
}
