package trade

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"tradevault/storage"
)

var tradeKeyPrefix = []byte("trade/")

func tradeKey(id uint64) []byte {
	key := make([]byte, len(tradeKeyPrefix)+8)
	copy(key, tradeKeyPrefix)
	binary.BigEndian.PutUint64(key[len(tradeKeyPrefix):], id)
	return key
}

// Ledger is the durable trade table plus its secondary indices: append-only
// per-identity id sequences for discovery and the pending working set scanned
// by the sweeper. All reads return clones; all writes persist through the
// backing database.
type Ledger struct {
	db         storage.Database
	trades     map[uint64]*Trade
	nextID     uint64
	bySeller   map[[20]byte][]uint64
	byBuyer    map[[20]byte][]uint64
	pending    []uint64
	pendingPos map[uint64]int
}

// NewLedger opens a ledger over the supplied database, rebuilding the
// in-memory indices from any previously stored trades.
func NewLedger(db storage.Database) (*Ledger, error) {
	l := &Ledger{
		db:         db,
		trades:     make(map[uint64]*Trade),
		bySeller:   make(map[[20]byte][]uint64),
		byBuyer:    make(map[[20]byte][]uint64),
		pendingPos: make(map[uint64]int),
	}
	err := db.Iterate(tradeKeyPrefix, func(key, value []byte) error {
		stored := &Trade{}
		if err := json.Unmarshal(value, stored); err != nil {
			return fmt.Errorf("ledger: decode trade %x: %w", key, err)
		}
		sanitized, err := SanitizeTrade(stored)
		if err != nil {
			return fmt.Errorf("ledger: stored trade %d: %w", stored.ID, err)
		}
		l.trades[sanitized.ID] = sanitized
		if sanitized.ID >= l.nextID {
			l.nextID = sanitized.ID + 1
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(l.trades))
	for id := range l.trades {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t := l.trades[id]
		l.bySeller[t.Seller] = append(l.bySeller[t.Seller], id)
		l.byBuyer[t.Buyer] = append(l.byBuyer[t.Buyer], id)
		if t.Status == StatusPending {
			l.pendingPos[id] = len(l.pending)
			l.pending = append(l.pending, id)
		}
	}
	return l, nil
}

func (l *Ledger) persist(t *Trade) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return l.db.Put(tradeKey(t.ID), raw)
}

// Insert assigns the next id to the trade, appends it to both identity
// indices, adds it to the pending set and persists it. The returned id is
// monotonically assigned.
func (l *Ledger) Insert(t *Trade) (uint64, error) {
	if t == nil {
		return 0, fmt.Errorf("ledger: nil trade")
	}
	t.ID = l.nextID
	sanitized, err := SanitizeTrade(t)
	if err != nil {
		return 0, err
	}
	if err := l.persist(sanitized); err != nil {
		return 0, err
	}
	l.nextID++
	l.trades[sanitized.ID] = sanitized
	l.bySeller[sanitized.Seller] = append(l.bySeller[sanitized.Seller], sanitized.ID)
	l.byBuyer[sanitized.Buyer] = append(l.byBuyer[sanitized.Buyer], sanitized.ID)
	if sanitized.Status == StatusPending {
		l.pendingPos[sanitized.ID] = len(l.pending)
		l.pending = append(l.pending, sanitized.ID)
	}
	return sanitized.ID, nil
}

// Get returns a clone of the stored trade or ErrTradeNotFound.
func (l *Ledger) Get(id uint64) (*Trade, error) {
	t, ok := l.trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	return t.Clone(), nil
}

// Update sanitizes and stores the supplied trade, which must already exist.
func (l *Ledger) Update(t *Trade) error {
	if t == nil {
		return fmt.Errorf("ledger: nil trade")
	}
	if _, ok := l.trades[t.ID]; !ok {
		return ErrTradeNotFound
	}
	sanitized, err := SanitizeTrade(t)
	if err != nil {
		return err
	}
	if err := l.persist(sanitized); err != nil {
		return err
	}
	l.trades[sanitized.ID] = sanitized
	return nil
}

// UpdateStatus stores a new status for the trade.
func (l *Ledger) UpdateStatus(id uint64, status TradeStatus) error {
	t, ok := l.trades[id]
	if !ok {
		return ErrTradeNotFound
	}
	clone := t.Clone()
	clone.Status = status
	return l.Update(clone)
}

// RemoveFromPending removes the id from the pending working set in O(1) by
// swapping the last element into its slot. Iteration order is not an
// externally visible contract. Removing an absent id is a no-op.
func (l *Ledger) RemoveFromPending(id uint64) {
	pos, ok := l.pendingPos[id]
	if !ok {
		return
	}
	last := len(l.pending) - 1
	moved := l.pending[last]
	l.pending[pos] = moved
	l.pendingPos[moved] = pos
	l.pending = l.pending[:last]
	delete(l.pendingPos, id)
}

// PendingIDs returns a snapshot of the pending working set. The copy is safe
// to iterate while the set is mutated.
func (l *Ledger) PendingIDs() []uint64 {
	return append([]uint64(nil), l.pending...)
}

// IsPending reports whether the id is currently in the pending set.
func (l *Ledger) IsPending(id uint64) bool {
	_, ok := l.pendingPos[id]
	return ok
}

// IDsBySeller returns the append-only sequence of trade ids created by the
// given seller. The index is never pruned on state transitions so terminal
// trades remain discoverable for audit.
func (l *Ledger) IDsBySeller(seller [20]byte) []uint64 {
	return append([]uint64(nil), l.bySeller[seller]...)
}

// IDsByBuyer returns the append-only sequence of trade ids naming the given
// buyer.
func (l *Ledger) IDsByBuyer(buyer [20]byte) []uint64 {
	return append([]uint64(nil), l.byBuyer[buyer]...)
}

// Len returns the number of trades ever inserted.
func (l *Ledger) Len() int {
	return len(l.trades)
}

// EscrowedNativeBySeller sums the native value currently held on behalf of
// the seller across all of their trades.
func (l *Ledger) EscrowedNativeBySeller(seller [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, id := range l.bySeller[seller] {
		t := l.trades[id]
		if t.EscrowedNative != nil {
			total.Add(total, t.EscrowedNative)
		}
	}
	return total
}

// TotalEscrowedNative sums escrowed native value across every live trade.
// At any quiescent point this equals the engine vault's native balance.
func (l *Ledger) TotalEscrowedNative() *big.Int {
	total := big.NewInt(0)
	for _, t := range l.trades {
		if t.EscrowedNative != nil {
			total.Add(total, t.EscrowedNative)
		}
	}
	return total
}
