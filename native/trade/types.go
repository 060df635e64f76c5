package trade

import (
	"fmt"
	"math/big"
)

// TradeStatus represents the lifecycle states of an escrowed trade.
type TradeStatus uint8

const (
	StatusPending TradeStatus = iota
	StatusConfirmed
	StatusCanceled
	StatusExpired
	StatusWithdrawn
)

// Valid reports whether the status value is within the supported range.
func (s TradeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled, StatusExpired, StatusWithdrawn:
		return true
	default:
		return false
	}
}

func (s TradeStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusCanceled:
		return "canceled"
	case StatusExpired:
		return "expired"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// AssetLeg describes the bundle of assets one party contributes to a trade.
// A component is present when its amount is positive (native, fungible) or
// when its contract address is non-zero (non-fungible). The zero address
// marks an absent contract.
type AssetLeg struct {
	NativeAmount *big.Int `json:"nativeAmount"`
	Token        [20]byte `json:"token"`
	TokenAmount  *big.Int `json:"tokenAmount"`
	NFT          [20]byte `json:"nft"`
	NFTTokenID   uint64   `json:"nftTokenId"`
}

var zeroAddress [20]byte

// HasNative reports whether the leg carries a positive native component.
func (l AssetLeg) HasNative() bool {
	return l.NativeAmount != nil && l.NativeAmount.Sign() > 0
}

// HasToken reports whether the leg carries a fungible token component.
func (l AssetLeg) HasToken() bool {
	return l.Token != zeroAddress
}

// HasNFT reports whether the leg carries a non-fungible component.
func (l AssetLeg) HasNFT() bool {
	return l.NFT != zeroAddress
}

// IsZero reports whether the leg has no content at all.
func (l AssetLeg) IsZero() bool {
	return !l.HasNative() && !l.HasToken() && !l.HasNFT()
}

// Clone returns a deep copy of the leg so callers can safely mutate the copy.
func (l AssetLeg) Clone() AssetLeg {
	clone := l
	if l.NativeAmount != nil {
		clone.NativeAmount = new(big.Int).Set(l.NativeAmount)
	} else {
		clone.NativeAmount = big.NewInt(0)
	}
	if l.TokenAmount != nil {
		clone.TokenAmount = new(big.Int).Set(l.TokenAmount)
	} else {
		clone.TokenAmount = big.NewInt(0)
	}
	return clone
}

// nativeAmount returns the native component as a non-nil value.
func (l AssetLeg) nativeAmount() *big.Int {
	if l.NativeAmount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.NativeAmount)
}

func (l AssetLeg) tokenAmount() *big.Int {
	if l.TokenAmount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(l.TokenAmount)
}

// validate checks the internal consistency of a single leg. compound gates
// whether fungible and non-fungible components may share a leg.
func (l AssetLeg) validate(compound bool) error {
	if l.NativeAmount != nil && l.NativeAmount.Sign() < 0 {
		return ErrInvalidInputs
	}
	if l.TokenAmount != nil && l.TokenAmount.Sign() < 0 {
		return ErrInvalidInputs
	}
	if !l.HasToken() && l.TokenAmount != nil && l.TokenAmount.Sign() > 0 {
		return ErrInvalidAddress
	}
	if l.HasToken() && l.tokenAmount().Sign() == 0 {
		return ErrInvalidInputs
	}
	if l.IsZero() {
		return ErrInvalidInputs
	}
	if !compound && l.HasToken() && l.HasNFT() {
		return ErrInvalidInputs
	}
	return nil
}

// ValidateLegs performs the creation-time precondition checks for a proposed
// (offered, requested) pair. Pure validation, no side effects.
func ValidateLegs(seller, buyer [20]byte, offered, requested AssetLeg, compound bool) error {
	if buyer == zeroAddress || seller == zeroAddress {
		return ErrInvalidAddress
	}
	if err := offered.validate(compound); err != nil {
		return err
	}
	if err := requested.validate(compound); err != nil {
		return err
	}
	if offered.HasToken() && offered.Token == requested.Token {
		return ErrCannotTradeSameToken
	}
	if offered.HasNFT() && offered.NFT == requested.NFT {
		return ErrCannotTradeSameToken
	}
	// A trade may not move native value in both directions; that is the
	// degenerate native-for-native exchange.
	if offered.HasNative() && requested.HasNative() {
		return ErrCannotTradeSameToken
	}
	if seller == buyer {
		return ErrCannotTradeWithSelf
	}
	return nil
}

// Trade is the unit of escrow: the seller's offered leg is held by the engine
// from creation until exactly one release (confirm, cancel or withdraw).
type Trade struct {
	ID             uint64      `json:"id"`
	Seller         [20]byte    `json:"seller"`
	Buyer          [20]byte    `json:"buyer"`
	Offered        AssetLeg    `json:"offered"`
	Requested      AssetLeg    `json:"requested"`
	CreatedAt      int64       `json:"createdAt"`
	Deadline       int64       `json:"deadline"`
	EscrowedNative *big.Int    `json:"escrowedNative"`
	Status         TradeStatus `json:"status"`
	Withdrawable   bool        `json:"withdrawable"`
}

// Clone returns a deep copy of the trade allowing callers to mutate the
// result without affecting the stored instance.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Offered = t.Offered.Clone()
	clone.Requested = t.Requested.Clone()
	if t.EscrowedNative != nil {
		clone.EscrowedNative = new(big.Int).Set(t.EscrowedNative)
	} else {
		clone.EscrowedNative = big.NewInt(0)
	}
	return &clone
}

// SanitizeTrade validates and normalises the supplied trade record, returning
// a cloned instance with non-nil amount fields. The function does not mutate
// the original value.
func SanitizeTrade(t *Trade) (*Trade, error) {
	if t == nil {
		return nil, fmt.Errorf("trade: nil trade")
	}
	clone := t.Clone()
	if clone.EscrowedNative.Sign() < 0 {
		return nil, fmt.Errorf("trade: escrowed native amount must be non-negative")
	}
	if clone.Deadline <= clone.CreatedAt {
		return nil, fmt.Errorf("trade: deadline must follow creation time")
	}
	if clone.Seller == zeroAddress || clone.Buyer == zeroAddress {
		return nil, ErrInvalidAddress
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("trade: invalid status %d", clone.Status)
	}
	return clone, nil
}
