package trade

import (
	"errors"
	"math/big"
	"testing"
)

func TestValidateLegs(t *testing.T) {
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	tokenA := newTestAddress(0x51)
	tokenB := newTestAddress(0x52)
	nftA := newTestAddress(0x53)

	cases := []struct {
		name      string
		seller    [20]byte
		buyer     [20]byte
		offered   AssetLeg
		requested AssetLeg
		wantErr   error
	}{
		{
			name:      "token for token",
			seller:    seller,
			buyer:     buyer,
			offered:   tokenLeg(tokenA, 100),
			requested: tokenLeg(tokenB, 50),
		},
		{
			name:      "native for token",
			seller:    seller,
			buyer:     buyer,
			offered:   nativeLeg(100),
			requested: tokenLeg(tokenB, 50),
		},
		{
			name:      "nft for mixed",
			seller:    seller,
			buyer:     buyer,
			offered:   nftLeg(nftA, 1),
			requested: mixedLeg(10, tokenB, 50),
		},
		{
			name:      "zero seller",
			seller:    [20]byte{},
			buyer:     buyer,
			offered:   tokenLeg(tokenA, 100),
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidAddress,
		},
		{
			name:      "zero buyer",
			seller:    seller,
			buyer:     [20]byte{},
			offered:   tokenLeg(tokenA, 100),
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidAddress,
		},
		{
			name:      "seller is buyer",
			seller:    seller,
			buyer:     seller,
			offered:   tokenLeg(tokenA, 100),
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrCannotTradeWithSelf,
		},
		{
			name:      "same token",
			seller:    seller,
			buyer:     buyer,
			offered:   tokenLeg(tokenA, 100),
			requested: tokenLeg(tokenA, 50),
			wantErr:   ErrCannotTradeSameToken,
		},
		{
			name:      "same nft contract",
			seller:    seller,
			buyer:     buyer,
			offered:   nftLeg(nftA, 1),
			requested: nftLeg(nftA, 2),
			wantErr:   ErrCannotTradeSameToken,
		},
		{
			name:      "native on both sides",
			seller:    seller,
			buyer:     buyer,
			offered:   nativeLeg(100),
			requested: nativeLeg(200),
			wantErr:   ErrCannotTradeSameToken,
		},
		{
			name:      "empty offered",
			seller:    seller,
			buyer:     buyer,
			offered:   AssetLeg{},
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidInputs,
		},
		{
			name:      "negative native amount",
			seller:    seller,
			buyer:     buyer,
			offered:   AssetLeg{NativeAmount: big.NewInt(-1)},
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidInputs,
		},
		{
			name:      "token amount without token address",
			seller:    seller,
			buyer:     buyer,
			offered:   AssetLeg{TokenAmount: big.NewInt(100)},
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidAddress,
		},
		{
			name:      "token address without amount",
			seller:    seller,
			buyer:     buyer,
			offered:   AssetLeg{Token: tokenA},
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidInputs,
		},
		{
			name:      "compound leg rejected by default",
			seller:    seller,
			buyer:     buyer,
			offered:   AssetLeg{Token: tokenA, TokenAmount: big.NewInt(5), NFT: nftA, NFTTokenID: 1},
			requested: tokenLeg(tokenB, 50),
			wantErr:   ErrInvalidInputs,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLegs(tc.seller, tc.buyer, tc.offered, tc.requested, false)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateLegsCompoundGate(t *testing.T) {
	seller := newTestAddress(0x01)
	buyer := newTestAddress(0x02)
	compound := AssetLeg{Token: newTestAddress(0x51), TokenAmount: big.NewInt(5), NFT: newTestAddress(0x53), NFTTokenID: 1}
	requested := tokenLeg(newTestAddress(0x52), 50)
	if err := ValidateLegs(seller, buyer, compound, requested, true); err != nil {
		t.Fatalf("compound leg with gate enabled: %v", err)
	}
}

func TestTradeCloneIsIndependent(t *testing.T) {
	original := &Trade{
		ID:             4,
		Seller:         newTestAddress(0x01),
		Buyer:          newTestAddress(0x02),
		Offered:        mixedLeg(10, newTestAddress(0x51), 5),
		Requested:      tokenLeg(newTestAddress(0x52), 5),
		CreatedAt:      1000,
		Deadline:       1600,
		EscrowedNative: big.NewInt(10),
		Status:         StatusPending,
	}
	clone := original.Clone()
	clone.EscrowedNative.SetInt64(99)
	clone.Offered.NativeAmount.SetInt64(99)
	clone.Status = StatusExpired

	if original.EscrowedNative.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("escrow mutated through clone: %s", original.EscrowedNative)
	}
	if original.Offered.NativeAmount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("offered leg mutated through clone: %s", original.Offered.NativeAmount)
	}
	if original.Status != StatusPending {
		t.Fatalf("status mutated through clone: %s", original.Status)
	}
}

func TestSanitizeTrade(t *testing.T) {
	base := func() *Trade {
		return &Trade{
			Seller:         newTestAddress(0x01),
			Buyer:          newTestAddress(0x02),
			Offered:        nativeLeg(10),
			Requested:      tokenLeg(newTestAddress(0x52), 5),
			CreatedAt:      1000,
			Deadline:       1600,
			EscrowedNative: big.NewInt(10),
			Status:         StatusPending,
		}
	}
	if _, err := SanitizeTrade(nil); err == nil {
		t.Fatalf("nil trade must be rejected")
	}
	t1 := base()
	t1.EscrowedNative = big.NewInt(-1)
	if _, err := SanitizeTrade(t1); err == nil {
		t.Fatalf("negative escrow must be rejected")
	}
	t2 := base()
	t2.Deadline = t2.CreatedAt
	if _, err := SanitizeTrade(t2); err == nil {
		t.Fatalf("deadline at creation time must be rejected")
	}
	t3 := base()
	t3.Seller = [20]byte{}
	if _, err := SanitizeTrade(t3); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("zero seller must be rejected, got %v", err)
	}
	t4 := base()
	t4.Status = TradeStatus(42)
	if _, err := SanitizeTrade(t4); err == nil {
		t.Fatalf("unknown status must be rejected")
	}
	t5 := base()
	t5.EscrowedNative = nil
	sanitized, err := SanitizeTrade(t5)
	if err != nil {
		t.Fatalf("nil escrow should normalise to zero: %v", err)
	}
	if sanitized.EscrowedNative == nil || sanitized.EscrowedNative.Sign() != 0 {
		t.Fatalf("escrow should be zero after sanitize, got %v", sanitized.EscrowedNative)
	}
	if t5.EscrowedNative != nil {
		t.Fatalf("sanitize must not mutate its argument")
	}
}

func TestTradeStatusStrings(t *testing.T) {
	cases := map[TradeStatus]string{
		StatusPending:   "pending",
		StatusConfirmed: "confirmed",
		StatusCanceled:  "canceled",
		StatusExpired:   "expired",
		StatusWithdrawn: "withdrawn",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("status %d: expected %q, got %q", status, want, got)
		}
		if !status.Valid() {
			t.Fatalf("status %d should be valid", status)
		}
	}
	if TradeStatus(99).Valid() {
		t.Fatalf("status 99 should be invalid")
	}
}
