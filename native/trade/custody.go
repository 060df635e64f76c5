package trade

import (
	"fmt"
	"math/big"
)

// TokenContract is the fungible-token collaborator consumed by the custody
// adapter, mirroring the ERC20 allowance surface.
type TokenContract interface {
	BalanceOf(owner [20]byte) *big.Int
	Allowance(owner, spender [20]byte) *big.Int
	TransferFrom(from, to [20]byte, amount *big.Int) error
}

// NFTContract is the non-fungible collaborator, mirroring the ERC721 surface.
type NFTContract interface {
	OwnerOf(tokenID uint64) ([20]byte, error)
	GetApproved(tokenID uint64) ([20]byte, error)
	TransferFrom(from, to [20]byte, tokenID uint64) error
}

// TokenRegistry resolves contract addresses to live collaborator instances.
type TokenRegistry interface {
	Token(addr [20]byte) (TokenContract, bool)
	NFT(addr [20]byte) (NFTContract, bool)
}

// NativeBank moves native value between addresses. An outbound transfer must
// fail (rather than silently drop funds) when the recipient rejects it.
type NativeBank interface {
	BalanceOf(addr [20]byte) *big.Int
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Custody performs and verifies transfers-in and transfers-out for each asset
// kind. Every unit of native value held by the vault is attributed to exactly
// one trade's escrowed amount; the adapter itself never holds
// undifferentiated value.
type Custody struct {
	bank     NativeBank
	registry TokenRegistry
	vault    [20]byte
}

// NewCustody builds a custody adapter holding assets under the vault address.
func NewCustody(bank NativeBank, registry TokenRegistry, vault [20]byte) *Custody {
	return &Custody{bank: bank, registry: registry, vault: vault}
}

// VaultAddress returns the address under which escrowed assets are held.
func (c *Custody) VaultAddress() [20]byte { return c.vault }

// VaultNativeBalance returns the vault's total native holdings.
func (c *Custody) VaultNativeBalance() *big.Int {
	return c.bank.BalanceOf(c.vault)
}

// CheckValue verifies that the value attached to a call equals the leg's
// native component exactly. Any mismatch is a hard failure, not a partial
// acceptance.
func (c *Custody) CheckValue(leg AssetLeg, value *big.Int) error {
	attached := big.NewInt(0)
	if value != nil {
		attached = value
	}
	if attached.Sign() < 0 {
		return ErrIncorrectNativeValue
	}
	if attached.Cmp(leg.nativeAmount()) != 0 {
		return ErrIncorrectNativeValue
	}
	return nil
}

// Verify checks that the owner can satisfy every component of the leg without
// moving anything.
func (c *Custody) Verify(owner [20]byte, leg AssetLeg) error {
	if leg.HasNative() {
		if c.bank.BalanceOf(owner).Cmp(leg.nativeAmount()) < 0 {
			return ErrInsufficientBalance
		}
	}
	if leg.HasToken() {
		token, ok := c.registry.Token(leg.Token)
		if !ok {
			return ErrInvalidAddress
		}
		amount := leg.tokenAmount()
		if token.BalanceOf(owner).Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		if token.Allowance(owner, c.vault).Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
	}
	if leg.HasNFT() {
		nft, ok := c.registry.NFT(leg.NFT)
		if !ok {
			return ErrInvalidAddress
		}
		currentOwner, err := nft.OwnerOf(leg.NFTTokenID)
		if err != nil || currentOwner != owner {
			return ErrNotNFTOwner
		}
		approved, err := nft.GetApproved(leg.NFTTokenID)
		if err != nil || approved != c.vault {
			return ErrNFTNotApproved
		}
	}
	return nil
}

// Lock pulls the leg's assets from the owner into the vault. All
// preconditions are verified before any transfer; if a later transfer still
// fails, the completed ones are unwound so the leg is never left partially
// locked.
func (c *Custody) Lock(owner [20]byte, leg AssetLeg) error {
	if err := c.Verify(owner, leg); err != nil {
		return err
	}
	return c.move(owner, c.vault, leg)
}

// Release delivers the leg's assets from the vault to the recipient. Failure
// of any component aborts the whole release with prior components unwound.
func (c *Custody) Release(leg AssetLeg, to [20]byte) error {
	return c.move(c.vault, to, leg)
}

// Reclaim pulls a previously released leg back from its holder into the
// vault. It exists so a multi-step settlement can restore escrow when a later
// step fails.
func (c *Custody) Reclaim(leg AssetLeg, from [20]byte) error {
	return c.move(from, c.vault, leg)
}

func (c *Custody) move(from, to [20]byte, leg AssetLeg) error {
	var undo []func()
	unwind := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	if leg.HasToken() {
		token, ok := c.registry.Token(leg.Token)
		if !ok {
			return ErrInvalidAddress
		}
		amount := leg.tokenAmount()
		if err := token.TransferFrom(from, to, amount); err != nil {
			return fmt.Errorf("custody: token transfer: %w", err)
		}
		undo = append(undo, func() { _ = token.TransferFrom(to, from, amount) })
	}
	if leg.HasNFT() {
		nft, ok := c.registry.NFT(leg.NFT)
		if !ok {
			unwind()
			return ErrInvalidAddress
		}
		if err := nft.TransferFrom(from, to, leg.NFTTokenID); err != nil {
			unwind()
			return fmt.Errorf("custody: nft transfer: %w", err)
		}
		id := leg.NFTTokenID
		undo = append(undo, func() { _ = nft.TransferFrom(to, from, id) })
	}
	if leg.HasNative() {
		if err := c.bank.Transfer(from, to, leg.nativeAmount()); err != nil {
			unwind()
			return fmt.Errorf("custody: native transfer: %w", err)
		}
	}
	return nil
}
