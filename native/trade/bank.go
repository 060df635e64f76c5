package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"tradevault/core/types"
	"tradevault/storage"
)

var accountKeyPrefix = []byte("account/")

func accountKey(addr [20]byte) []byte {
	key := make([]byte, len(accountKeyPrefix)+len(addr))
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], addr[:])
	return key
}

// AccountBank is a NativeBank backed by per-address account records in the
// key-value store. It is the engine-side ledger for native value; token and
// NFT holdings stay with their collaborator contracts.
type AccountBank struct {
	db storage.Database
}

// NewAccountBank opens a bank over the supplied database.
func NewAccountBank(db storage.Database) *AccountBank {
	return &AccountBank{db: db}
}

func (b *AccountBank) load(addr [20]byte) (*types.Account, error) {
	raw, err := b.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	if err != nil {
		return nil, err
	}
	acc := &types.Account{}
	if err := json.Unmarshal(raw, acc); err != nil {
		return nil, err
	}
	return acc.EnsureDefaults(), nil
}

func (b *AccountBank) store(addr [20]byte, acc *types.Account) error {
	raw, err := json.Marshal(acc.EnsureDefaults())
	if err != nil {
		return err
	}
	return b.db.Put(accountKey(addr), raw)
}

// BalanceOf returns the native balance of the address.
func (b *AccountBank) BalanceOf(addr [20]byte) *big.Int {
	acc, err := b.load(addr)
	if err != nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

// Transfer moves native value between addresses, failing without effect when
// the sender's balance is insufficient.
func (b *AccountBank) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount")
	}
	fromAcc, err := b.load(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := b.load(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := b.store(from, fromAcc); err != nil {
		return err
	}
	return b.store(to, toAcc)
}

// Mint credits the address with new native value. Used by deployment tooling
// and tests to seed balances.
func (b *AccountBank) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: mint amount must be positive")
	}
	acc, err := b.load(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return b.store(addr, acc)
}
