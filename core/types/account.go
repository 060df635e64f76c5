package types

import "math/big"

// Account tracks the native value held by a single address. Token and NFT
// holdings live in their respective collaborator contracts; the engine only
// accounts for native balances directly.
type Account struct {
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

// EnsureDefaults backfills nil fields so callers can operate on the account
// without nil checks.
func (a *Account) EnsureDefaults() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	return a
}
