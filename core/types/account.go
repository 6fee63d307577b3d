package types

import "math/big"

// Account is the ledger's native-currency balance sheet entry. Credit
// balances are not stored here: they live per-visibility in the credits
// engine's own records, since a credit is only meaningful relative to the
// visibility that issued it.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureBalance returns acc with a non-nil Balance, allocating a fresh
// account when acc is nil.
func EnsureBalance(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}
