// Package credits implements the bonding-curve credit balance book: mint and
// burn per-visibility credits, fee decomposition, and claimable creator
// payouts (spec §4.1).
package credits

import "math/big"

// MaxTotalSupply is the hard cap on a visibility's total_supply (2^64 - 1).
var MaxTotalSupply = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))

// Visibility is the persisted record for one visibility id's credit book.
// Credit balances are not embedded here: they're keyed separately per
// (visibility, account) the same way the reference ledger keys native
// balances per (account, token).
type Visibility struct {
	HasCreator          bool
	Creator             [20]byte
	TotalSupply         uint64
	ClaimableFeeBalance *big.Int
}

// Clone returns a deep copy so callers can't mutate stored state by
// reference.
func (v *Visibility) Clone() *Visibility {
	if v == nil {
		return &Visibility{ClaimableFeeBalance: big.NewInt(0)}
	}
	clone := *v
	if v.ClaimableFeeBalance != nil {
		clone.ClaimableFeeBalance = new(big.Int).Set(v.ClaimableFeeBalance)
	} else {
		clone.ClaimableFeeBalance = big.NewInt(0)
	}
	return &clone
}

func ensureVisibility(v *Visibility) *Visibility {
	if v == nil {
		return &Visibility{ClaimableFeeBalance: big.NewInt(0)}
	}
	if v.ClaimableFeeBalance == nil {
		v.ClaimableFeeBalance = big.NewInt(0)
	}
	return v
}
