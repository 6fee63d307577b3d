package credits

import (
	"math/big"

	cerrors "vsbld/core/errors"
)

// Curve constants, all in smallest native-currency units (§4.1.1).
var (
	Base   = big.NewInt(100_000_000_000_000) // 10^14
	CoeffA = big.NewInt(15_000_000_000)      // 1.5*10^10
	CoeffB = big.NewInt(25_000_000_000_000)  // 2.5*10^13
)

// Fee parameters, parts-per-million of trade_cost (§4.1.2). Package-level
// vars rather than consts so an operator's config can install an alternate
// fee schedule via Configure without recompiling.
var (
	FeeDenominator int64 = 1_000_000
	CreatorFeePPM  int64 = 20_000
	ProtocolFeePPM int64 = 20_000
	ReferrerFeePPM int64 = 10_000
)

// Configure installs an alternate fee schedule, enforcing the same
// protocolFeePPM > referrerFeePPM invariant that config.Load relies on (it
// installs the configured schedule through this function at startup) so
// PROTOCOL_FEE_PPM-REFERRER_FEE_PPM never underflows (§4.1.2).
func Configure(creatorFeePPM, protocolFeePPM, referrerFeePPM int64) error {
	if protocolFeePPM <= referrerFeePPM {
		return cerrors.ErrInvalidFeeParams
	}
	CreatorFeePPM = creatorFeePPM
	ProtocolFeePPM = protocolFeePPM
	ReferrerFeePPM = referrerFeePPM
	return nil
}

// ValidateFeeParams enforces the init-time sanity check that protocol fee
// strictly exceeds referrer fee, so PROTOCOL_FEE_PPM-REFERRER_FEE_PPM never
// underflows. Callers surface a failure as InvalidFeeParams.
func ValidateFeeParams() bool {
	return ProtocolFeePPM > ReferrerFeePPM
}

// price returns the instantaneous unit price at supply s: BASE + A*s^2 + B*s.
func price(s *big.Int) *big.Int {
	sSquared := new(big.Int).Mul(s, s)
	out := new(big.Int).Mul(CoeffA, sSquared)
	out.Add(out, new(big.Int).Mul(CoeffB, s))
	out.Add(out, Base)
	return out
}

// sumSquares returns S2(n) = sum_{k=0}^{n} k^2 = n(n+1)(2n+1)/6 for n >= 0,
// and 0 for n < 0 (the "subtract at fromSupply-1 when fromSupply==0" case).
func sumSquares(n *big.Int) *big.Int {
	if n.Sign() < 0 {
		return big.NewInt(0)
	}
	nPlus1 := new(big.Int).Add(n, big.NewInt(1))
	twoNPlus1 := new(big.Int).Add(new(big.Int).Lsh(n, 1), big.NewInt(1))
	out := new(big.Int).Mul(n, nPlus1)
	out.Mul(out, twoNPlus1)
	return out.Div(out, big.NewInt(6))
}

// sumFirstN returns S1(n) = sum_{k=0}^{n} k = n(n+1)/2 for n >= 0, 0 for n < 0.
func sumFirstN(n *big.Int) *big.Int {
	if n.Sign() < 0 {
		return big.NewInt(0)
	}
	nPlus1 := new(big.Int).Add(n, big.NewInt(1))
	out := new(big.Int).Mul(n, nPlus1)
	return out.Div(out, big.NewInt(2))
}

// tradeCost sums BASE + A*k^2 + B*k for every index k in [fromSupply,
// toSupply], via the closed-form S1/S2 identities (§4.1.1).
func tradeCost(fromSupply, toSupply uint64) *big.Int {
	from := new(big.Int).SetUint64(fromSupply)
	to := new(big.Int).SetUint64(toSupply)
	fromMinus1 := new(big.Int).Sub(from, big.NewInt(1))
	amount := new(big.Int).Sub(to, fromMinus1)

	sq := new(big.Int).Sub(sumSquares(to), sumSquares(fromMinus1))
	lin := new(big.Int).Sub(sumFirstN(to), sumFirstN(fromMinus1))

	out := new(big.Int).Mul(Base, amount)
	out.Add(out, new(big.Int).Mul(CoeffA, sq))
	out.Add(out, new(big.Int).Mul(CoeffB, lin))
	return out
}

func floorMulDiv(v *big.Int, numerator, denominator int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(numerator))
	return out.Div(out, big.NewInt(denominator))
}

// Fees is the §4.1.2 fee decomposition of one trade's cost.
type Fees struct {
	CreatorFee  *big.Int
	ProtocolFee *big.Int
	ReferrerFee *big.Int
}

func decomposeFees(cost *big.Int, hasReferrer bool) Fees {
	creatorFee := floorMulDiv(cost, CreatorFeePPM, FeeDenominator)
	if !hasReferrer {
		return Fees{
			CreatorFee:  creatorFee,
			ProtocolFee: floorMulDiv(cost, ProtocolFeePPM, FeeDenominator),
			ReferrerFee: big.NewInt(0),
		}
	}
	return Fees{
		CreatorFee:  creatorFee,
		ProtocolFee: floorMulDiv(cost, ProtocolFeePPM-ReferrerFeePPM, FeeDenominator),
		ReferrerFee: floorMulDiv(cost, ReferrerFeePPM, FeeDenominator),
	}
}

// Quote is the full cost breakdown for a buy or a sell at a given supply.
type Quote struct {
	TradeCost   *big.Int
	CreatorFee  *big.Int
	ProtocolFee *big.Int
	ReferrerFee *big.Int
	// Total is what the buyer must pay (trade cost + all fees) or what the
	// seller receives (trade cost minus all fees), depending on whether the
	// quote came from BuyQuote or SellQuote.
	Total *big.Int
	// NewTotalSupply is totalSupply after the trade commits.
	NewTotalSupply uint64
	// NewCurrentPrice is price(NewTotalSupply), reported on CreditsTrade.
	NewCurrentPrice *big.Int
}

// BuyQuote prices buying amount units at totalSupply. It reports false for a
// zero amount or a buy that would exceed MaxTotalSupply; the engine surfaces
// that as InvalidAmount.
func BuyQuote(totalSupply, amount uint64, hasReferrer bool) (*Quote, bool) {
	if amount == 0 {
		return nil, false
	}
	newSupply := new(big.Int).Add(new(big.Int).SetUint64(totalSupply), new(big.Int).SetUint64(amount))
	if newSupply.Cmp(MaxTotalSupply) > 0 {
		return nil, false
	}
	from := totalSupply
	to := totalSupply + amount - 1
	cost := tradeCost(from, to)
	fees := decomposeFees(cost, hasReferrer)
	total := new(big.Int).Add(cost, fees.CreatorFee)
	total.Add(total, fees.ProtocolFee)
	total.Add(total, fees.ReferrerFee)
	newTotalSupply := newSupply.Uint64()
	return &Quote{
		TradeCost:       cost,
		CreatorFee:      fees.CreatorFee,
		ProtocolFee:     fees.ProtocolFee,
		ReferrerFee:     fees.ReferrerFee,
		Total:           total,
		NewTotalSupply:  newTotalSupply,
		NewCurrentPrice: price(new(big.Int).SetUint64(newTotalSupply)),
	}, true
}

// SellQuote prices selling amount units at totalSupply. It reports false for
// a zero amount or selling more than totalSupply; the engine surfaces that as
// InvalidAmount.
func SellQuote(totalSupply, amount uint64, hasReferrer bool) (*Quote, bool) {
	if amount == 0 || amount > totalSupply {
		return nil, false
	}
	from := totalSupply - amount
	to := totalSupply - 1
	cost := tradeCost(from, to)
	fees := decomposeFees(cost, hasReferrer)
	total := new(big.Int).Sub(cost, fees.CreatorFee)
	total.Sub(total, fees.ProtocolFee)
	total.Sub(total, fees.ReferrerFee)
	newTotalSupply := totalSupply - amount
	return &Quote{
		TradeCost:       cost,
		CreatorFee:      fees.CreatorFee,
		ProtocolFee:     fees.ProtocolFee,
		ReferrerFee:     fees.ReferrerFee,
		Total:           total,
		NewTotalSupply:  newTotalSupply,
		NewCurrentPrice: price(new(big.Int).SetUint64(newTotalSupply)),
	}, true
}
