package credits

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"vsbld/core/types"
)

const (
	EventTypeCreatorFeeClaimed     = "credits.creator_fee.claimed"
	EventTypeCreatorVisibilitySet  = "credits.creator_visibility.set"
	EventTypeCreditsTrade          = "credits.trade"
	EventTypeCreditsTransfer       = "credits.transfer"
)

func withCommit(attrs map[string]string, ctx types.CommitContext) map[string]string {
	attrs["blockNumber"] = strconv.FormatUint(ctx.BlockNumber, 10)
	attrs["blockTimestamp"] = strconv.FormatInt(ctx.BlockTimestamp, 10)
	attrs["transactionHash"] = hex.EncodeToString(ctx.TransactionHash[:])
	return attrs
}

func newCreatorFeeClaimedEvent(creator [20]byte, amount *big.Int, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeCreatorFeeClaimed, Attributes: withCommit(map[string]string{
		"creator": hex.EncodeToString(creator[:]),
		"amount":  amount.String(),
	}, ctx)}
}

func newCreatorVisibilitySetEvent(vid string, creator [20]byte, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeCreatorVisibilitySet, Attributes: withCommit(map[string]string{
		"visibilityId": vid,
		"creator":      hex.EncodeToString(creator[:]),
	}, ctx)}
}

// tradeEvent carries the full §6 CreditsTrade wire-field set.
type tradeEvent struct {
	from            [20]byte
	visibilityID    string
	amount          uint64
	isBuy           bool
	quote           *Quote
	referrer        [20]byte
	hasReferrer     bool
}

func newCreditsTradeEvent(t tradeEvent, ctx types.CommitContext) *types.Event {
	referrer := ""
	if t.hasReferrer {
		referrer = hex.EncodeToString(t.referrer[:])
	}
	return &types.Event{Type: EventTypeCreditsTrade, Attributes: withCommit(map[string]string{
		"from":            hex.EncodeToString(t.from[:]),
		"visibilityId":    t.visibilityID,
		"amount":          strconv.FormatUint(t.amount, 10),
		"isBuy":           strconv.FormatBool(t.isBuy),
		"tradeCost":       t.quote.TradeCost.String(),
		"creatorFee":      t.quote.CreatorFee.String(),
		"protocolFee":     t.quote.ProtocolFee.String(),
		"referrerFee":     t.quote.ReferrerFee.String(),
		"referrer":        referrer,
		"newTotalSupply":  strconv.FormatUint(t.quote.NewTotalSupply, 10),
		"newCurrentPrice": t.quote.NewCurrentPrice.String(),
	}, ctx)}
}

func newCreditsTransferEvent(vid string, from, to [20]byte, amount uint64, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeCreditsTransfer, Attributes: withCommit(map[string]string{
		"visibilityId": vid,
		"from":         hex.EncodeToString(from[:]),
		"to":           hex.EncodeToString(to[:]),
		"amount":       strconv.FormatUint(amount, 10),
	}, ctx)}
}
