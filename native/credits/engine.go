package credits

import (
	"errors"
	"math/big"

	cerrors "vsbld/core/errors"
	"vsbld/core/events"
	"vsbld/core/types"
	"vsbld/native/access"
)

var zeroAddress [20]byte

var errNilState = errors.New("credits engine: state not configured")

type creditsState interface {
	GetVisibility(vid string) (*Visibility, [32]byte, error)
	PutVisibility(key [32]byte, rec *Visibility) error
	CreditBalance(visKey [32]byte, account [20]byte) (uint64, error)
	SetCreditBalance(visKey [32]byte, account [20]byte, balance uint64) error
	NativeBalance(addr []byte) (*big.Int, error)
	SetNativeBalance(addr []byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
	GetTreasury() ([20]byte, bool, error)
	PutTreasury(addr [20]byte) error
}

type creditsEvent struct{ evt *types.Event }

func (e creditsEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e creditsEvent) Attributes() map[string]string {
	if e.evt == nil {
		return nil
	}
	return e.evt.Attributes
}

// Engine implements the bonding-curve credit balance book (§4.1): mint, burn,
// transfer, and fee disbursement against the Visibility ledger.
type Engine struct {
	state   creditsState
	emitter events.Emitter
}

// NewEngine constructs a credits engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the storage backend for the current operation. Callers
// open one Store per ledger Txn and call SetState before invoking an
// operation.
func (e *Engine) SetState(state creditsState) { e.state = state }

// SetEmitter configures the event emitter. A nil emitter resets to no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(creditsEvent{evt: evt})
}

func (e *Engine) addNative(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	bal, err := e.state.NativeBalance(addr[:])
	if err != nil {
		return err
	}
	return e.state.SetNativeBalance(addr[:], new(big.Int).Add(bal, amount))
}

// GetVisibilityKey returns the domain-separated hash external consumers
// index by, per §4.1.3's public query operation of the same name.
func (e *Engine) GetVisibilityKey(vid string) [32]byte {
	return getVisibilityKey(vid)
}

// GetVisibilitySupply returns a visibility's current total supply.
func (e *Engine) GetVisibilitySupply(vid string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	vis, _, err := e.state.GetVisibility(vid)
	if err != nil {
		return 0, err
	}
	return vis.TotalSupply, nil
}

// GetVisibilityCreator returns a visibility's bound creator, if any.
func (e *Engine) GetVisibilityCreator(vid string) (addr [20]byte, hasCreator bool, err error) {
	if e == nil || e.state == nil {
		return addr, false, errNilState
	}
	vis, _, err := e.state.GetVisibility(vid)
	if err != nil {
		return addr, false, err
	}
	return vis.Creator, vis.HasCreator, nil
}

// GetVisibilityClaimableFeeBalance returns the fee balance awaiting a
// claimCreatorFee call.
func (e *Engine) GetVisibilityClaimableFeeBalance(vid string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vis, _, err := e.state.GetVisibility(vid)
	if err != nil {
		return nil, err
	}
	return vis.ClaimableFeeBalance, nil
}

// GetCreditBalance returns account's credit balance for vid.
func (e *Engine) GetCreditBalance(vid string, account [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	_, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return 0, err
	}
	return e.state.CreditBalance(key, account)
}

// BuyCostWithFees quotes buying amount units of vid at its current supply,
// without mutating state.
func (e *Engine) BuyCostWithFees(vid string, amount uint64, hasReferrer bool) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vis, _, err := e.state.GetVisibility(vid)
	if err != nil {
		return nil, err
	}
	quote, ok := BuyQuote(vis.TotalSupply, amount, hasReferrer)
	if !ok {
		return nil, cerrors.ErrInvalidAmount
	}
	return quote, nil
}

// SellCostWithFees quotes selling amount units of vid at its current supply,
// without mutating state.
func (e *Engine) SellCostWithFees(vid string, amount uint64, hasReferrer bool) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vis, _, err := e.state.GetVisibility(vid)
	if err != nil {
		return nil, err
	}
	quote, ok := SellQuote(vis.TotalSupply, amount, hasReferrer)
	if !ok {
		return nil, cerrors.ErrInvalidAmount
	}
	return quote, nil
}

// BuyCredits mints amount credits of vid for caller against the bonding
// curve. attached is the native currency the caller sent with the call; any
// excess over the quoted total is refunded. State is mutated before any
// native-currency payment leaves the engine (§4.1.3's re-entrancy
// discipline).
func (e *Engine) BuyCredits(caller [20]byte, vid string, amount uint64, referrer *[20]byte, attached *big.Int, ctx types.CommitContext) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vis, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return nil, err
	}
	hasReferrer := referrer != nil && *referrer != zeroAddress
	quote, ok := BuyQuote(vis.TotalSupply, amount, hasReferrer)
	if !ok {
		return nil, cerrors.ErrInvalidAmount
	}
	if attached == nil || attached.Cmp(quote.Total) < 0 {
		return nil, cerrors.ErrNotEnoughEthSent
	}

	vis.TotalSupply = quote.NewTotalSupply
	vis.ClaimableFeeBalance = new(big.Int).Add(vis.ClaimableFeeBalance, quote.CreatorFee)
	if err := e.state.PutVisibility(key, vis); err != nil {
		return nil, err
	}
	callerBalance, err := e.state.CreditBalance(key, caller)
	if err != nil {
		return nil, err
	}
	if err := e.state.SetCreditBalance(key, caller, callerBalance+amount); err != nil {
		return nil, err
	}

	treasury, ok, err := e.state.GetTreasury()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := e.addNative(treasury, quote.ProtocolFee); err != nil {
			return nil, err
		}
	}
	if hasReferrer {
		if err := e.addNative(*referrer, quote.ReferrerFee); err != nil {
			return nil, err
		}
	}
	refund := new(big.Int).Sub(attached, quote.Total)
	if refund.Sign() > 0 {
		if err := e.addNative(caller, refund); err != nil {
			return nil, err
		}
	}

	evt := tradeEvent{from: caller, visibilityID: vid, amount: amount, isBuy: true, quote: quote, hasReferrer: hasReferrer}
	if hasReferrer {
		evt.referrer = *referrer
	}
	e.emit(newCreditsTradeEvent(evt, ctx))
	return quote, nil
}

// SellCredits burns amount credits of vid from caller's balance against the
// bonding curve, crediting the net proceeds back to caller's native balance.
func (e *Engine) SellCredits(caller [20]byte, vid string, amount uint64, referrer *[20]byte, ctx types.CommitContext) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	vis, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return nil, err
	}
	callerBalance, err := e.state.CreditBalance(key, caller)
	if err != nil {
		return nil, err
	}
	if amount == 0 || callerBalance < amount {
		return nil, cerrors.ErrNotEnoughCreditsOwned
	}
	hasReferrer := referrer != nil && *referrer != zeroAddress
	quote, ok := SellQuote(vis.TotalSupply, amount, hasReferrer)
	if !ok {
		return nil, cerrors.ErrInvalidAmount
	}

	vis.TotalSupply = quote.NewTotalSupply
	vis.ClaimableFeeBalance = new(big.Int).Add(vis.ClaimableFeeBalance, quote.CreatorFee)
	if err := e.state.PutVisibility(key, vis); err != nil {
		return nil, err
	}
	if err := e.state.SetCreditBalance(key, caller, callerBalance-amount); err != nil {
		return nil, err
	}

	if err := e.addNative(caller, quote.Total); err != nil {
		return nil, err
	}
	treasury, ok, err := e.state.GetTreasury()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := e.addNative(treasury, quote.ProtocolFee); err != nil {
			return nil, err
		}
	}
	if hasReferrer {
		if err := e.addNative(*referrer, quote.ReferrerFee); err != nil {
			return nil, err
		}
	}

	evt := tradeEvent{from: caller, visibilityID: vid, amount: amount, isBuy: false, quote: quote, hasReferrer: hasReferrer}
	if hasReferrer {
		evt.referrer = *referrer
	}
	e.emit(newCreditsTradeEvent(evt, ctx))
	return quote, nil
}

// ClaimCreatorFee pays a visibility's claimable fee balance to its bound
// creator and zeros the balance. Callable by anyone; the recipient is always
// the recorded creator.
func (e *Engine) ClaimCreatorFee(vid string, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	vis, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return err
	}
	if !vis.HasCreator {
		return cerrors.ErrInvalidCreator
	}
	if vis.ClaimableFeeBalance == nil || vis.ClaimableFeeBalance.Sign() == 0 {
		return cerrors.ErrInvalidAmount
	}
	amount := new(big.Int).Set(vis.ClaimableFeeBalance)
	vis.ClaimableFeeBalance = big.NewInt(0)
	if err := e.state.PutVisibility(key, vis); err != nil {
		return err
	}
	if err := e.addNative(vis.Creator, amount); err != nil {
		return err
	}
	e.emit(newCreatorFeeClaimedEvent(vis.Creator, amount, ctx))
	return nil
}

// SetCreatorVisibility binds (or clears) the creator of record for vid.
// Caller must hold access.CreatorsCheckerRole.
func (e *Engine) SetCreatorVisibility(caller [20]byte, vid string, creator [20]byte, clear bool, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(access.CreatorsCheckerRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	vis, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return err
	}
	if clear {
		vis.HasCreator = false
		vis.Creator = zeroAddress
	} else {
		vis.HasCreator = true
		vis.Creator = creator
	}
	if err := e.state.PutVisibility(key, vis); err != nil {
		return err
	}
	e.emit(newCreatorVisibilitySetEvent(vid, vis.Creator, ctx))
	return nil
}

// TransferCredits moves amount credits of vid between accounts without
// touching total supply or any fee balance. Caller must hold
// access.CreditsTransferRole; the Services Engine holds it to escrow and
// settle executions.
func (e *Engine) TransferCredits(caller [20]byte, vid string, from, to [20]byte, amount uint64, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(access.CreditsTransferRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	_, key, err := e.state.GetVisibility(vid)
	if err != nil {
		return err
	}
	fromBalance, err := e.state.CreditBalance(key, from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return cerrors.ErrNotEnoughCreditsOwned
	}
	toBalance, err := e.state.CreditBalance(key, to)
	if err != nil {
		return err
	}
	if err := e.state.SetCreditBalance(key, from, fromBalance-amount); err != nil {
		return err
	}
	if err := e.state.SetCreditBalance(key, to, toBalance+amount); err != nil {
		return err
	}
	e.emit(newCreditsTransferEvent(vid, from, to, amount, ctx))
	return nil
}

// UpdateTreasury replaces the protocol-fee recipient. Caller must hold
// access.DefaultAdminRole.
func (e *Engine) UpdateTreasury(caller [20]byte, addr [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(access.DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	if addr == zeroAddress {
		return cerrors.ErrInvalidAddress
	}
	return e.state.PutTreasury(addr)
}
