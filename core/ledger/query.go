package ledger

import (
	"math/big"

	"vsbld/native/access"
	"vsbld/native/credits"
	"vsbld/native/services"
)

// Query exposes the engines' read-only operations against a snapshot of
// committed state. It never commits a write.
type Query struct {
	access   *access.Engine
	credits  *credits.Engine
	services *services.Engine
}

// HasRole reports whether account holds role.
func (q *Query) HasRole(role string, account [20]byte) bool {
	return q.access.HasRole(role, account)
}

// RoleMembers returns every account holding role.
func (q *Query) RoleMembers(role string) ([][]byte, error) {
	return q.access.RoleMembers(role)
}

// CurrentAdminDelay returns the effective admin-change delay.
func (q *Query) CurrentAdminDelay() (int64, error) {
	return q.access.CurrentDelay()
}

// VisibilityKey returns the domain-separated hash external consumers index
// a visibility by.
func (q *Query) VisibilityKey(vid string) [32]byte {
	return q.credits.GetVisibilityKey(vid)
}

// VisibilitySupply returns a visibility's current total supply.
func (q *Query) VisibilitySupply(vid string) (uint64, error) {
	return q.credits.GetVisibilitySupply(vid)
}

// VisibilityCreator returns a visibility's bound creator, if any.
func (q *Query) VisibilityCreator(vid string) (addr [20]byte, hasCreator bool, err error) {
	return q.credits.GetVisibilityCreator(vid)
}

// VisibilityClaimableFeeBalance returns the fee balance awaiting a
// claimCreatorFee call.
func (q *Query) VisibilityClaimableFeeBalance(vid string) (*big.Int, error) {
	return q.credits.GetVisibilityClaimableFeeBalance(vid)
}

// CreditBalance returns account's credit balance for vid.
func (q *Query) CreditBalance(vid string, account [20]byte) (uint64, error) {
	return q.credits.GetCreditBalance(vid, account)
}

// BuyQuote quotes buying amount units of vid without mutating state.
func (q *Query) BuyQuote(vid string, amount uint64, hasReferrer bool) (*credits.Quote, error) {
	return q.credits.BuyCostWithFees(vid, amount, hasReferrer)
}

// SellQuote quotes selling amount units of vid without mutating state.
func (q *Query) SellQuote(vid string, amount uint64, hasReferrer bool) (*credits.Quote, error) {
	return q.credits.SellCostWithFees(vid, amount, hasReferrer)
}

// Service returns a service's persisted record.
func (q *Query) Service(nonce uint64) (*services.Service, bool, error) {
	return q.services.GetService(nonce)
}

// ServiceExecution returns an execution's state, requester, and last update
// timestamp.
func (q *Query) ServiceExecution(serviceNonce, executionNonce uint64) (services.ExecutionState, [20]byte, int64, error) {
	return q.services.GetServiceExecution(serviceNonce, executionNonce)
}
