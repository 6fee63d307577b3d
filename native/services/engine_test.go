package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	cerrors "vsbld/core/errors"
	"vsbld/core/state"
	"vsbld/core/types"
	"vsbld/native/access"
	"vsbld/native/credits"
	"vsbld/storage"
)

type harness struct {
	mgr      *state.Manager
	credits  *credits.Engine
	access   *access.Engine
	services *Engine
	self     [20]byte
	now      int64
}

func newHarness() *harness {
	self := testAddress(0xEE)
	h := &harness{
		mgr:      state.NewManager(storage.NewMemDB()),
		credits:  credits.NewEngine(),
		access:   access.NewEngine(),
		services: NewEngine(),
		self:     self,
		now:      1_700_000_000,
	}
	h.services.SetSelfAddress(self)
	h.services.SetNowFunc(func() int64 { return h.now })
	return h
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

// withTxn wires a fresh transaction into all three engines and returns it;
// callers must Commit it themselves to persist mutations.
func (h *harness) withTxn() *state.Txn {
	txn := h.mgr.Begin()
	h.credits.SetState(&credits.Store{Txn: txn})
	h.access.SetState(&access.Store{Txn: txn})
	h.services.SetState(&Store{Txn: txn})
	h.services.SetCreditsEngine(h.credits)
	return txn
}

func (h *harness) bootstrapAdmin(t *testing.T, admin [20]byte) {
	t.Helper()
	txn := h.mgr.Begin()
	require.NoError(t, txn.SetRole(access.DefaultAdminRole, admin[:]))
	require.NoError(t, txn.Commit())
}

func (h *harness) grantRole(t *testing.T, admin [20]byte, role string, account [20]byte) {
	t.Helper()
	txn := h.withTxn()
	require.NoError(t, h.access.GrantRole(admin, role, account, types.CommitContext{}))
	require.NoError(t, txn.Commit())
}

func (h *harness) buyCredits(t *testing.T, buyer [20]byte, vid string, amount uint64) {
	t.Helper()
	quote, ok := credits.BuyQuote(0, amount, false)
	require.True(t, ok)
	txn := h.withTxn()
	_, err := h.credits.BuyCredits(buyer, vid, amount, nil, quote.Total, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
}

func TestServiceHappyPath(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)

	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	en, err := h.services.RequestServiceExecution(requester, nonce, "do the thing", types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	escrowBalance, err := h.credits.GetCreditBalance("x-V", h.self)
	require.NoError(t, err)
	require.Equal(t, uint64(10), escrowBalance)
	requesterBalance, err := h.credits.GetCreditBalance("x-V", requester)
	require.NoError(t, err)
	require.Equal(t, uint64(40), requesterBalance)

	txn = h.withTxn()
	require.NoError(t, h.services.AcceptServiceExecution(creator, nonce, en, "ack", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	require.NoError(t, h.services.ValidateServiceExecution(requester, nonce, en, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	escrowBalance, err = h.credits.GetCreditBalance("x-V", h.self)
	require.NoError(t, err)
	require.Equal(t, uint64(0), escrowBalance)
	creatorBalance, err := h.credits.GetCreditBalance("x-V", creator)
	require.NoError(t, err)
	require.Equal(t, uint64(10), creatorBalance)

	execState, _, _, err := h.services.GetServiceExecution(nonce, en)
	require.NoError(t, err)
	require.Equal(t, ExecutionStateValidated, execState)
}

func TestDisabledServiceRejectsRequest(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)
	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())
	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, h.services.UpdateService(creator, nonce, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	requesterBalanceBefore, err := h.credits.GetCreditBalance("x-V", requester)
	require.NoError(t, err)

	txn = h.withTxn()
	_, err = h.services.RequestServiceExecution(requester, nonce, "nope", types.CommitContext{})
	require.ErrorIs(t, err, cerrors.ErrDisabledService)

	requesterBalanceAfter, err := h.credits.GetCreditBalance("x-V", requester)
	require.NoError(t, err)
	require.Equal(t, requesterBalanceBefore, requesterBalanceAfter)
}

func TestCancelServiceExecutionRefundsRequester(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)
	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())
	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	en, err := h.services.RequestServiceExecution(requester, nonce, "do the thing", types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	require.NoError(t, h.services.CancelServiceExecution(requester, nonce, en, "changed my mind", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	requesterBalance, err := h.credits.GetCreditBalance("x-V", requester)
	require.NoError(t, err)
	require.Equal(t, uint64(50), requesterBalance)

	execState, _, _, err := h.services.GetServiceExecution(nonce, en)
	require.NoError(t, err)
	require.Equal(t, ExecutionStateRefunded, execState)
}

func TestAutoValidationAfterDelayAllowsAnyCaller(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)
	stranger := testAddress(0x04)
	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())
	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	en, err := h.services.RequestServiceExecution(requester, nonce, "do the thing", types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	require.NoError(t, h.services.AcceptServiceExecution(creator, nonce, en, "ack", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	err = h.services.ValidateServiceExecution(stranger, nonce, en, types.CommitContext{})
	require.ErrorIs(t, err, cerrors.ErrUnauthorizedExecutionAction)

	h.now += AutoValidationDelay + 1

	txn = h.withTxn()
	require.NoError(t, h.services.ValidateServiceExecution(stranger, nonce, en, types.CommitContext{}))
	require.NoError(t, txn.Commit())
}

func TestDisputeThenResolveRequiresDisputeResolverRole(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)
	resolver := testAddress(0x05)
	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)
	h.grantRole(t, admin, access.DisputeResolverRole, resolver)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())
	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	en, err := h.services.RequestServiceExecution(requester, nonce, "do the thing", types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	require.NoError(t, h.services.AcceptServiceExecution(creator, nonce, en, "ack", types.CommitContext{}))
	require.NoError(t, h.services.DisputeServiceExecution(requester, nonce, en, "not delivered", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	err = h.services.ResolveServiceExecution(creator, nonce, en, true, "decision", types.CommitContext{})
	require.ErrorIs(t, err, cerrors.ErrUnauthorized)

	txn = h.withTxn()
	require.NoError(t, h.services.ResolveServiceExecution(resolver, nonce, en, true, "refund requester", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	requesterBalance, err := h.credits.GetCreditBalance("x-V", requester)
	require.NoError(t, err)
	require.Equal(t, uint64(50), requesterBalance)

	execState, _, _, err := h.services.GetServiceExecution(nonce, en)
	require.NoError(t, err)
	require.Equal(t, ExecutionStateRefunded, execState)
}

func TestIdempotenceOfSettlementRejectsSecondTransition(t *testing.T) {
	h := newHarness()
	admin := testAddress(0xAD)
	checker := testAddress(0x01)
	creator := testAddress(0x02)
	requester := testAddress(0x03)
	h.bootstrapAdmin(t, admin)
	h.grantRole(t, admin, access.CreatorsCheckerRole, checker)
	h.grantRole(t, admin, access.CreditsTransferRole, h.self)

	txn := h.withTxn()
	require.NoError(t, h.credits.SetCreatorVisibility(checker, "x-V", creator, false, types.CommitContext{}))
	require.NoError(t, txn.Commit())
	h.buyCredits(t, requester, "x-V", 50)

	txn = h.withTxn()
	nonce, err := h.services.CreateService(creator, "x-post", "x-V", 10, types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	en, err := h.services.RequestServiceExecution(requester, nonce, "do the thing", types.CommitContext{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	require.NoError(t, h.services.CancelServiceExecution(requester, nonce, en, "changed my mind", types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = h.withTxn()
	err = h.services.AcceptServiceExecution(creator, nonce, en, "too late", types.CommitContext{})
	require.ErrorIs(t, err, cerrors.ErrInvalidExecutionState)
}

func TestConfigureOverridesAutoValidationDelay(t *testing.T) {
	t.Cleanup(func() {
		Configure(5 * 86_400)
	})
	Configure(3600)
	require.Equal(t, int64(3600), AutoValidationDelay)
}
