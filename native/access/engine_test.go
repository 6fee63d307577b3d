package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	cerrors "vsbld/core/errors"
	"vsbld/core/events"
	"vsbld/core/state"
	"vsbld/core/types"
	"vsbld/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestEngine() (*state.Manager, *Engine) {
	mgr := state.NewManager(storage.NewMemDB())
	return mgr, NewEngine()
}

func bootstrapAdmin(t *testing.T, mgr *state.Manager, admin [20]byte) {
	t.Helper()
	txn := mgr.Begin()
	require.NoError(t, txn.SetRole(DefaultAdminRole, admin[:]))
	require.NoError(t, txn.Commit())
}

func TestGrantRoleRequiresDefaultAdmin(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	stranger := testAddress(0x01)
	grantee := testAddress(0x02)
	bootstrapAdmin(t, mgr, admin)

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	err := engine.GrantRole(stranger, CreatorsCheckerRole, grantee, types.CommitContext{})
	require.ErrorIs(t, err, cerrors.ErrUnauthorized)

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	engine.SetState(&Store{Txn: mgr.Begin()})
	require.True(t, engine.HasRole(CreatorsCheckerRole, grantee))
}

func TestRevokeRoleIsIdempotent(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	grantee := testAddress(0x02)
	bootstrapAdmin(t, mgr, admin)

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.RevokeRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.RevokeRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, engine.RevokeRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	engine.SetState(&Store{Txn: mgr.Begin()})
	require.False(t, engine.HasRole(CreatorsCheckerRole, grantee))
}

func TestAdminTransferTwoPhaseProtocol(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	newAdmin := testAddress(0x03)
	bootstrapAdmin(t, mgr, admin)

	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.BeginTransfer(admin, newAdmin, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	err := engine.AcceptTransfer(newAdmin, types.CommitContext{})
	require.Error(t, err)

	now += InitialAdminDelay + 1

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.AcceptTransfer(newAdmin, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	engine.SetState(&Store{Txn: mgr.Begin()})
	require.True(t, engine.HasRole(DefaultAdminRole, newAdmin))
	require.False(t, engine.HasRole(DefaultAdminRole, admin))
}

func TestCancelTransferClearsPendingSchedule(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	newAdmin := testAddress(0x03)
	bootstrapAdmin(t, mgr, admin)

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.BeginTransfer(admin, newAdmin, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.CancelTransfer(admin, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	err := engine.AcceptTransfer(newAdmin, types.CommitContext{})
	require.Error(t, err)
}

func TestDelayChangeAppliesAfterEffectSchedule(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	bootstrapAdmin(t, mgr, admin)

	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.BeginDelayChange(admin, 7*86_400, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	engine.SetState(&Store{Txn: mgr.Begin()})
	delay, err := engine.CurrentDelay()
	require.NoError(t, err)
	require.Equal(t, int64(InitialAdminDelay), delay)

	now += InitialAdminDelay + 1

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	delay, err = engine.CurrentDelay()
	require.NoError(t, err)
	require.Equal(t, int64(7*86_400), delay)
	require.NoError(t, txn.Commit())
}

func TestCancelDelayChangeRequiresPendingChange(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	bootstrapAdmin(t, mgr, admin)

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	err := engine.CancelDelayChange(admin, types.CommitContext{})
	require.Error(t, err)
}

func TestRoleAdminChangedEmittedOnceOnFirstGrant(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	grantee1 := testAddress(0x06)
	grantee2 := testAddress(0x07)
	bootstrapAdmin(t, mgr, admin)

	var emitted []string
	engine.SetEmitter(recordingEmitter(func(evt events.Event) {
		emitted = append(emitted, evt.EventType())
	}))

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, grantee1, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, grantee2, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	adminChangedCount := 0
	for _, e := range emitted {
		if e == EventTypeRoleAdminChanged {
			adminChangedCount++
		}
	}
	require.Equal(t, 1, adminChangedCount)
}

type recordingEmitter func(evt events.Event)

func (f recordingEmitter) Emit(evt events.Event) { f(evt) }

func TestConfigureOverridesInitialAdminDelay(t *testing.T) {
	t.Cleanup(func() {
		Configure(3 * 86_400)
	})
	Configure(7200)
	require.Equal(t, int64(7200), InitialAdminDelay)
}

func TestRoleChangeNonceIncrementsPerPairAndSurvivesInEventAttributes(t *testing.T) {
	mgr, engine := newTestEngine()
	admin := testAddress(0xAD)
	grantee := testAddress(0x02)
	other := testAddress(0x09)
	bootstrapAdmin(t, mgr, admin)

	var nonces []string
	engine.SetEmitter(recordingEmitter(func(evt events.Event) {
		switch evt.EventType() {
		case EventTypeRoleGranted, EventTypeRoleRevoked:
			nonces = append(nonces, evt.Attributes()["roleChangeNonce"])
		}
	}))

	txn := mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.RevokeRole(admin, CreatorsCheckerRole, grantee, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	txn = mgr.Begin()
	engine.SetState(&Store{Txn: txn})
	require.NoError(t, engine.GrantRole(admin, CreatorsCheckerRole, other, types.CommitContext{}))
	require.NoError(t, txn.Commit())

	require.Equal(t, []string{"1", "2", "1"}, nonces)

	engine.SetState(&Store{Txn: mgr.Begin()})
	nonce, err := engine.RoleChangeNonce(CreatorsCheckerRole, grantee)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	nonce, err = engine.RoleChangeNonce(CreatorsCheckerRole, other)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}
