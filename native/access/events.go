package access

import (
	"encoding/hex"
	"strconv"

	"vsbld/core/types"
)

const (
	EventTypeRoleGranted                   = "access.role.granted"
	EventTypeRoleRevoked                   = "access.role.revoked"
	EventTypeRoleAdminChanged               = "access.role.admin_changed"
	EventTypeDefaultAdminTransferScheduled  = "access.admin.transfer_scheduled"
	EventTypeDefaultAdminTransferCanceled   = "access.admin.transfer_canceled"
	EventTypeDefaultAdminDelayChangeScheduled = "access.admin.delay_change_scheduled"
	EventTypeDefaultAdminDelayChangeCanceled  = "access.admin.delay_change_canceled"
)

func withCommit(attrs map[string]string, ctx types.CommitContext) map[string]string {
	attrs["blockNumber"] = strconv.FormatUint(ctx.BlockNumber, 10)
	attrs["blockTimestamp"] = strconv.FormatInt(ctx.BlockTimestamp, 10)
	attrs["transactionHash"] = hex.EncodeToString(ctx.TransactionHash[:])
	return attrs
}

func newRoleGrantedEvent(role string, account [20]byte, nonce uint64, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeRoleGranted, Attributes: withCommit(map[string]string{
		"role":            role,
		"account":         hex.EncodeToString(account[:]),
		"roleChangeNonce": strconv.FormatUint(nonce, 10),
	}, ctx)}
}

func newRoleRevokedEvent(role string, account [20]byte, nonce uint64, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeRoleRevoked, Attributes: withCommit(map[string]string{
		"role":            role,
		"account":         hex.EncodeToString(account[:]),
		"roleChangeNonce": strconv.FormatUint(nonce, 10),
	}, ctx)}
}

func newRoleAdminChangedEvent(role, previousAdminRole, newAdminRole string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeRoleAdminChanged, Attributes: withCommit(map[string]string{
		"role":              role,
		"previousAdminRole": previousAdminRole,
		"newAdminRole":      newAdminRole,
	}, ctx)}
}

func newAdminTransferScheduledEvent(newAdmin [20]byte, acceptSchedule int64, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeDefaultAdminTransferScheduled, Attributes: withCommit(map[string]string{
		"newAdmin":      hex.EncodeToString(newAdmin[:]),
		"acceptSchedule": strconv.FormatInt(acceptSchedule, 10),
	}, ctx)}
}

func newAdminTransferCanceledEvent(ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeDefaultAdminTransferCanceled, Attributes: withCommit(map[string]string{}, ctx)}
}

func newDelayChangeScheduledEvent(newDelay, effectSchedule int64, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeDefaultAdminDelayChangeScheduled, Attributes: withCommit(map[string]string{
		"newDelay":       strconv.FormatInt(newDelay, 10),
		"effectSchedule": strconv.FormatInt(effectSchedule, 10),
	}, ctx)}
}

func newDelayChangeCanceledEvent(ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeDefaultAdminDelayChangeCanceled, Attributes: withCommit(map[string]string{}, ctx)}
}
