package services

import (
	"encoding/hex"
	"strconv"

	"vsbld/core/types"
)

const (
	EventTypeServiceCreated             = "services.service.created"
	EventTypeServiceUpdated             = "services.service.updated"
	EventTypeServiceExecutionRequested  = "services.execution.requested"
	EventTypeServiceExecutionCanceled   = "services.execution.canceled"
	EventTypeServiceExecutionAccepted   = "services.execution.accepted"
	EventTypeServiceExecutionValidated  = "services.execution.validated"
	EventTypeServiceExecutionDisputed   = "services.execution.disputed"
	EventTypeServiceExecutionResolved   = "services.execution.resolved"
)

func withCommit(attrs map[string]string, ctx types.CommitContext) map[string]string {
	attrs["blockNumber"] = strconv.FormatUint(ctx.BlockNumber, 10)
	attrs["blockTimestamp"] = strconv.FormatInt(ctx.BlockTimestamp, 10)
	attrs["transactionHash"] = hex.EncodeToString(ctx.TransactionHash[:])
	return attrs
}

func newServiceCreatedEvent(nonce uint64, svc *Service, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceCreated, Attributes: withCommit(map[string]string{
		"nonce":             strconv.FormatUint(nonce, 10),
		"serviceType":       svc.ServiceType,
		"visibilityId":      svc.VisibilityID,
		"creditsCostAmount": strconv.FormatUint(svc.CreditsCost, 10),
	}, ctx)}
}

func newServiceUpdatedEvent(nonce uint64, enabled bool, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceUpdated, Attributes: withCommit(map[string]string{
		"nonce":   strconv.FormatUint(nonce, 10),
		"enabled": strconv.FormatBool(enabled),
	}, ctx)}
}

func newServiceExecutionRequestedEvent(serviceNonce, executionNonce uint64, requester [20]byte, requestData string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionRequested, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"requester":      hex.EncodeToString(requester[:]),
		"requestData":    requestData,
	}, ctx)}
}

func newServiceExecutionCanceledEvent(serviceNonce, executionNonce uint64, from [20]byte, cancelData string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionCanceled, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"from":           hex.EncodeToString(from[:]),
		"cancelData":     cancelData,
	}, ctx)}
}

func newServiceExecutionAcceptedEvent(serviceNonce, executionNonce uint64, responseData string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionAccepted, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"responseData":   responseData,
	}, ctx)}
}

func newServiceExecutionValidatedEvent(serviceNonce, executionNonce uint64, autoValidated bool, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionValidated, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"autoValidated":  strconv.FormatBool(autoValidated),
	}, ctx)}
}

func newServiceExecutionDisputedEvent(serviceNonce, executionNonce uint64, disputeData string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionDisputed, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"disputeData":    disputeData,
	}, ctx)}
}

func newServiceExecutionResolvedEvent(serviceNonce, executionNonce uint64, refund bool, resolveData string, ctx types.CommitContext) *types.Event {
	return &types.Event{Type: EventTypeServiceExecutionResolved, Attributes: withCommit(map[string]string{
		"serviceNonce":   strconv.FormatUint(serviceNonce, 10),
		"executionNonce": strconv.FormatUint(executionNonce, 10),
		"refund":         strconv.FormatBool(refund),
		"resolveData":    resolveData,
	}, ctx)}
}
