package services

import (
	"errors"
	"time"

	cerrors "vsbld/core/errors"
	"vsbld/core/events"
	"vsbld/core/types"
	"vsbld/native/access"
	"vsbld/native/credits"
)

var (
	errNilState       = errors.New("services engine: state not configured")
	errNilCredits     = errors.New("services engine: credits engine not configured")
	errServiceMissing = errors.New("services engine: service not found")
)

type engineState interface {
	NextServiceNonce() (uint64, error)
	GetService(nonce uint64) (*Service, bool, error)
	PutService(nonce uint64, svc *Service) error
	GetExecution(serviceNonce, executionNonce uint64) (*Execution, bool, error)
	PutExecution(serviceNonce, executionNonce uint64, exec *Execution) error
	HasRole(role string, addr []byte) bool
}

type servicesEvent struct{ evt *types.Event }

func (e servicesEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e servicesEvent) Attributes() map[string]string {
	if e.evt == nil {
		return nil
	}
	return e.evt.Attributes
}

// Engine implements the service management contract and the per-execution
// state machine (§4.2), escrowing credits through a Credits Engine held for
// exactly one ledger transaction at a time.
type Engine struct {
	state       engineState
	credits     *credits.Engine
	emitter     events.Emitter
	nowFn       func() int64
	selfAddress [20]byte
}

// NewEngine constructs a services engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: func() int64 { return time.Now().Unix() }}
}

// SetState configures the storage backend for the current operation.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCreditsEngine wires the Credits Engine the services engine escrows
// through. The caller must have already called SetState on it for the same
// ledger transaction.
func (e *Engine) SetCreditsEngine(creditsEngine *credits.Engine) { e.credits = creditsEngine }

// SetSelfAddress configures the address the services engine escrows credits
// under between request and settlement, mirroring the reference escrow
// engine's fee-treasury configuration.
func (e *Engine) SetSelfAddress(addr [20]byte) { e.selfAddress = addr }

// SetEmitter configures the event emitter. A nil emitter resets to no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(servicesEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.credits == nil {
		return errNilCredits
	}
	return nil
}

func (e *Engine) loadService(nonce uint64) (*Service, error) {
	svc, ok, err := e.state.GetService(nonce)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errServiceMissing
	}
	return svc, nil
}

func (e *Engine) liveCreator(vid string) ([20]byte, bool, error) {
	return e.credits.GetVisibilityCreator(vid)
}

// CreateService allocates a new service nonce for svcType bound to vid,
// priced at creditsCost. The caller must be vid's currently bound creator.
func (e *Engine) CreateService(caller [20]byte, svcType, vid string, creditsCost uint64, ctx types.CommitContext) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	creator, hasCreator, err := e.liveCreator(vid)
	if err != nil {
		return 0, err
	}
	if !hasCreator || creator != caller {
		return 0, cerrors.ErrInvalidCreator
	}
	nonce, err := e.state.NextServiceNonce()
	if err != nil {
		return 0, err
	}
	svc := &Service{ServiceType: svcType, VisibilityID: vid, CreditsCost: creditsCost, Enabled: true}
	if err := e.state.PutService(nonce, svc); err != nil {
		return 0, err
	}
	e.emit(newServiceCreatedEvent(nonce, svc, ctx))
	return nonce, nil
}

// UpdateService toggles a service's enabled flag. The caller must be the
// currently bound creator of the service's visibility.
func (e *Engine) UpdateService(caller [20]byte, nonce uint64, enabled bool, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	svc, err := e.loadService(nonce)
	if err != nil {
		return err
	}
	creator, hasCreator, err := e.liveCreator(svc.VisibilityID)
	if err != nil {
		return err
	}
	if !hasCreator || creator != caller {
		return cerrors.ErrInvalidCreator
	}
	svc.Enabled = enabled
	if err := e.state.PutService(nonce, svc); err != nil {
		return err
	}
	e.emit(newServiceUpdatedEvent(nonce, enabled, ctx))
	return nil
}

// RequestServiceExecution opens a new execution of service nonce, escrowing
// creditsCost from caller into the services engine's own address. Anyone may
// call it, provided the service is enabled.
func (e *Engine) RequestServiceExecution(caller [20]byte, nonce uint64, requestData string, ctx types.CommitContext) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	svc, err := e.loadService(nonce)
	if err != nil {
		return 0, err
	}
	if !svc.Enabled {
		return 0, cerrors.ErrDisabledService
	}
	executionNonce := svc.ExecutionsNonce
	if err := e.credits.TransferCredits(e.selfAddress, svc.VisibilityID, caller, e.selfAddress, svc.CreditsCost, ctx); err != nil {
		return 0, err
	}
	svc.ExecutionsNonce++
	if err := e.state.PutService(nonce, svc); err != nil {
		return 0, err
	}
	exec := &Execution{State: ExecutionStateRequested, Requester: caller, LastUpdateTS: e.now()}
	if err := e.state.PutExecution(nonce, executionNonce, exec); err != nil {
		return 0, err
	}
	e.emit(newServiceExecutionRequestedEvent(nonce, executionNonce, caller, requestData, ctx))
	return executionNonce, nil
}

func (e *Engine) loadExecution(serviceNonce, executionNonce uint64) (*Execution, error) {
	exec, ok, err := e.state.GetExecution(serviceNonce, executionNonce)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cerrors.ErrInvalidExecutionState
	}
	return exec, nil
}

// AcceptServiceExecution transitions a REQUESTED execution to ACCEPTED. Only
// the service visibility's currently bound creator may call it.
func (e *Engine) AcceptServiceExecution(caller [20]byte, serviceNonce, executionNonce uint64, responseData string, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	svc, err := e.loadService(serviceNonce)
	if err != nil {
		return err
	}
	exec, err := e.loadExecution(serviceNonce, executionNonce)
	if err != nil {
		return err
	}
	if exec.State != ExecutionStateRequested {
		return cerrors.ErrInvalidExecutionState
	}
	creator, hasCreator, err := e.liveCreator(svc.VisibilityID)
	if err != nil {
		return err
	}
	if !hasCreator || creator != caller {
		return cerrors.ErrUnauthorizedExecutionAction
	}
	exec.State = ExecutionStateAccepted
	exec.LastUpdateTS = e.now()
	if err := e.state.PutExecution(serviceNonce, executionNonce, exec); err != nil {
		return err
	}
	e.emit(newServiceExecutionAcceptedEvent(serviceNonce, executionNonce, responseData, ctx))
	return nil
}

// CancelServiceExecution transitions a REQUESTED execution to REFUNDED,
// returning the escrowed credits to the requester. The requester or the
// service visibility's currently bound creator may call it.
func (e *Engine) CancelServiceExecution(caller [20]byte, serviceNonce, executionNonce uint64, cancelData string, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	svc, err := e.loadService(serviceNonce)
	if err != nil {
		return err
	}
	exec, err := e.loadExecution(serviceNonce, executionNonce)
	if err != nil {
		return err
	}
	if exec.State != ExecutionStateRequested {
		return cerrors.ErrInvalidExecutionState
	}
	creator, hasCreator, err := e.liveCreator(svc.VisibilityID)
	if err != nil {
		return err
	}
	if caller != exec.Requester && (!hasCreator || caller != creator) {
		return cerrors.ErrUnauthorizedExecutionAction
	}
	if err := e.credits.TransferCredits(e.selfAddress, svc.VisibilityID, e.selfAddress, exec.Requester, svc.CreditsCost, ctx); err != nil {
		return err
	}
	exec.State = ExecutionStateRefunded
	exec.LastUpdateTS = e.now()
	if err := e.state.PutExecution(serviceNonce, executionNonce, exec); err != nil {
		return err
	}
	e.emit(newServiceExecutionCanceledEvent(serviceNonce, executionNonce, caller, cancelData, ctx))
	return nil
}

// ValidateServiceExecution transitions an ACCEPTED execution to VALIDATED,
// paying the escrowed credits to the service visibility's currently bound
// creator. Callable by the requester at any time, or by anyone once
// AutoValidationDelay has elapsed since the last transition.
func (e *Engine) ValidateServiceExecution(caller [20]byte, serviceNonce, executionNonce uint64, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	svc, err := e.loadService(serviceNonce)
	if err != nil {
		return err
	}
	exec, err := e.loadExecution(serviceNonce, executionNonce)
	if err != nil {
		return err
	}
	if exec.State != ExecutionStateAccepted {
		return cerrors.ErrInvalidExecutionState
	}
	now := e.now()
	autoValidated := now > exec.LastUpdateTS+AutoValidationDelay
	if caller != exec.Requester && !autoValidated {
		return cerrors.ErrUnauthorizedExecutionAction
	}
	creator, hasCreator, err := e.liveCreator(svc.VisibilityID)
	if err != nil {
		return err
	}
	if !hasCreator {
		return cerrors.ErrInvalidCreator
	}
	if err := e.credits.TransferCredits(e.selfAddress, svc.VisibilityID, e.selfAddress, creator, svc.CreditsCost, ctx); err != nil {
		return err
	}
	exec.State = ExecutionStateValidated
	exec.LastUpdateTS = now
	if err := e.state.PutExecution(serviceNonce, executionNonce, exec); err != nil {
		return err
	}
	e.emit(newServiceExecutionValidatedEvent(serviceNonce, executionNonce, autoValidated, ctx))
	return nil
}

// DisputeServiceExecution transitions an ACCEPTED execution to DISPUTED.
// Only the requester may call it.
func (e *Engine) DisputeServiceExecution(caller [20]byte, serviceNonce, executionNonce uint64, disputeData string, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	exec, err := e.loadExecution(serviceNonce, executionNonce)
	if err != nil {
		return err
	}
	if exec.State != ExecutionStateAccepted {
		return cerrors.ErrInvalidExecutionState
	}
	if caller != exec.Requester {
		return cerrors.ErrUnauthorizedExecutionAction
	}
	exec.State = ExecutionStateDisputed
	exec.LastUpdateTS = e.now()
	if err := e.state.PutExecution(serviceNonce, executionNonce, exec); err != nil {
		return err
	}
	e.emit(newServiceExecutionDisputedEvent(serviceNonce, executionNonce, disputeData, ctx))
	return nil
}

// ResolveServiceExecution settles a DISPUTED execution, paying the escrow to
// the requester if refund is true or to the service visibility's currently
// bound creator otherwise. Caller must hold access.DisputeResolverRole.
func (e *Engine) ResolveServiceExecution(caller [20]byte, serviceNonce, executionNonce uint64, refund bool, resolveData string, ctx types.CommitContext) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.state.HasRole(access.DisputeResolverRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	svc, err := e.loadService(serviceNonce)
	if err != nil {
		return err
	}
	exec, err := e.loadExecution(serviceNonce, executionNonce)
	if err != nil {
		return err
	}
	if exec.State != ExecutionStateDisputed {
		return cerrors.ErrInvalidExecutionState
	}
	var recipient [20]byte
	var nextState ExecutionState
	if refund {
		recipient = exec.Requester
		nextState = ExecutionStateRefunded
	} else {
		creator, hasCreator, err := e.liveCreator(svc.VisibilityID)
		if err != nil {
			return err
		}
		if !hasCreator {
			return cerrors.ErrInvalidCreator
		}
		recipient = creator
		nextState = ExecutionStateValidated
	}
	if err := e.credits.TransferCredits(e.selfAddress, svc.VisibilityID, e.selfAddress, recipient, svc.CreditsCost, ctx); err != nil {
		return err
	}
	exec.State = nextState
	exec.LastUpdateTS = e.now()
	if err := e.state.PutExecution(serviceNonce, executionNonce, exec); err != nil {
		return err
	}
	e.emit(newServiceExecutionResolvedEvent(serviceNonce, executionNonce, refund, resolveData, ctx))
	return nil
}

// GetServiceExecution returns an execution's state, requester, and last
// update timestamp.
func (e *Engine) GetServiceExecution(serviceNonce, executionNonce uint64) (ExecutionState, [20]byte, int64, error) {
	if e == nil || e.state == nil {
		return ExecutionStateUninitialized, [20]byte{}, 0, errNilState
	}
	exec, ok, err := e.state.GetExecution(serviceNonce, executionNonce)
	if err != nil {
		return ExecutionStateUninitialized, [20]byte{}, 0, err
	}
	if !ok {
		return ExecutionStateUninitialized, [20]byte{}, 0, nil
	}
	return exec.State, exec.Requester, exec.LastUpdateTS, nil
}

// GetService returns a service's persisted record.
func (e *Engine) GetService(nonce uint64) (*Service, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.GetService(nonce)
}
