package access

import (
	"errors"
	"time"

	cerrors "vsbld/core/errors"
	"vsbld/core/events"
	"vsbld/core/types"
)

var (
	errNilState      = errors.New("access engine: state not configured")
	errNoTransfer    = errors.New("access engine: no admin transfer pending")
	errTransferEarly = errors.New("access engine: accept schedule not reached")
	errNoDelayChange = errors.New("access engine: no delay change pending")
)

type accessState interface {
	SetRole(role string, addr []byte) error
	RevokeRole(role string, addr []byte) error
	HasRole(role string, addr []byte) bool
	RoleMembers(role string) ([][]byte, error)
	RoleInitialized(role string) (bool, error)
	MarkRoleInitialized(role string) error
	NextRoleChangeNonce(role string, addr []byte) (uint64, error)
	RoleChangeNonce(role string, addr []byte) (uint64, error)
	GetAdminTransfer() (*AdminTransfer, bool, error)
	PutAdminTransfer(*AdminTransfer) error
	DeleteAdminTransfer() error
	GetAdminDelay() (*AdminDelay, bool, error)
	PutAdminDelay(*AdminDelay) error
}

type accessEvent struct{ evt *types.Event }

func (e accessEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e accessEvent) Attributes() map[string]string {
	if e.evt == nil {
		return nil
	}
	return e.evt.Attributes
}

// Engine implements the role registry and the delayed admin-transfer /
// delayed-delay-change two-phase protocols (§4.3).
type Engine struct {
	state   accessState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs an access engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, nowFn: func() int64 { return time.Now().Unix() }}
}

// SetState configures the storage backend for the current operation. Callers
// open one Store per ledger Txn and call SetState before invoking an
// operation, matching the reference engines' per-call wiring.
func (e *Engine) SetState(state accessState) { e.state = state }

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
	e.emitter.Emit(accessEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// HasRole reports whether account holds role.
func (e *Engine) HasRole(role string, account [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.HasRole(role, account[:])
}

// RoleMembers returns every account holding role.
func (e *Engine) RoleMembers(role string) ([][]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.RoleMembers(role)
}

// GrantRole assigns role to account. The caller must hold DEFAULT_ADMIN_ROLE.
func (e *Engine) GrantRole(caller [20]byte, role string, account [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	initialized, err := e.state.RoleInitialized(role)
	if err != nil {
		return err
	}
	if !initialized {
		if err := e.state.MarkRoleInitialized(role); err != nil {
			return err
		}
		e.emit(newRoleAdminChangedEvent(role, "", DefaultAdminRole, ctx))
	}
	if e.state.HasRole(role, account[:]) {
		return nil
	}
	if err := e.state.SetRole(role, account[:]); err != nil {
		return err
	}
	nonce, err := e.state.NextRoleChangeNonce(role, account[:])
	if err != nil {
		return err
	}
	e.emit(newRoleGrantedEvent(role, account, nonce, ctx))
	return nil
}

// RevokeRole removes role from account. The caller must hold
// DEFAULT_ADMIN_ROLE.
func (e *Engine) RevokeRole(caller [20]byte, role string, account [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	if !e.state.HasRole(role, account[:]) {
		return nil
	}
	if err := e.state.RevokeRole(role, account[:]); err != nil {
		return err
	}
	nonce, err := e.state.NextRoleChangeNonce(role, account[:])
	if err != nil {
		return err
	}
	e.emit(newRoleRevokedEvent(role, account, nonce, ctx))
	return nil
}

// RoleChangeNonce returns the number of times role has been granted or
// revoked for account, for callers that need to disambiguate two
// RoleGranted/RoleRevoked events for the same pair in the same block.
func (e *Engine) RoleChangeNonce(role string, account [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.RoleChangeNonce(role, account[:])
}

func (e *Engine) loadDelay() (*AdminDelay, error) {
	rec, ok, err := e.state.GetAdminDelay()
	if err != nil {
		return nil, err
	}
	if !ok || rec.Current == 0 {
		return &AdminDelay{Current: InitialAdminDelay}, nil
	}
	return rec, nil
}

// applyDueDelayChange collapses a pending delay change into Current once its
// effect schedule has passed. It is invoked on every operation that reads or
// depends on the current delay so the effect is never missed.
func (e *Engine) applyDueDelayChange(now int64) (*AdminDelay, error) {
	rec, err := e.loadDelay()
	if err != nil {
		return nil, err
	}
	if rec.Pending() && now >= rec.EffectSchedule {
		rec = &AdminDelay{Current: rec.PendingNewDelay}
		if err := e.state.PutAdminDelay(rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// CurrentDelay returns the effective admin-change delay, applying any
// overdue pending change first.
func (e *Engine) CurrentDelay() (int64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	rec, err := e.applyDueDelayChange(e.now())
	if err != nil {
		return 0, err
	}
	return rec.Current, nil
}

// BeginTransfer schedules an admin handover to newAdmin after the current
// delay elapses. Only the current DEFAULT_ADMIN_ROLE holder may call it.
func (e *Engine) BeginTransfer(caller, newAdmin [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	delay, err := e.applyDueDelayChange(e.now())
	if err != nil {
		return err
	}
	acceptSchedule := e.now() + delay.Current
	if err := e.state.PutAdminTransfer(&AdminTransfer{NewAdmin: newAdmin, AcceptSchedule: acceptSchedule}); err != nil {
		return err
	}
	e.emit(newAdminTransferScheduledEvent(newAdmin, acceptSchedule, ctx))
	return nil
}

// CancelTransfer cancels a pending admin transfer. Only the current admin
// may call it.
func (e *Engine) CancelTransfer(caller [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	rec, ok, err := e.state.GetAdminTransfer()
	if err != nil {
		return err
	}
	if !ok || rec.AcceptSchedule == 0 {
		return nil
	}
	if err := e.state.DeleteAdminTransfer(); err != nil {
		return err
	}
	e.emit(newAdminTransferCanceledEvent(ctx))
	return nil
}

// AcceptTransfer completes a scheduled admin handover once its accept
// schedule has passed. Only the pending newAdmin may call it.
func (e *Engine) AcceptTransfer(caller [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	rec, ok, err := e.state.GetAdminTransfer()
	if err != nil {
		return err
	}
	if !ok || rec.AcceptSchedule == 0 {
		return errNoTransfer
	}
	if caller != rec.NewAdmin {
		return cerrors.ErrUnauthorized
	}
	if e.now() < rec.AcceptSchedule {
		return errTransferEarly
	}
	members, err := e.state.RoleMembers(DefaultAdminRole)
	if err != nil {
		return err
	}
	for _, member := range members {
		var addr [20]byte
		copy(addr[:], member)
		if addr == rec.NewAdmin {
			continue
		}
		if err := e.state.RevokeRole(DefaultAdminRole, member); err != nil {
			return err
		}
		nonce, err := e.state.NextRoleChangeNonce(DefaultAdminRole, member)
		if err != nil {
			return err
		}
		e.emit(newRoleRevokedEvent(DefaultAdminRole, addr, nonce, ctx))
	}
	if !e.state.HasRole(DefaultAdminRole, rec.NewAdmin[:]) {
		if err := e.state.SetRole(DefaultAdminRole, rec.NewAdmin[:]); err != nil {
			return err
		}
		nonce, err := e.state.NextRoleChangeNonce(DefaultAdminRole, rec.NewAdmin[:])
		if err != nil {
			return err
		}
		e.emit(newRoleGrantedEvent(DefaultAdminRole, rec.NewAdmin, nonce, ctx))
	}
	return e.state.DeleteAdminTransfer()
}

// BeginDelayChange schedules a change to the admin-change delay itself,
// effective after the *current* delay elapses. Only the current admin may
// call it.
func (e *Engine) BeginDelayChange(caller [20]byte, newDelay int64, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	if newDelay < 0 {
		return errors.New("access engine: delay must be non-negative")
	}
	current, err := e.applyDueDelayChange(e.now())
	if err != nil {
		return err
	}
	effectSchedule := e.now() + current.Current
	rec := &AdminDelay{Current: current.Current, PendingNewDelay: newDelay, EffectSchedule: effectSchedule}
	if err := e.state.PutAdminDelay(rec); err != nil {
		return err
	}
	e.emit(newDelayChangeScheduledEvent(newDelay, effectSchedule, ctx))
	return nil
}

// CancelDelayChange cancels a pending delay change. Only the current admin
// may call it.
func (e *Engine) CancelDelayChange(caller [20]byte, ctx types.CommitContext) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !e.state.HasRole(DefaultAdminRole, caller[:]) {
		return cerrors.ErrUnauthorized
	}
	rec, err := e.applyDueDelayChange(e.now())
	if err != nil {
		return err
	}
	if !rec.Pending() {
		return errNoDelayChange
	}
	rec = &AdminDelay{Current: rec.Current}
	if err := e.state.PutAdminDelay(rec); err != nil {
		return err
	}
	e.emit(newDelayChangeCanceledEvent(ctx))
	return nil
}
