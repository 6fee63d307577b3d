package errors

import stderrors "errors"

// Sentinel error kinds for the credits/services/access engines. Every
// mutating operation fails with exactly one of these (no string-only
// errors for expected conditions) so callers can branch with errors.Is
// instead of parsing messages.
var (
	ErrInvalidAddress              = stderrors.New("engine: invalid address")
	ErrInvalidCreator              = stderrors.New("engine: invalid creator")
	ErrInvalidAmount               = stderrors.New("engine: invalid amount")
	ErrInvalidFeeParams            = stderrors.New("engine: invalid fee parameters")
	ErrNotEnoughEthSent             = stderrors.New("engine: not enough native currency attached")
	ErrNotEnoughCreditsOwned       = stderrors.New("engine: not enough credits owned")
	ErrDisabledService             = stderrors.New("engine: service is disabled")
	ErrInvalidExecutionState       = stderrors.New("engine: invalid execution state for transition")
	ErrUnauthorizedExecutionAction = stderrors.New("engine: caller not authorized for this execution action")
	ErrUnauthorized                = stderrors.New("engine: caller lacks required role")
)
