// Package services implements the per-execution state machine bound to a
// creator-defined service: request, accept, cancel, validate, dispute, and
// resolve, escrowing credits through the Credits Engine (spec §4.2).
package services

// AutoValidationDelay is the wall-clock window after which an ACCEPTED
// execution may be validated by anyone, not just the requester (§6's
// AUTO_VALIDATION_DELAY constant). A package var, not a const, so Configure
// can install an operator-chosen window without recompiling.
var AutoValidationDelay int64 = 5 * 86_400

// Configure installs an alternate auto-validation delay, in seconds.
func Configure(autoValidationDelaySeconds int64) {
	AutoValidationDelay = autoValidationDelaySeconds
}

// ExecutionState is the per-execution state machine's tag. The zero value,
// ExecutionStateUninitialized, is never persisted: its absence from storage
// IS the UNINITIALIZED state.
type ExecutionState uint8

const (
	ExecutionStateUninitialized ExecutionState = iota
	ExecutionStateRequested
	ExecutionStateAccepted
	ExecutionStateDisputed
	ExecutionStateRefunded
	ExecutionStateValidated
)

// Service is the persisted record for one creator-defined, credits-priced
// product bound to a visibility.
type Service struct {
	ServiceType     string
	VisibilityID    string
	CreditsCost     uint64
	Enabled         bool
	ExecutionsNonce uint64
}

// Execution is the persisted record for one requested instance of a
// Service, progressed through the state machine.
type Execution struct {
	State        ExecutionState
	Requester    [20]byte
	LastUpdateTS int64
}
