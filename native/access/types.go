package access

// DefaultAdminRole is the distinguished role that may grant and revoke
// arbitrary roles (§4.3). AcceptTransfer revokes it from every holder except
// the new admin; GrantRole does not refuse this role, so granting it directly
// adds a further holder.
const DefaultAdminRole = "DEFAULT_ADMIN_ROLE"

// Domain-specific role names gated by the Credits and Services engines. They
// live here, next to DefaultAdminRole, because this registry is the single
// source of truth for every role string the ledger recognizes.
const (
	// CreatorsCheckerRole may call setCreatorVisibility.
	CreatorsCheckerRole = "CREATORS_CHECKER_ROLE"
	// CreditsTransferRole may call transferCredits; granted to the services
	// engine's own address so it can escrow and settle credits.
	CreditsTransferRole = "CREDITS_TRANSFER_ROLE"
	// DisputeResolverRole may resolve a DISPUTED execution.
	DisputeResolverRole = "DISPUTE_RESOLVER"
)

// InitialAdminDelay is the delay applied to both the admin-transfer and
// delay-change protocols before any BeginDelayChange call, per §6's
// INITIAL_ADMIN_DELAY constant. A package var, not a const, so Configure can
// install an operator-chosen delay without recompiling.
var InitialAdminDelay int64 = 3 * 86_400

// Configure installs an alternate initial admin delay, in seconds. Only
// takes effect for ledgers that have not yet persisted an AdminDelay record;
// an already-running ledger's live delay is changed through the
// BeginDelayChange protocol instead.
func Configure(initialAdminDelaySeconds int64) {
	InitialAdminDelay = initialAdminDelaySeconds
}

// AdminTransfer records a scheduled, two-phase admin handover.
type AdminTransfer struct {
	NewAdmin       [20]byte
	AcceptSchedule int64
}

// AdminDelay records the live admin-change delay and, while a delay change
// is pending, the value it will become once EffectSchedule passes.
type AdminDelay struct {
	Current         int64
	PendingNewDelay int64
	EffectSchedule  int64
}

// Pending reports whether a delay change is currently scheduled.
func (d *AdminDelay) Pending() bool {
	return d != nil && d.EffectSchedule != 0
}

// Clone returns a deep copy so callers can't mutate stored state by
// reference.
func (d *AdminDelay) Clone() *AdminDelay {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// Clone returns a deep copy of the transfer record.
func (t *AdminTransfer) Clone() *AdminTransfer {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
