// Package ledger wires the access, credits, and services engines to a
// single KV state manager and dispatches signed transactions to them by
// type, committing each operation as exactly one atomic batch (§5).
package ledger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"vsbld/core/events"
	"vsbld/core/state"
	"vsbld/core/types"
	"vsbld/native/access"
	"vsbld/native/credits"
	"vsbld/native/services"
	"vsbld/observability/logging"
	"vsbld/storage"
)

// Ledger owns the engines and the state manager they share. One Ledger
// exists per running node; callers submit transactions through Apply and
// read through the Query accessor. mu serializes every Apply/Query call
// since the three engines carry a single mutable state pointer apiece,
// rebound on each invocation rather than threaded as a parameter.
type Ledger struct {
	mu       sync.Mutex
	mgr      *state.Manager
	access   *access.Engine
	credits  *credits.Engine
	services *services.Engine
}

// New constructs a Ledger over db. selfAddress is the services engine's own
// escrow account; it must be granted access.CreditsTransferRole before any
// service execution can be requested.
func New(db storage.Database, selfAddress [20]byte) *Ledger {
	mgr := state.NewManager(db)
	accessEngine := access.NewEngine()
	creditsEngine := credits.NewEngine()
	servicesEngine := services.NewEngine()
	servicesEngine.SetCreditsEngine(creditsEngine)
	servicesEngine.SetSelfAddress(selfAddress)
	return &Ledger{mgr: mgr, access: accessEngine, credits: creditsEngine, services: servicesEngine}
}

// SetEmitter configures the event sink shared by every engine.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.access.SetEmitter(emitter)
	l.credits.SetEmitter(emitter)
	l.services.SetEmitter(emitter)
}

// Query returns a read-only accessor over the ledger's committed state,
// independent of any in-flight Apply call. The accessor reuses the
// transaction's cache-free read path purely for its rawGet fallback to the
// backing store; nothing it does is ever committed.
func (l *Ledger) Query() *Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn := l.mgr.Begin()
	l.access.SetState(newAccessStore(txn))
	l.credits.SetState(newCreditsStore(txn))
	l.services.SetState(newServicesStore(txn))
	return &Query{access: l.access, credits: l.credits, services: l.services}
}

// Bootstrap grants DEFAULT_ADMIN_ROLE to admin directly, bypassing the
// normal GrantRole authorization check. It is meant to be called exactly
// once, at genesis, before any transaction has been applied; every
// subsequent role grant flows through Apply like any other operation.
func (l *Ledger) Bootstrap(admin [20]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	txn := l.mgr.Begin()
	if err := txn.SetRole(access.DefaultAdminRole, admin[:]); err != nil {
		return err
	}
	return txn.Commit()
}

func newAccessStore(txn *state.Txn) *access.Store     { return &access.Store{Txn: txn} }
func newCreditsStore(txn *state.Txn) *credits.Store   { return &credits.Store{Txn: txn} }
func newServicesStore(txn *state.Txn) *services.Store { return &services.Store{Txn: txn} }

// Receipt is what Apply returns on success: the decoded operation result
// (nil for operations with no return value) plus the commit context every
// emitted event additionally carried.
type Receipt struct {
	Result interface{}         `json:"result,omitempty"`
	Commit types.CommitContext `json:"commit"`
}

// Apply authenticates tx's signer, decodes its operation-specific payload,
// and executes it against a fresh ledger transaction. The transaction is
// committed exactly once, on success; any error aborts with no partial
// writes, since nothing reaches the backing store until Txn.Commit succeeds.
func (l *Ledger) Apply(tx *types.Transaction, blockNumber uint64, blockTimestamp int64) (*Receipt, error) {
	fromBytes, err := tx.From()
	if err != nil {
		return nil, fmt.Errorf("ledger: recover signer: %w", err)
	}
	var caller [20]byte
	copy(caller[:], fromBytes)

	hashBytes, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("ledger: hash transaction: %w", err)
	}
	var txHash [32]byte
	copy(txHash[:], hashBytes)
	ctx := types.CommitContext{BlockNumber: blockNumber, BlockTimestamp: blockTimestamp, TransactionHash: txHash}

	l.mu.Lock()
	defer l.mu.Unlock()

	txn := l.mgr.Begin()
	l.access.SetState(newAccessStore(txn))
	l.credits.SetState(newCreditsStore(txn))
	l.services.SetState(newServicesStore(txn))

	result, err := l.dispatch(caller, tx, ctx)
	if err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}
	logApply(tx, caller, ctx)
	return &Receipt{Result: result, Commit: ctx}, nil
}

// logApply emits a structured log line for a committed transaction. The
// three execution payload strings that carry operator-supplied free text
// (requestData/responseData/disputeData) are redacted the way every other
// sensitive field in this codebase is, since they end up in logs far more
// often than in the ledger's own error paths.
func logApply(tx *types.Transaction, caller [20]byte, ctx types.CommitContext) {
	attrs := []any{
		slog.Int("txType", int(tx.Type)),
		slog.String("caller", hexAddr(caller)),
		slog.Uint64("blockNumber", ctx.BlockNumber),
	}
	switch tx.Type {
	case types.TxTypeRequestServiceExecution:
		var p requestExecutionPayload
		if decode(tx.Data, &p) == nil {
			attrs = append(attrs, logging.MaskField("requestData", p.RequestData))
		}
	case types.TxTypeAcceptServiceExecution:
		var p acceptExecutionPayload
		if decode(tx.Data, &p) == nil {
			attrs = append(attrs, logging.MaskField("responseData", p.ResponseData))
		}
	case types.TxTypeDisputeServiceExecution:
		var p disputeExecutionPayload
		if decode(tx.Data, &p) == nil {
			attrs = append(attrs, logging.MaskField("disputeData", p.DisputeData))
		}
	}
	slog.Info("ledger: applied transaction", attrs...)
}

func (l *Ledger) dispatch(caller [20]byte, tx *types.Transaction, ctx types.CommitContext) (interface{}, error) {
	switch tx.Type {
	case types.TxTypeGrantRole:
		var p rolePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		account, err := p.accountAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.access.GrantRole(caller, p.Role, account, ctx)

	case types.TxTypeRevokeRole:
		var p rolePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		account, err := p.accountAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.access.RevokeRole(caller, p.Role, account, ctx)

	case types.TxTypeBeginAdminTransfer:
		var p adminTransferPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		newAdmin, err := p.newAdminAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.access.BeginTransfer(caller, newAdmin, ctx)

	case types.TxTypeCancelAdminTransfer:
		return nil, l.access.CancelTransfer(caller, ctx)

	case types.TxTypeAcceptAdminTransfer:
		return nil, l.access.AcceptTransfer(caller, ctx)

	case types.TxTypeBeginDelayChange:
		var p delayChangePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.access.BeginDelayChange(caller, p.NewDelay, ctx)

	case types.TxTypeCancelDelayChange:
		return nil, l.access.CancelDelayChange(caller, ctx)

	case types.TxTypeSetCreatorVisibility:
		var p setCreatorPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		creator, err := p.creatorAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.credits.SetCreatorVisibility(caller, p.VisibilityID, creator, p.Clear, ctx)

	case types.TxTypeBuyCredits:
		var p tradePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		referrer, err := p.referrerAddr()
		if err != nil {
			return nil, err
		}
		return l.credits.BuyCredits(caller, p.VisibilityID, p.Amount, referrer, tx.Value, ctx)

	case types.TxTypeSellCredits:
		var p tradePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		referrer, err := p.referrerAddr()
		if err != nil {
			return nil, err
		}
		return l.credits.SellCredits(caller, p.VisibilityID, p.Amount, referrer, ctx)

	case types.TxTypeTransferCredits:
		var p transferPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		from, err := p.fromAddr()
		if err != nil {
			return nil, err
		}
		to, err := p.toAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.credits.TransferCredits(caller, p.VisibilityID, from, to, p.Amount, ctx)

	case types.TxTypeClaimCreatorFee:
		var p visibilityPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.credits.ClaimCreatorFee(p.VisibilityID, ctx)

	case types.TxTypeUpdateTreasury:
		var p treasuryPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		addr, err := p.treasuryAddr()
		if err != nil {
			return nil, err
		}
		return nil, l.credits.UpdateTreasury(caller, addr)

	case types.TxTypeCreateService:
		var p createServicePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return l.services.CreateService(caller, p.ServiceType, p.VisibilityID, p.CreditsCost, ctx)

	case types.TxTypeUpdateService:
		var p updateServicePayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.UpdateService(caller, p.ServiceNonce, p.Enabled, ctx)

	case types.TxTypeRequestServiceExecution:
		var p requestExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return l.services.RequestServiceExecution(caller, p.ServiceNonce, p.RequestData, ctx)

	case types.TxTypeAcceptServiceExecution:
		var p acceptExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.AcceptServiceExecution(caller, p.ServiceNonce, p.ExecutionNonce, p.ResponseData, ctx)

	case types.TxTypeCancelServiceExecution:
		var p cancelExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.CancelServiceExecution(caller, p.ServiceNonce, p.ExecutionNonce, p.CancelData, ctx)

	case types.TxTypeValidateServiceExecution:
		var p validateExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.ValidateServiceExecution(caller, p.ServiceNonce, p.ExecutionNonce, ctx)

	case types.TxTypeDisputeServiceExecution:
		var p disputeExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.DisputeServiceExecution(caller, p.ServiceNonce, p.ExecutionNonce, p.DisputeData, ctx)

	case types.TxTypeResolveServiceExecution:
		var p resolveExecutionPayload
		if err := decode(tx.Data, &p); err != nil {
			return nil, err
		}
		return nil, l.services.ResolveServiceExecution(caller, p.ServiceNonce, p.ExecutionNonce, p.Refund, p.ResolveData, ctx)

	default:
		return nil, fmt.Errorf("ledger: unknown transaction type %d", tx.Type)
	}
}

func decode(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("ledger: empty transaction payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ledger: decode payload: %w", err)
	}
	return nil
}
