package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	cerrors "vsbld/core/errors"
	"vsbld/core/ledger"
	"vsbld/core/types"
)

// ledgerRoutes mounts the Credits/Services/Access JSON API directly against
// a ledger.Ledger: a typed handler set on a chi.Router rather than a proxy.
type ledgerRoutes struct {
	ledger *ledger.Ledger
}

func newLedgerRoutes(l *ledger.Ledger) *ledgerRoutes {
	return &ledgerRoutes{ledger: l}
}

func (lr *ledgerRoutes) mount(r chi.Router) {
	r.Post("/transactions", lr.submitTransaction)
	r.Get("/visibilities/{id}", lr.getVisibility)
	r.Get("/visibilities/{id}/quote", lr.getQuote)
	r.Get("/visibilities/{id}/balances/{address}", lr.getBalance)
	r.Get("/roles/{role}/{address}", lr.getRoleMembership)
	r.Get("/services/{nonce}", lr.getService)
	r.Get("/services/{serviceNonce}/executions/{executionNonce}", lr.getServiceExecution)
}

func (lr *ledgerRoutes) submitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := lr.ledger.Apply(&tx, 0, nowUnix())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// visibilityID returns the {id} path segment percent-decoded, so an id
// containing a slash is addressed as %2F; chi matches against the escaped path.
func visibilityID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if vid, err := url.PathUnescape(raw); err == nil {
		return vid
	}
	return raw
}

func (lr *ledgerRoutes) getVisibility(w http.ResponseWriter, r *http.Request) {
	vid := visibilityID(r)
	q := lr.ledger.Query()
	supply, err := q.VisibilitySupply(vid)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	creator, hasCreator, err := q.VisibilityCreator(vid)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	claimable, err := q.VisibilityClaimableFeeBalance(vid)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	visKey := q.VisibilityKey(vid)
	resp := map[string]interface{}{
		"visibilityId":         vid,
		"visibilityKey":        hexBytes(visKey[:]),
		"totalSupply":          supply,
		"hasCreator":           hasCreator,
		"claimableFeeBalance":  claimable.String(),
	}
	if hasCreator {
		resp["creator"] = hexBytes(creator[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (lr *ledgerRoutes) getQuote(w http.ResponseWriter, r *http.Request) {
	vid := visibilityID(r)
	side := r.URL.Query().Get("side")
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("amount must be a non-negative integer"))
		return
	}
	hasReferrer := r.URL.Query().Get("referrer") != ""

	q := lr.ledger.Query()
	var quote interface{}
	switch side {
	case "buy":
		quote, err = q.BuyQuote(vid, amount, hasReferrer)
	case "sell":
		quote, err = q.SellQuote(vid, amount, hasReferrer)
	default:
		writeError(w, http.StatusBadRequest, errors.New("side must be buy or sell"))
		return
	}
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (lr *ledgerRoutes) getBalance(w http.ResponseWriter, r *http.Request) {
	vid := visibilityID(r)
	addrStr := chi.URLParam(r, "address")
	addr, err := parseHexAddr(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := lr.ledger.Query().CreditBalance(vid, addr)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"visibilityId": vid,
		"account":      addrStr,
		"balance":      balance,
	})
}

func (lr *ledgerRoutes) getRoleMembership(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	addrStr := chi.URLParam(r, "address")
	addr, err := parseHexAddr(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	has := lr.ledger.Query().HasRole(role, addr)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":    role,
		"account": addrStr,
		"granted": has,
	})
}

func (lr *ledgerRoutes) getService(w http.ResponseWriter, r *http.Request) {
	nonce, err := strconv.ParseUint(chi.URLParam(r, "nonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	svc, ok, err := lr.ledger.Query().Service(nonce)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("service not found"))
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (lr *ledgerRoutes) getServiceExecution(w http.ResponseWriter, r *http.Request) {
	serviceNonce, err := strconv.ParseUint(chi.URLParam(r, "serviceNonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	executionNonce, err := strconv.ParseUint(chi.URLParam(r, "executionNonce"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	state, requester, lastUpdate, err := lr.ledger.Query().ServiceExecution(serviceNonce, executionNonce)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        state,
		"requester":    hexBytes(requester[:]),
		"lastUpdateTs": lastUpdate,
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, cerrors.ErrUnauthorized),
		errors.Is(err, cerrors.ErrUnauthorizedExecutionAction):
		return http.StatusForbidden
	case errors.Is(err, cerrors.ErrInvalidAmount),
		errors.Is(err, cerrors.ErrInvalidAddress),
		errors.Is(err, cerrors.ErrInvalidCreator),
		errors.Is(err, cerrors.ErrInvalidFeeParams),
		errors.Is(err, cerrors.ErrNotEnoughEthSent),
		errors.Is(err, cerrors.ErrNotEnoughCreditsOwned),
		errors.Is(err, cerrors.ErrDisabledService),
		errors.Is(err, cerrors.ErrInvalidExecutionState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
