package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// hexAddr renders addr as a "0x"-prefixed hex string, the inverse of
// decodeHexAddr.
func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// decodeHexAddr parses a "0x"-prefixed (or bare) 40-character hex string
// into a 20-byte address. An empty string decodes to the zero address.
func decodeHexAddr(s string) ([20]byte, error) {
	var addr [20]byte
	s = strings.TrimSpace(strings.TrimPrefix(s, "0x"))
	if s == "" {
		return addr, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("ledger: invalid address %q: %w", s, err)
	}
	if len(b) != 20 {
		return addr, fmt.Errorf("ledger: address %q is not 20 bytes", s)
	}
	copy(addr[:], b)
	return addr, nil
}

type rolePayload struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

func (p rolePayload) accountAddr() ([20]byte, error) { return decodeHexAddr(p.Account) }

type adminTransferPayload struct {
	NewAdmin string `json:"newAdmin"`
}

func (p adminTransferPayload) newAdminAddr() ([20]byte, error) { return decodeHexAddr(p.NewAdmin) }

type delayChangePayload struct {
	NewDelay int64 `json:"newDelay"`
}

type setCreatorPayload struct {
	VisibilityID string `json:"visibilityId"`
	Creator      string `json:"creator"`
	Clear        bool   `json:"clear"`
}

func (p setCreatorPayload) creatorAddr() ([20]byte, error) { return decodeHexAddr(p.Creator) }

// tradePayload backs both buyCredits and sellCredits. Referrer is optional;
// an empty string means no referrer, matching the engine's nil-pointer
// convention for "not supplied".
type tradePayload struct {
	VisibilityID string `json:"visibilityId"`
	Amount       uint64 `json:"amount"`
	Referrer     string `json:"referrer,omitempty"`
}

func (p tradePayload) referrerAddr() (*[20]byte, error) {
	if strings.TrimSpace(p.Referrer) == "" {
		return nil, nil
	}
	addr, err := decodeHexAddr(p.Referrer)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

type transferPayload struct {
	VisibilityID string `json:"visibilityId"`
	From         string `json:"from"`
	To           string `json:"to"`
	Amount       uint64 `json:"amount"`
}

func (p transferPayload) fromAddr() ([20]byte, error) { return decodeHexAddr(p.From) }
func (p transferPayload) toAddr() ([20]byte, error)    { return decodeHexAddr(p.To) }

type visibilityPayload struct {
	VisibilityID string `json:"visibilityId"`
}

type treasuryPayload struct {
	Treasury string `json:"treasury"`
}

func (p treasuryPayload) treasuryAddr() ([20]byte, error) { return decodeHexAddr(p.Treasury) }

type createServicePayload struct {
	ServiceType  string `json:"serviceType"`
	VisibilityID string `json:"visibilityId"`
	CreditsCost  uint64 `json:"creditsCost"`
}

type updateServicePayload struct {
	ServiceNonce uint64 `json:"serviceNonce"`
	Enabled      bool   `json:"enabled"`
}

type requestExecutionPayload struct {
	ServiceNonce uint64 `json:"serviceNonce"`
	RequestData  string `json:"requestData"`
}

type acceptExecutionPayload struct {
	ServiceNonce   uint64 `json:"serviceNonce"`
	ExecutionNonce uint64 `json:"executionNonce"`
	ResponseData   string `json:"responseData"`
}

type cancelExecutionPayload struct {
	ServiceNonce   uint64 `json:"serviceNonce"`
	ExecutionNonce uint64 `json:"executionNonce"`
	CancelData     string `json:"cancelData"`
}

type validateExecutionPayload struct {
	ServiceNonce   uint64 `json:"serviceNonce"`
	ExecutionNonce uint64 `json:"executionNonce"`
}

type disputeExecutionPayload struct {
	ServiceNonce   uint64 `json:"serviceNonce"`
	ExecutionNonce uint64 `json:"executionNonce"`
	DisputeData    string `json:"disputeData"`
}

type resolveExecutionPayload struct {
	ServiceNonce   uint64 `json:"serviceNonce"`
	ExecutionNonce uint64 `json:"executionNonce"`
	Refund         bool   `json:"refund"`
	ResolveData    string `json:"resolveData"`
}
