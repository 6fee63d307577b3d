package observability

import (
	"math/big"
	"strconv"

	"vsbld/core/events"
)

// MetricsEmitter decorates another emitter, recording Prometheus metrics for
// every credits trade and services execution-state transition before
// forwarding the event unchanged. Wrap the ledger's real emitter (or
// events.NoopEmitter{}) with this to get metrics without touching engine
// code.
type MetricsEmitter struct {
	Next events.Emitter
}

// Emit implements events.Emitter.
func (m MetricsEmitter) Emit(evt events.Event) {
	recordEventMetrics(evt)
	if m.Next != nil {
		m.Next.Emit(evt)
	}
}

func recordEventMetrics(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := evt.Attributes()
	switch evt.EventType() {
	case "credits.trade":
		recordCreditsTrade(attrs)
	case "services.execution.requested":
		Services().RecordTransition("requested")
	case "services.execution.accepted":
		Services().RecordTransition("accepted")
	case "services.execution.canceled":
		Services().RecordTransition("canceled")
	case "services.execution.disputed":
		Services().RecordTransition("disputed")
	case "services.execution.resolved":
		Services().RecordTransition("resolved")
	case "services.execution.validated":
		Services().RecordTransition("validated")
		if attrs["autoValidated"] == "true" {
			Services().RecordAutoValidated()
		}
	}
}

func recordCreditsTrade(attrs map[string]string) {
	if attrs == nil {
		return
	}
	vid := attrs["visibilityId"]
	isBuy := attrs["isBuy"] == "true"
	amount, _ := strconv.ParseUint(attrs["amount"], 10, 64)
	newTotalSupply, _ := strconv.ParseUint(attrs["newTotalSupply"], 10, 64)
	creatorFee := parseBig(attrs["creatorFee"])
	protocolFee := parseBig(attrs["protocolFee"])
	referrerFee := parseBig(attrs["referrerFee"])
	Credits().RecordTrade(vid, isBuy, amount, creatorFee, protocolFee, referrerFee, newTotalSupply)
}

func parseBig(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}
