// Package events fans out the ledger's Credits/Services/Access events to
// websocket subscribers, the same way the reference exposes its
// POS-finality updates over a websocket stream in rpc/ws.go.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	coreevents "vsbld/core/events"
)

const writeTimeout = 10 * time.Second

// wireEvent is the JSON shape written to every subscriber: the event type
// plus its attributes, exactly as native/{credits,services,access} already
// populate them for the emitter.
type wireEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Hub implements events.Emitter and fans every emitted event out to every
// currently-subscribed websocket client. Chain it the same way
// observability.MetricsEmitter decorates the ledger's emitter: Next receives
// every event after Hub has broadcast it.
type Hub struct {
	Next coreevents.Emitter

	mu   sync.Mutex
	subs map[chan wireEvent]struct{}
}

// NewHub constructs an empty hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan wireEvent]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt coreevents.Event) {
	if h == nil {
		return
	}
	if evt != nil {
		h.broadcast(wireEvent{Type: evt.EventType(), Attributes: evt.Attributes()})
	}
	if h.Next != nil {
		h.Next.Emit(evt)
	}
}

func (h *Hub) broadcast(wire wireEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- wire:
		default:
			// Slow subscriber; drop the event rather than block the
			// committing transaction that triggered it.
		}
	}
}

func (h *Hub) subscribe() chan wireEvent {
	ch := make(chan wireEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan wireEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeHTTP upgrades the request to a websocket and streams every event
// emitted from this point on, one JSON object per text frame. It never
// replays history; a client that needs the full picture first reads the
// query surface's GET routes, then subscribes for updates.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt wireEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
