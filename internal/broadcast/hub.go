// Package broadcast fans pipeline emissions out to WebSocket dashboard
// subscribers, grounded on the teacher's internal/gateway Hub/Client
// (client registry, per-client send buffer, write coalescing), trimmed
// of the indicator-display-configuration bookkeeping a multi-indicator
// charting UI needs and re-keyed to model.Event's Kind instead of a
// Redis PubSub channel name.
package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalcore/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type latestEntry struct {
	data json.RawMessage
	ts   time.Time
}

// Hub manages connected dashboard clients and fans out every emission it
// is handed via Emit. Implements model.Emitter: a pipeline can use a Hub
// as its emitter directly, or a satellite process can feed one from a
// publisher subscription.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	latest  map[model.Kind]latestEntry
	seq     int64

	dropped *dropCounter
}

// dropCounter is an injection point for internal/metrics without a
// hard dependency from this package on the metrics package's type.
type dropCounter struct {
	inc func()
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		latest:  make(map[model.Kind]latestEntry),
	}
}

// OnDrop registers a callback invoked every time a saturated client drops
// a message, so the caller can wire it to a Prometheus counter.
func (h *Hub) OnDrop(fn func()) {
	h.dropped = &dropCounter{inc: fn}
}

// Emit implements model.Emitter.
func (h *Hub) Emit(e model.Event) {
	var payload any
	switch e.Kind {
	case model.KindCandleClosed:
		payload = e.CandleClosed
	case model.KindCandleGap:
		payload = e.CandleGap
	case model.KindFilterReset:
		payload = e.FilterReset
	case model.KindFusedDecision:
		payload = e.FusedDecision
	case model.KindTrigger:
		payload = e.Trigger
	default:
		log.Printf("[broadcast] unknown event kind %q", e.Kind)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[broadcast] marshal error: %v", err)
		return
	}
	h.publish(e.Kind, data)
}

func (h *Hub) publish(kind model.Kind, data json.RawMessage) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.latest[kind] = latestEntry{data: data, ts: now}
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	envelope, err := json.Marshal(struct {
		Kind model.Kind      `json:"kind"`
		Data json.RawMessage `json:"data"`
		TS   string          `json:"ts"`
		Seq  int64           `json:"seq"`
	}{Kind: kind, Data: data, TS: now.Format(time.RFC3339Nano), Seq: seq})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribes(kind) {
			continue
		}
		select {
		case c.send <- envelope:
		default:
			if h.dropped != nil {
				h.dropped.inc()
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// the resulting client. Dashboard clients may pass ?kinds=trigger,fused_decision
// to subscribe to a subset of emission kinds; omitted means all kinds.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[broadcast] upgrade error: %v", err)
		return
	}

	c := newClient(conn, h, parseKindFilter(r.URL.Query().Get("kinds")))

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go c.sendInitialState(h)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parseKindFilter(raw string) map[model.Kind]bool {
	if raw == "" {
		return nil
	}
	out := make(map[model.Kind]bool)
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out[model.Kind(raw[start:i])] = true
			}
			start = i + 1
		}
	}
	return out
}
