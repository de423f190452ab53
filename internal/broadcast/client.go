package broadcast

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalcore/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// client is a single dashboard WebSocket peer.
type client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	mu    sync.RWMutex
	kinds map[model.Kind]bool // nil means subscribed to every kind
}

func newClient(conn *websocket.Conn, h *Hub, kinds map[model.Kind]bool) *client {
	return &client{
		conn:  conn,
		hub:   h,
		send:  make(chan []byte, 256),
		kinds: kinds,
	}
}

func (c *client) subscribes(kind model.Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kinds == nil {
		return true
	}
	return c.kinds[kind]
}

// sendInitialState replays the hub's latest known emission per kind so a
// freshly connected dashboard doesn't have to wait for the next tick.
func (c *client) sendInitialState(h *Hub) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for kind, entry := range h.latest {
		if !c.subscribes(kind) {
			continue
		}
		envelope, err := json.Marshal(struct {
			Kind    model.Kind      `json:"kind"`
			Data    json.RawMessage `json:"data"`
			TS      string          `json:"ts"`
			Initial bool            `json:"initial"`
		}{Kind: kind, Data: entry.data, TS: entry.ts.Format(time.RFC3339Nano), Initial: true})
		if err != nil {
			continue
		}
		select {
		case c.send <- envelope:
		default:
		}
	}
}

// writePump drains c.send to the socket, coalescing any messages already
// queued behind the one it's about to write into a single frame.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump exists to detect disconnects and accept filter updates; dashboard
// clients never push trading data upstream.
func (c *client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var sub struct {
			Kinds []model.Kind `json:"kinds"`
		}
		if json.Unmarshal(msg, &sub) != nil {
			continue
		}
		c.mu.Lock()
		if len(sub.Kinds) == 0 {
			c.kinds = nil
		} else {
			c.kinds = make(map[model.Kind]bool, len(sub.Kinds))
			for _, k := range sub.Kinds {
				c.kinds[k] = true
			}
		}
		c.mu.Unlock()
		log.Printf("[broadcast] client updated kind filter: %v", sub.Kinds)
	}
}
