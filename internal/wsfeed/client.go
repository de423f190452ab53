// Package wsfeed implements model.TickSource over a venue's public trade
// WebSocket, grounded on the teacher's pkg/smartconnect.SmartWebSocketV3
// (dial/ping-pong/reconnect-with-backoff loop) and
// internal/marketdata/ws.Ingest (callback-to-channel bridge), recast from
// Angel One's binary exchange-type subscription protocol to a generic
// JSON trade-stream client: the wire schema is venue-specific, so callers
// supply a TradeParser instead of this package hardcoding one exchange.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalcore/internal/metrics"
	"signalcore/internal/model"
)

// TradeParser decodes one raw WebSocket text/binary message into a Tick.
// Returns ok=false for control/heartbeat frames that carry no trade.
type TradeParser func(raw []byte) (tick model.Tick, ok bool, err error)

// Config configures a Feed.
type Config struct {
	URL              string
	SubscribeMessage any // marshalled to JSON and sent once per (re)connect
	Parser           TradeParser

	HeartbeatInterval time.Duration // default 15s
	MaxReconnectDelay time.Duration // default 30s
	BufferSize        int           // default 4096
}

// Feed is a reconnecting WebSocket model.TickSource. The connect/read/
// heartbeat loop runs in the background once Run is called; Next drains
// the resulting tick buffer.
type Feed struct {
	cfg Config
	m   *metrics.Metrics

	out    chan model.Tick
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// New creates a Feed. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Feed {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	return &Feed{
		cfg:  cfg,
		m:    m,
		out:  make(chan model.Tick, cfg.BufferSize),
		done: make(chan struct{}),
	}
}

// Run connects and reconnects with exponential backoff until ctx is
// cancelled or Close is called. Intended to run in its own goroutine;
// Next() is the consumer-facing half of this Feed.
func (f *Feed) Run(ctx context.Context) {
	delay := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		if err := f.connectAndRead(ctx); err != nil {
			log.Printf("[wsfeed] connection error: %v, reconnecting in %v", err, delay)
			if f.m != nil {
				f.m.SourceReconnect.Inc()
			}
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > f.cfg.MaxReconnectDelay {
				delay = f.cfg.MaxReconnectDelay
			}
			continue
		}
		delay = time.Second
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if f.cfg.SubscribeMessage != nil {
		if err := conn.WriteJSON(f.cfg.SubscribeMessage); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * f.cfg.HeartbeatInterval))
	})
	conn.SetReadDeadline(time.Now().Add(2 * f.cfg.HeartbeatInterval))

	readErr := make(chan error, 1)
	msgs := make(chan []byte, 256)
	go func() {
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- data
		}
	}()

	ticker := time.NewTicker(f.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.done:
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case data, ok := <-msgs:
			if !ok {
				return nil
			}
			f.handleMessage(data)
		}
	}
}

func (f *Feed) handleMessage(data []byte) {
	if f.cfg.Parser == nil {
		return
	}
	tick, ok, err := f.cfg.Parser(data)
	if err != nil {
		log.Printf("[wsfeed] parse error: %v", err)
		return
	}
	if !ok {
		return
	}

	select {
	case f.out <- tick:
	default:
		log.Println("[wsfeed] tick buffer full, dropping tick")
	}
}

// Next implements model.TickSource.
func (f *Feed) Next(ctx context.Context) (model.Tick, error) {
	select {
	case <-ctx.Done():
		return model.Tick{}, ctx.Err()
	case <-f.done:
		return model.Tick{}, model.ErrSourceClosed
	case t := <-f.out:
		return t, nil
	}
}

// Close implements model.TickSource, stopping the reconnect loop.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

// DefaultJSONParser extracts {ts_ms, price, volume} from a flat JSON
// trade message, the common shape for perpetual-futures trade feeds.
func DefaultJSONParser(raw []byte) (model.Tick, bool, error) {
	var msg struct {
		Type   string  `json:"type"`
		TS     int64   `json:"ts_ms"`
		Price  float64 `json:"price"`
		Volume float64 `json:"volume"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.Tick{}, false, err
	}
	if msg.Type != "" && msg.Type != "trade" {
		return model.Tick{}, false, nil
	}
	if msg.Price == 0 && msg.Volume == 0 && msg.TS == 0 {
		return model.Tick{}, false, nil
	}
	return model.Tick{TS: msg.TS, Price: msg.Price, Volume: msg.Volume}, true, nil
}
