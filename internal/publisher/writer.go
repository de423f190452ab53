// Package publisher forwards pipeline emissions (model.Event) to Redis
// Streams, grounded on the teacher's internal/store/redis writer and
// circuit breaker. Each event kind gets its own stream so a downstream
// consumer (internal/broadcast, internal/execution's satellite process)
// can XREAD only the kinds it cares about.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalcore/internal/model"
)

// streamMaxLen bounds each stream to roughly an hour of 1s-cadence
// emissions plus headroom for bursts of multi-timeframe closes.
const streamMaxLen = 12000

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr       string
	Password   string
	DB         int
	Instrument string
}

// Writer writes pipeline emissions to Redis Streams.
type Writer struct {
	client     *goredis.Client
	instrument string
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[publisher] connected to %s", cfg.Addr)
	return &Writer{client: client, instrument: cfg.Instrument}, nil
}

func (w *Writer) stream(suffix string) string {
	return "signalcore:" + suffix + ":" + w.instrument
}

// write XADDs one JSON-encoded payload to the named stream, trimmed to
// streamMaxLen entries (approximate trim, cheap on the hot path).
func (w *Writer) write(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return w.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"data": data},
	}).Err()
}

func (w *Writer) writeEvent(ctx context.Context, e model.Event) error {
	switch e.Kind {
	case model.KindCandleClosed:
		return w.write(ctx, w.stream("candle_closed:"+e.CandleClosed.Timeframe), e.CandleClosed)
	case model.KindCandleGap:
		return w.write(ctx, w.stream("candle_gap:"+e.CandleGap.Timeframe), e.CandleGap)
	case model.KindFilterReset:
		return w.write(ctx, w.stream("filter_reset:"+e.FilterReset.Timeframe), e.FilterReset)
	case model.KindFusedDecision:
		return w.write(ctx, w.stream("fused_decision"), e.FusedDecision)
	case model.KindTrigger:
		return w.write(ctx, w.stream("trigger"), e.Trigger)
	default:
		return fmt.Errorf("publisher: unknown event kind %q", e.Kind)
	}
}
