package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalcore/internal/model"
)

// streamKind pairs a Redis Streams key with the model.Kind and (optional)
// timeframe label needed to reconstruct a model.Event from its payload.
type streamKind struct {
	key       string
	kind      model.Kind
	timeframe string
}

// Subscriber reads internal/publisher's Redis Streams and re-emits each
// entry into a Hub, so a satellite broadcast process can serve the WS
// dashboard without sitting in the pipeline's own process. Grounded on the
// teacher's gateway.PubSubRouter role (subscribe to the backend, route into
// the hub's fan-out); the transport is XREAD rather than PubSub because
// internal/publisher chose Streams for their replay/trim semantics.
type Subscriber struct {
	client *goredis.Client
	hub    *Hub
	keys   []streamKind
}

// NewSubscriber builds a Subscriber that tails every stream internal/publisher
// can write for instrument across the given timeframe labels.
func NewSubscriber(client *goredis.Client, hub *Hub, instrument string, timeframes []string) *Subscriber {
	stream := func(suffix string) string { return "signalcore:" + suffix + ":" + instrument }

	keys := []streamKind{
		{key: stream("fused_decision"), kind: model.KindFusedDecision},
		{key: stream("trigger"), kind: model.KindTrigger},
	}
	for _, tf := range timeframes {
		keys = append(keys,
			streamKind{key: stream("candle_closed:" + tf), kind: model.KindCandleClosed, timeframe: tf},
			streamKind{key: stream("candle_gap:" + tf), kind: model.KindCandleGap, timeframe: tf},
			streamKind{key: stream("filter_reset:" + tf), kind: model.KindFilterReset, timeframe: tf},
		)
	}

	return &Subscriber{client: client, hub: hub, keys: keys}
}

// Run blocks on XREAD across every tracked stream, starting from "$" (only
// entries written after Run starts), until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	streams := make([]string, 0, len(s.keys)*2)
	for _, k := range s.keys {
		streams = append(streams, k.key)
	}
	ids := make([]string, len(streams))
	for i := range ids {
		ids[i] = "$"
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		args := append(append([]string{}, streams...), ids...)
		res, err := s.client.XRead(ctx, &goredis.XReadArgs{
			Streams: args,
			Block:   2 * time.Second,
			Count:   100,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[broadcast] xread error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, streamResult := range res {
			sk := s.lookup(streamResult.Stream)
			if sk == nil {
				continue
			}
			for _, msg := range streamResult.Messages {
				s.handleMessage(*sk, msg)
			}
			for i, key := range streams {
				if key == streamResult.Stream && len(streamResult.Messages) > 0 {
					ids[i] = streamResult.Messages[len(streamResult.Messages)-1].ID
				}
			}
		}
	}
}

func (s *Subscriber) lookup(key string) *streamKind {
	for i := range s.keys {
		if s.keys[i].key == key {
			return &s.keys[i]
		}
	}
	return nil
}

// handleMessage forwards the stream entry's payload straight into the hub
// without an unmarshal/remarshal round trip: internal/publisher already
// wrote valid JSON for this exact kind, so the subscriber only needs to
// know which kind it is.
func (s *Subscriber) handleMessage(sk streamKind, msg goredis.XMessage) {
	raw, ok := msg.Values["data"].(string)
	if !ok || !json.Valid([]byte(raw)) {
		return
	}
	s.hub.publish(sk.kind, json.RawMessage(raw))
}
