package replay

import (
	"context"
	"log"
	"time"

	"signalcore/internal/model"
)

// Replayer implements model.TickSource by replaying ticks previously
// recorded into a Store, at a configurable speed multiplier. Grounded on
// the teacher's marketdata/replay.Replayer pacing logic (inter-event gaps
// scaled by speed, capped to avoid multi-second stalls on sparse data),
// generalised from TF candles to raw ticks so the full pipeline
// (validator through fusion) runs unmodified against historical data.
type Replayer struct {
	ticks []model.Tick
	speed float64

	idx     int
	prevTS  int64
	started bool
}

// NewReplayer loads every tick at or after fromTS from store and prepares
// a Replayer. speed controls playback rate: 1.0 = real-time, 10.0 = 10x,
// 0 = as fast as possible (no simulated gaps).
func NewReplayer(store *Store, fromTS int64, speed float64) (*Replayer, error) {
	ticks, err := store.ReadAll(fromTS)
	if err != nil {
		return nil, err
	}
	log.Printf("[replay] loaded %d ticks, speed=%.1fx", len(ticks), speed)
	return &Replayer{ticks: ticks, speed: speed}, nil
}

// Next implements model.TickSource. Returns model.ErrSourceClosed once
// every loaded tick has been delivered.
func (r *Replayer) Next(ctx context.Context) (model.Tick, error) {
	if r.idx >= len(r.ticks) {
		return model.Tick{}, model.ErrSourceClosed
	}

	t := r.ticks[r.idx]
	if r.speed > 0 && r.started {
		gapMs := t.TS - r.prevTS
		if gapMs > 0 {
			wait := time.Duration(float64(gapMs) / r.speed * float64(time.Millisecond))
			if wait > 5*time.Second {
				wait = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return model.Tick{}, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	r.prevTS = t.TS
	r.started = true
	r.idx++
	return t, nil
}

// Close releases no resources; the tick slice was loaded eagerly.
func (r *Replayer) Close() error { return nil }

// Remaining reports how many ticks are left to deliver, for progress
// logging in cmd/backtest.
func (r *Replayer) Remaining() int {
	return len(r.ticks) - r.idx
}
