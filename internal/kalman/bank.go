package kalman

import (
	"math"

	"signalcore/internal/config"
	"signalcore/internal/model"
)

// Bank owns one Filter per active timeframe, keyed by label — the
// per-timeframe map shape borrowed from the teacher's indicator.Engine.
type Bank struct {
	filters map[string]*Filter
	order   []string // ascending duration, for deterministic coherence iteration
}

// NewBank constructs a Bank with one Filter per configured timeframe. tfs
// must be sorted ascending by duration (internal/config guarantees this).
func NewBank(tfs []model.Timeframe, cfg config.KalmanConfig) *Bank {
	b := &Bank{filters: make(map[string]*Filter, len(tfs))}
	for _, tf := range tfs {
		b.filters[tf.Label] = New(tf.Label, tf.DurationMs, cfg)
		b.order = append(b.order, tf.Label)
	}
	return b
}

// UpdateResult reports what happened to one timeframe's filter after a
// candle closed.
type UpdateResult struct {
	Timeframe string
	State     model.KalmanState
	WasReset  bool
}

// Update folds a closed candle's close price into tf's filter. gapIntervals
// is the count of missing boundaries reported alongside this close (spec
// §7 GapError: the Kalman Bank treats a gap as a lost measurement and
// advances predict by the missing count rather than skipping the update
// entirely).
func (b *Bank) Update(tf string, closePrice float64, gapIntervals int) (UpdateResult, bool) {
	f, ok := b.filters[tf]
	if !ok {
		return UpdateResult{}, false
	}
	f.Update(closePrice, gapIntervals)
	return UpdateResult{Timeframe: tf, State: f.Snapshot(), WasReset: f.WasReset()}, true
}

// Snapshot returns the current state of tf's filter.
func (b *Bank) Snapshot(tf string) (model.KalmanState, bool) {
	f, ok := b.filters[tf]
	if !ok {
		return model.KalmanState{}, false
	}
	return f.Snapshot(), true
}

// ActiveTimeframes returns every configured timeframe label in ascending
// duration order.
func (b *Bank) ActiveTimeframes() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Coherence computes cross-timeframe directional agreement (spec §4.4):
// the fraction of active filters sharing the dominant velocity sign,
// weighted by the mean confidence of filters with a non-zero direction.
func (b *Bank) Coherence() float64 {
	var up, down, total int
	var confSum float64

	for _, label := range b.order {
		f := b.filters[label]
		dir := model.SignOf(f.x[1])
		if dir == model.DirFlat {
			continue
		}
		total++
		confSum += f.confidence
		if dir == model.DirUp {
			up++
		} else {
			down++
		}
	}
	if total == 0 {
		return 0
	}
	dominant := up
	if down > dominant {
		dominant = down
	}
	fraction := float64(dominant) / float64(total)
	meanConf := confSum / float64(total)
	coherence := fraction * meanConf
	if math.IsNaN(coherence) {
		return 0
	}
	return coherence
}
