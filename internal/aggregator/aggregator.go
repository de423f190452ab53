// Package aggregator implements the Aggregator (C2): incremental,
// multi-timeframe OHLCV aggregation from a validated tick stream with
// boundary alignment, partial-candle semantics, and gap detection.
//
// Every active timeframe is driven directly from the tick (not from
// re-reading base candles) — spec §4.2 notes the two strategies are
// equivalent provided no ticks are dropped, and driving every timeframe
// from the same tick keeps the ascending-duration ordering guarantee
// trivial: timeframes are iterated in the order they were configured
// (smallest duration first), so Process returns closures for the same
// boundary in ascending-duration order automatically.
package aggregator

import (
	"signalcore/internal/model"
)

// Closed is one timeframe's finalised candle produced by a single Process
// call, with the timeframe label attached for caller convenience.
type Closed struct {
	Timeframe string
	Candle    model.Candle
}

// Gap is one timeframe's missed-boundary report produced by a single
// Process call.
type Gap struct {
	Timeframe   string
	MissingFrom int64
	MissingTo   int64
	Intervals   int64
}

type tfState struct {
	tf      model.Timeframe
	candle  model.Candle
	started bool
}

// Aggregator maintains one current (possibly absent) partial candle per
// configured timeframe. Not safe for concurrent use — it is owned by the
// single pipeline critical-path goroutine (spec §5).
type Aggregator struct {
	states []tfState
}

// New creates an Aggregator for the given timeframes. tfs must already be
// sorted ascending by duration (internal/config validates this at
// construction time) — Process relies on that order for the ascending
// emission guarantee.
func New(tfs []model.Timeframe) *Aggregator {
	states := make([]tfState, len(tfs))
	for i, tf := range tfs {
		states[i] = tfState{tf: tf}
	}
	return &Aggregator{states: states}
}

// Process folds one validated tick into every configured timeframe. It
// returns any candles that finalised as a result (in ascending-duration
// order, per timeframe configuration order) and any gaps detected.
func (a *Aggregator) Process(t model.Tick) ([]Closed, []Gap) {
	var closed []Closed
	var gaps []Gap

	for i := range a.states {
		st := &a.states[i]
		boundary := st.tf.Boundary(t.TS)

		if !st.started {
			st.candle = model.NewPartial(boundary, t.Price, t.Volume)
			st.started = true
			continue
		}

		switch {
		case boundary > st.candle.OpenTS:
			intervals := (boundary - st.candle.OpenTS) / st.tf.DurationMs
			finalised := st.candle
			finalised.Closed = true
			closed = append(closed, Closed{Timeframe: st.tf.Label, Candle: finalised})

			if intervals > 1 {
				gaps = append(gaps, Gap{
					Timeframe:   st.tf.Label,
					MissingFrom: st.candle.OpenTS + st.tf.DurationMs,
					MissingTo:   boundary,
					Intervals:   intervals - 1,
				})
			}

			st.candle = model.NewPartial(boundary, t.Price, t.Volume)

		case boundary == st.candle.OpenTS:
			st.candle.Update(t.Price, t.Volume)

		default:
			// boundary < st.candle.OpenTS: a same-boundary tick that
			// arrived logically "behind" the current partial's open due
			// to two ticks sharing a timestamp is impossible here since
			// boundary is a deterministic function of t.TS and the
			// validator enforces t.TS >= last accepted TS; a strictly
			// smaller boundary would imply a strictly smaller TS, which
			// the validator already rejected. Nothing to do.
		}
	}

	return closed, gaps
}

// Partial returns the current in-progress candle for a timeframe by label,
// and whether one has started yet.
func (a *Aggregator) Partial(label string) (model.Candle, bool) {
	for i := range a.states {
		if a.states[i].tf.Label == label {
			return a.states[i].candle, a.states[i].started
		}
	}
	return model.Candle{}, false
}
