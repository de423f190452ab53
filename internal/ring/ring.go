// Package ring implements the Ring Store (C3): a per-timeframe bounded
// history of finalised candles plus the current partial candle.
//
// Grounded on the teacher's internal/ringbuf lock-free SPSC design, but
// generalised from a producer/consumer queue (Push fails when full, Pop
// drains) to a fixed-capacity history (Push evicts the oldest entry when
// full, nothing is ever drained) — the shape spec §4.3 actually needs: a
// sliding window of the last N closed candles per timeframe, always
// readable via Snapshot. Updates are made from the single pipeline
// critical-path goroutine (spec §5), so the atomic head/tail bookkeeping
// the teacher needed for cross-goroutine SPSC handoff is unnecessary here;
// a plain slice-backed circular buffer is kept instead, trading lock-free
// concurrency for the simpler eviction semantics this component actually
// requires.
package ring

import "signalcore/internal/model"

// Store holds one bounded candle history and one partial candle per
// timeframe. Not safe for concurrent use.
type Store struct {
	capacity int
	history  map[string]*history
	partial  map[string]model.Candle
}

type history struct {
	buf   []model.Candle
	start int // index of the oldest element
	n     int // number of valid elements
}

// New creates a Store. capacity is the number of closed candles retained
// per timeframe (spec §4.3 default 500); it applies uniformly across every
// timeframe registered via PushClosed.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		history:  make(map[string]*history),
		partial:  make(map[string]model.Candle),
	}
}

func (s *Store) bucket(tf string) *history {
	h, ok := s.history[tf]
	if !ok {
		h = &history{buf: make([]model.Candle, s.capacity)}
		s.history[tf] = h
	}
	return h
}

// PushClosed appends a finalised candle to tf's history, evicting the
// oldest entry if the history is already at capacity.
func (s *Store) PushClosed(tf string, c model.Candle) {
	h := s.bucket(tf)
	idx := (h.start + h.n) % len(h.buf)
	if h.n < len(h.buf) {
		h.buf[idx] = c
		h.n++
	} else {
		h.buf[h.start] = c
		h.start = (h.start + 1) % len(h.buf)
	}
}

// Partial returns tf's current in-progress candle, if any.
func (s *Store) Partial(tf string) (model.Candle, bool) {
	c, ok := s.partial[tf]
	return c, ok
}

// SetPartial replaces tf's current in-progress candle.
func (s *Store) SetPartial(tf string, c model.Candle) {
	s.partial[tf] = c
}

// Len reports how many closed candles are currently retained for tf.
func (s *Store) Len(tf string) int {
	h, ok := s.history[tf]
	if !ok {
		return 0
	}
	return h.n
}

// Snapshot copies the last window closed candles for tf, oldest first,
// into a fresh slice safe for the caller to retain. If fewer than window
// candles are available, the full history is returned.
func (s *Store) Snapshot(tf string, window int) []model.Candle {
	h, ok := s.history[tf]
	if !ok || h.n == 0 {
		return nil
	}
	if window > h.n {
		window = h.n
	}
	out := make([]model.Candle, window)
	skip := h.n - window
	for i := 0; i < window; i++ {
		idx := (h.start + skip + i) % len(h.buf)
		out[i] = h.buf[idx]
	}
	return out
}
