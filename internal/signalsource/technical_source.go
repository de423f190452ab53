package signalsource

import "signalcore/internal/model"

// RingReader is the read side of the Ring Store (internal/ring.Store, C3)
// that TechnicalSource consumes instead of keeping a private history:
// spec §4.3 documents the Ring Store's window as existing precisely for
// downstream computation like this one.
type RingReader interface {
	Snapshot(tf string, window int) []model.Candle
	Len(tf string) int
}

// TechnicalSource recasts the teacher's SMA(fast)/SMA(slow) crossover
// strategy (internal/strategy/sma_crossover.go) with its optional RSI
// overbought/oversold filter as a SignalSource: instead of emitting a
// BUY/SELL strategy Signal it emits a directional model.Signal whose
// strength is the normalized SMA spread and whose confidence is
// attenuated when the RSI filter would have vetoed the classic strategy.
// Both SMAs are recomputed each close from the Ring Store's closed-candle
// window rather than a buffer this source maintains itself.
type TechnicalSource struct {
	ring       RingReader
	fastPeriod int
	slowPeriod int
	rsiEnabled bool
	rsiPeriod  int

	states map[string]*tfTechnicalState
}

type tfTechnicalState struct {
	ready   bool
	hasPrev bool

	prevClose float64
	rsiGain   float64
	rsiLoss   float64
	rsiCount  int
	lastRSI   float64

	current model.Signal
	hasCur  bool
}

// NewTechnicalSource creates a TechnicalSource reading closed-candle
// history from ring. fastPeriod must be less than slowPeriod. rsiPeriod is
// ignored when enableRSI is false.
func NewTechnicalSource(ring RingReader, fastPeriod, slowPeriod int, enableRSI bool, rsiPeriod int) *TechnicalSource {
	return &TechnicalSource{
		ring:       ring,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		rsiEnabled: enableRSI,
		rsiPeriod:  rsiPeriod,
		states:     make(map[string]*tfTechnicalState),
	}
}

func (s *TechnicalSource) ID() string { return "technical_sma_crossover" }

func (s *TechnicalSource) stateFor(tf string) *tfTechnicalState {
	st, ok := s.states[tf]
	if !ok {
		st = &tfTechnicalState{}
		s.states[tf] = st
	}
	return st
}

func (s *TechnicalSource) OnCandleClosed(tf string, c model.Candle) {
	st := s.stateFor(tf)
	price := c.Close

	if s.rsiEnabled && st.hasPrev {
		st.updateRSI(price, s.rsiPeriod)
	}
	st.prevClose = price
	st.hasPrev = true

	if s.ring.Len(tf) < s.slowPeriod {
		return
	}

	window := s.ring.Snapshot(tf, s.slowPeriod)
	var slowSum float64
	for _, wc := range window {
		slowSum += wc.Close
	}
	slowSMA := slowSum / float64(s.slowPeriod)

	var fastSum float64
	for _, wc := range window[len(window)-s.fastPeriod:] {
		fastSum += wc.Close
	}
	fastSMA := fastSum / float64(s.fastPeriod)

	if !st.ready {
		st.ready = true
		return
	}

	spread := (fastSMA - slowSMA) / slowSMA
	strength := spread
	if strength < 0 {
		strength = -strength
	}
	if strength > 1 {
		strength = 1
	}

	confidence := 1.0
	vetoed := false
	if s.rsiEnabled {
		if spread > 0 && st.lastRSI > 70 {
			vetoed = true
		} else if spread < 0 && st.lastRSI < 30 {
			vetoed = true
		}
	}
	if vetoed {
		confidence = 0.2
	}

	st.current = model.Signal{
		SourceID:   s.ID(),
		Timeframe:  tf,
		Direction:  model.SignOf(spread),
		Strength:   strength,
		Confidence: confidence,
	}
	st.hasCur = true
}

// OnKalman is a no-op: this source only reacts to closed candles.
func (s *TechnicalSource) OnKalman(tf string, ks model.KalmanState) {}

func (s *TechnicalSource) Current(tf string) (model.Signal, bool) {
	st, ok := s.states[tf]
	if !ok || !st.hasCur {
		return model.Signal{}, false
	}
	return st.current, true
}

func (st *tfTechnicalState) updateRSI(price float64, period int) {
	change := price - st.prevClose
	st.rsiCount++

	if st.rsiCount <= period {
		if change > 0 {
			st.rsiGain += change
		} else {
			st.rsiLoss -= change
		}
		if st.rsiCount == period {
			st.rsiGain /= float64(period)
			st.rsiLoss /= float64(period)
		}
	} else {
		n := float64(period)
		if change > 0 {
			st.rsiGain = (st.rsiGain*(n-1) + change) / n
			st.rsiLoss = (st.rsiLoss * (n - 1)) / n
		} else {
			st.rsiGain = (st.rsiGain * (n - 1)) / n
			st.rsiLoss = (st.rsiLoss*(n-1) - change) / n
		}
	}

	if st.rsiLoss == 0 {
		st.lastRSI = 100
	} else {
		rs := st.rsiGain / st.rsiLoss
		st.lastRSI = 100 - (100 / (1 + rs))
	}
}
