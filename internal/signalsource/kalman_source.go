// Package signalsource provides concrete SignalSource implementations
// (spec §4.5). Every source here is a pure function of prior CandleClosed
// and KalmanState inputs: no blocking I/O, one Signal at most per
// timeframe per update cycle.
package signalsource

import (
	"math"

	"signalcore/internal/model"
)

// KalmanDirectionalSource is the mandatory core SignalSource: it derives a
// directional Signal straight from each timeframe's Kalman filter state.
// Direction is the sign of velocity; strength scales with velocity
// magnitude relative to velocityRef, capped at 1; confidence is the
// filter's own confidence (spec §4.5).
type KalmanDirectionalSource struct {
	velocityRef float64
	current     map[string]model.Signal
}

// NewKalmanDirectionalSource creates the source. velocityRef is the
// velocity magnitude considered "full strength" (1.0); it is a
// source-level tuning constant, not part of the Kalman filter's own
// configuration, since it scales a derived signal rather than the filter
// dynamics themselves.
func NewKalmanDirectionalSource(velocityRef float64) *KalmanDirectionalSource {
	return &KalmanDirectionalSource{
		velocityRef: velocityRef,
		current:     make(map[string]model.Signal),
	}
}

func (s *KalmanDirectionalSource) ID() string { return "kalman_directional" }

// OnCandleClosed is a no-op: this source only reacts to filter state.
func (s *KalmanDirectionalSource) OnCandleClosed(tf string, c model.Candle) {}

func (s *KalmanDirectionalSource) OnKalman(tf string, ks model.KalmanState) {
	strength := math.Abs(ks.Velocity) / s.velocityRef
	if strength > 1 {
		strength = 1
	}
	// TS is stamped by the pipeline when it collects Current() for fusion,
	// not here: the source has no notion of the triggering tick's timestamp.
	s.current[tf] = model.Signal{
		SourceID:   s.ID(),
		Timeframe:  tf,
		Direction:  model.SignOf(ks.Velocity),
		Strength:   strength,
		Confidence: ks.Confidence,
	}
}

func (s *KalmanDirectionalSource) Current(tf string) (model.Signal, bool) {
	sig, ok := s.current[tf]
	return sig, ok
}
