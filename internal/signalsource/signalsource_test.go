package signalsource

import (
	"testing"

	"signalcore/internal/model"
	"signalcore/internal/ring"
)

func TestKalmanDirectionalSource_DerivesDirectionFromVelocity(t *testing.T) {
	s := NewKalmanDirectionalSource(1.0)
	s.OnKalman("1m", model.KalmanState{Velocity: 0.5, Confidence: 0.8})

	sig, ok := s.Current("1m")
	if !ok {
		t.Fatal("expected a current signal")
	}
	if sig.Direction != model.DirUp {
		t.Fatalf("expected DirUp, got %v", sig.Direction)
	}
	if sig.Strength != 0.5 {
		t.Fatalf("expected strength 0.5, got %v", sig.Strength)
	}
	if sig.Confidence != 0.8 {
		t.Fatalf("expected confidence passthrough 0.8, got %v", sig.Confidence)
	}
}

func TestKalmanDirectionalSource_StrengthCapsAtOne(t *testing.T) {
	s := NewKalmanDirectionalSource(1.0)
	s.OnKalman("1m", model.KalmanState{Velocity: 10, Confidence: 1})
	sig, _ := s.Current("1m")
	if sig.Strength != 1.0 {
		t.Fatalf("expected capped strength 1.0, got %v", sig.Strength)
	}
}

func TestKalmanDirectionalSource_NoSignalBeforeFirstUpdate(t *testing.T) {
	s := NewKalmanDirectionalSource(1.0)
	if _, ok := s.Current("1m"); ok {
		t.Fatal("expected no signal before any OnKalman call")
	}
}

func candleAt(ts int64, close float64) model.Candle {
	return model.Candle{OpenTS: ts, Open: close, High: close, Low: close, Close: close, Closed: true}
}

// pushAndClose mirrors the pipeline's own ordering (internal/pipeline's
// ProcessTick pushes a closed candle to the Ring Store before notifying
// SignalSources), since TechnicalSource now reads its history back out of
// the same ring rather than keeping a private copy.
func pushAndClose(r *ring.Store, s *TechnicalSource, tf string, c model.Candle) {
	r.PushClosed(tf, c)
	s.OnCandleClosed(tf, c)
}

func TestTechnicalSource_NoSignalBeforeSlowPeriodFilled(t *testing.T) {
	r := ring.New(100)
	s := NewTechnicalSource(r, 2, 4, false, 0)
	for i := int64(0); i < 3; i++ {
		pushAndClose(r, s, "1m", candleAt(i*60_000, 100+float64(i)))
	}
	if _, ok := s.Current("1m"); ok {
		t.Fatal("expected no signal before slow period is filled")
	}
}

func TestTechnicalSource_GoldenCrossEmitsUpDirection(t *testing.T) {
	r := ring.New(100)
	s := NewTechnicalSource(r, 2, 4, false, 0)
	prices := []float64{100, 100, 100, 100, 100, 110, 120}
	for i, p := range prices {
		pushAndClose(r, s, "1m", candleAt(int64(i)*60_000, p))
	}
	sig, ok := s.Current("1m")
	if !ok {
		t.Fatal("expected a signal after sustained rise")
	}
	if sig.Direction != model.DirUp {
		t.Fatalf("expected DirUp after golden cross, got %v", sig.Direction)
	}
}

func TestTechnicalSource_IndependentPerTimeframe(t *testing.T) {
	r := ring.New(100)
	s := NewTechnicalSource(r, 2, 3, false, 0)
	for i := int64(0); i < 5; i++ {
		pushAndClose(r, s, "1m", candleAt(i*60_000, 100+float64(i)*5))
	}
	if _, ok := s.Current("5m"); ok {
		t.Fatal("expected no signal for an untouched timeframe")
	}
	sig1m, ok := s.Current("1m")
	if !ok || sig1m.Timeframe != "1m" {
		t.Fatalf("expected 1m signal, got %+v ok=%v", sig1m, ok)
	}
}
