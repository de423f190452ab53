package pipeline

import (
	"context"
	"testing"

	"signalcore/internal/config"
	"signalcore/internal/model"
	"signalcore/internal/signalsource"
)

type fakeEmitter struct {
	events []model.Event
}

func (e *fakeEmitter) Emit(ev model.Event) { e.events = append(e.events, ev) }

func (e *fakeEmitter) count(kind model.Kind) int {
	n := 0
	for _, ev := range e.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fakeSink struct {
	submitted []model.Trigger
}

func (s *fakeSink) Submit(ctx context.Context, t model.Trigger) error {
	s.submitted = append(s.submitted, t)
	return nil
}
func (s *fakeSink) Close() error { return nil }

func testCfg() *config.Config {
	return &config.Config{
		Instrument: "BTC-PERP",
		Timeframes: []config.TimeframeEntry{
			{Label: "1m", DurationMs: 60_000},
			{Label: "5m", DurationMs: 300_000},
		},
		RingCapacity: 50,
		Kalman: config.KalmanConfig{
			Q0: 0.01, R: 1.0, PInit: 10.0, WarmupMin: 5,
			VolatilityWindowLen: 10, InnovationWindowLen: 20,
			ScaleMin: 0.1, ScaleMax: 10.0,
			RegimeThresholds: config.RegimeThresholds{TrendingVelocity: 0.05, VolatileSigma: 1.5, StableSigma: 0.3},
		},
		Fusion: config.FusionConfig{
			TFRanks:          map[string]int{"1m": 1, "5m": 2},
			AlphaRegime:      map[string]float64{"trending": 0.25, "volatile": -0.15, "stable": 0, "mean_reverting": -0.05},
			Beta:             0.15,
			Gamma:            0.5,
			NRef:             2,
			TauEnter:         0.1,
			MuEnter:          0.01,
			GlobalRiskScalar: 1.0,
		},
		RiskByRegime: map[string]config.RiskParams{
			"trending":       {RPct: 0.005, Multiple: 2.5},
			"volatile":       {RPct: 0.003, Multiple: 2.5},
			"stable":         {RPct: 0.004, Multiple: 2.0},
			"mean_reverting": {RPct: 0.004, Multiple: 2.0},
		},
	}
}

func newTestPipeline(t *testing.T, emitter model.Emitter, sink model.OrderSink) *Pipeline {
	t.Helper()
	sources := []model.SignalSource{signalsource.NewKalmanDirectionalSource(0.05)}
	p, err := New(testCfg(), nil, sources, emitter, sink, nil)
	if err != nil {
		t.Fatalf("unexpected error constructing pipeline: %v", err)
	}
	return p
}

func TestPipeline_FirstTickProducesNoCandleClosed(t *testing.T) {
	em := &fakeEmitter{}
	p := newTestPipeline(t, em, nil)
	_, err := p.ProcessTick(context.Background(), model.Tick{TS: 1000, Price: 100, Volume: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if em.count(model.KindCandleClosed) != 0 {
		t.Fatalf("expected no candle closed on first tick")
	}
}

func TestPipeline_RejectedTickProducesNoEmissions(t *testing.T) {
	em := &fakeEmitter{}
	p := newTestPipeline(t, em, nil)
	p.ProcessTick(context.Background(), model.Tick{TS: 1000, Price: 100, Volume: 1})
	_, err := p.ProcessTick(context.Background(), model.Tick{TS: 500, Price: 100, Volume: 1}) // out of order
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(em.events) != 0 {
		t.Fatalf("expected no emissions from a rejected tick, got %d", len(em.events))
	}
}

func TestPipeline_SustainedUptrendProducesCandleClosedAndTrigger(t *testing.T) {
	em := &fakeEmitter{}
	sink := &fakeSink{}
	p := newTestPipeline(t, em, sink)

	price := 100.0
	ts := int64(0)
	for i := 0; i < 400; i++ {
		price += 0.1
		ts += 5000 // 5 seconds per tick, 12 ticks per minute boundary
		p.ProcessTick(context.Background(), model.Tick{TS: ts, Price: price, Volume: 1})
	}

	if em.count(model.KindCandleClosed) == 0 {
		t.Fatal("expected at least one candle closed over a sustained uptrend")
	}
	if em.count(model.KindFusedDecision) == 0 {
		t.Fatal("expected at least one fused decision")
	}
	if em.count(model.KindTrigger) == 0 {
		t.Fatal("expected at least one trigger emission")
	}
}

func TestPipeline_GapProducesCandleGapEvent(t *testing.T) {
	em := &fakeEmitter{}
	p := newTestPipeline(t, em, nil)

	p.ProcessTick(context.Background(), model.Tick{TS: 0, Price: 100, Volume: 1})
	p.ProcessTick(context.Background(), model.Tick{TS: 180_000, Price: 110, Volume: 1}) // 3 minutes later

	if em.count(model.KindCandleGap) == 0 {
		t.Fatal("expected a candle gap event across the missing boundaries")
	}
}

func TestPipeline_ConstructionRejectsInvalidConfig(t *testing.T) {
	cfg := testCfg()
	cfg.Instrument = ""
	_, err := New(cfg, nil, []model.SignalSource{signalsource.NewKalmanDirectionalSource(0.05)}, nil, nil, nil)
	if err == nil {
		t.Fatal("expected ConfigError for empty instrument")
	}
}

func TestPipeline_ConstructionRequiresAtLeastOneSource(t *testing.T) {
	_, err := New(testCfg(), nil, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error when no SignalSource is supplied")
	}
}
