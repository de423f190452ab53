package fusion

import (
	"testing"

	"signalcore/internal/config"
	"signalcore/internal/model"
	"signalcore/internal/risk"
)

func testFusionConfig() config.FusionConfig {
	return config.FusionConfig{
		TFRanks:          map[string]int{"1m": 1, "5m": 2, "15m": 3},
		AlphaRegime:      map[string]float64{"trending": 0.25, "volatile": -0.15, "stable": 0, "mean_reverting": -0.05},
		Beta:             0.15,
		Gamma:            0.5,
		NRef:             5,
		TauEnter:         0.55,
		MuEnter:          0.2,
		GlobalRiskScalar: 1.0,
	}
}

func testRiskByRegime() map[string]config.RiskParams {
	return map[string]config.RiskParams{
		"trending":       {RPct: 0.005, Multiple: 2.5},
		"volatile":       {RPct: 0.003, Multiple: 2.5},
		"stable":         {RPct: 0.004, Multiple: 2.0},
		"mean_reverting": {RPct: 0.004, Multiple: 2.0},
	}
}

func newTestEngine() *Engine {
	rm := risk.NewManager(testRiskByRegime(), 1.0, 1.0)
	return NewEngine(testFusionConfig(), rm)
}

func TestEngine_NoSignalsYieldsHold(t *testing.T) {
	e := newTestEngine()
	d := e.Decide(nil, model.RegimeStable, 0, 1000)
	trig := e.Trigger(d, 100)
	if trig.Action != model.ActionHold {
		t.Fatalf("expected hold with zero signals, got %v", trig.Action)
	}
}

func TestEngine_UnanimousUpSignalsProduceUpDirection(t *testing.T) {
	e := newTestEngine()
	signals := []model.Signal{
		{SourceID: "kalman_directional", Timeframe: "1m", Direction: model.DirUp, Strength: 0.8, Confidence: 0.9},
		{SourceID: "kalman_directional", Timeframe: "5m", Direction: model.DirUp, Strength: 0.7, Confidence: 0.9},
	}
	d := e.Decide(signals, model.RegimeTrending, 0.95, 1000)
	if d.Direction != model.DirUp {
		t.Fatalf("expected DirUp, got %v", d.Direction)
	}
	if d.Magnitude <= 0 || d.Magnitude > 1 {
		t.Fatalf("expected magnitude in (0,1], got %v", d.Magnitude)
	}
	if d.Confidence <= 0 || d.Confidence > 1 {
		t.Fatalf("expected confidence in (0,1], got %v", d.Confidence)
	}
}

func TestEngine_BelowThresholdYieldsHold(t *testing.T) {
	e := newTestEngine()
	signals := []model.Signal{
		{SourceID: "s", Timeframe: "1m", Direction: model.DirUp, Strength: 0.1, Confidence: 0.1},
	}
	d := e.Decide(signals, model.RegimeStable, 0.1, 1000)
	trig := e.Trigger(d, 100)
	if trig.Action != model.ActionHold {
		t.Fatalf("expected hold for low-confidence low-magnitude signal, got %v", trig.Action)
	}
}

func TestEngine_ConflictingSignalsReduceMagnitude(t *testing.T) {
	e := newTestEngine()
	unanimous := []model.Signal{
		{SourceID: "a", Timeframe: "1m", Direction: model.DirUp, Strength: 0.8, Confidence: 0.9},
		{SourceID: "b", Timeframe: "5m", Direction: model.DirUp, Strength: 0.8, Confidence: 0.9},
	}
	conflicting := []model.Signal{
		{SourceID: "a", Timeframe: "1m", Direction: model.DirUp, Strength: 0.8, Confidence: 0.9},
		{SourceID: "b", Timeframe: "5m", Direction: model.DirDown, Strength: 0.8, Confidence: 0.9},
	}
	du := e.Decide(unanimous, model.RegimeStable, 0.9, 1000)
	dc := e.Decide(conflicting, model.RegimeStable, 0.9, 1000)
	if dc.Magnitude >= du.Magnitude {
		t.Fatalf("expected conflicting signals to reduce magnitude: unanimous=%v conflicting=%v", du.Magnitude, dc.Magnitude)
	}
}

func TestEngine_FusedValuesStayWithinBounds(t *testing.T) {
	e := newTestEngine()
	signals := []model.Signal{
		{SourceID: "a", Timeframe: "1m", Direction: model.DirUp, Strength: 1.0, Confidence: 1.0},
		{SourceID: "b", Timeframe: "5m", Direction: model.DirUp, Strength: 1.0, Confidence: 1.0},
		{SourceID: "c", Timeframe: "15m", Direction: model.DirUp, Strength: 1.0, Confidence: 1.0},
	}
	d := e.Decide(signals, model.RegimeTrending, 1.0, 1000)
	if d.Magnitude < 0 || d.Magnitude > 1 {
		t.Fatalf("magnitude out of bounds: %v", d.Magnitude)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %v", d.Confidence)
	}
	if d.Coherence < 0 || d.Coherence > 1 {
		t.Fatalf("coherence out of bounds: %v", d.Coherence)
	}
	if d.Direction != model.DirUp && d.Direction != model.DirDown && d.Direction != model.DirFlat {
		t.Fatalf("invalid direction: %v", d.Direction)
	}
}

func TestEngine_EntersLongWhenGatesPass(t *testing.T) {
	e := newTestEngine()
	signals := []model.Signal{
		{SourceID: "a", Timeframe: "1m", Direction: model.DirUp, Strength: 0.9, Confidence: 0.9},
		{SourceID: "b", Timeframe: "5m", Direction: model.DirUp, Strength: 0.9, Confidence: 0.9},
	}
	d := e.Decide(signals, model.RegimeTrending, 0.95, 1000)
	trig := e.Trigger(d, 100)
	if d.Confidence >= testFusionConfig().TauEnter && d.Magnitude >= testFusionConfig().MuEnter {
		if trig.Action != model.ActionEnterLong {
			t.Fatalf("expected enter_long once gates pass, got %v (decision=%+v)", trig.Action, d)
		}
	}
}
