package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"signalcore/internal/config"
	"signalcore/internal/model"
)

type fakeRingInspector struct {
	depth   map[string]int
	partial map[string]model.Candle
}

func (f *fakeRingInspector) RingDepth(tf string) int { return f.depth[tf] }

func (f *fakeRingInspector) Partial(tf string) (model.Candle, bool) {
	c, ok := f.partial[tf]
	return c, ok
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRouter_ReloadRejectsNonPost(t *testing.T) {
	r := NewRouter(func(*config.Config) error { return nil }, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reload", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRouter_ReloadWithoutHandlerReturnsNotImplemented(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}

func TestRouter_ReloadRejectsInvalidConfig(t *testing.T) {
	called := false
	r := NewRouter(func(*config.Config) error { called = true; return nil }, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", bytes.NewReader([]byte(`{"instrument":""}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a config with no instrument, got %d", w.Code)
	}
	if called {
		t.Fatal("reload func should not be invoked for invalid config")
	}
}

func TestRouter_TradesWithoutJournalReturnsNotImplemented(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}

func TestRouter_RingWithoutInspectorReturnsNotImplemented(t *testing.T) {
	r := NewRouter(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ring", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", w.Code)
	}
}

func TestRouter_RingReportsDepthAndPartialPerTimeframe(t *testing.T) {
	ring := &fakeRingInspector{
		depth:   map[string]int{"1m": 12, "5m": 3},
		partial: map[string]model.Candle{"1m": {OpenTS: 1000, Close: 42.5}},
	}
	r := NewRouter(nil, nil, ring, []string{"1m", "5m"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ring", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got []struct {
		Timeframe   string        `json:"timeframe"`
		ClosedDepth int           `json:"closed_depth"`
		Partial     *model.Candle `json:"partial,omitempty"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 timeframe entries, got %d", len(got))
	}
	if got[0].Timeframe != "1m" || got[0].ClosedDepth != 12 || got[0].Partial == nil || got[0].Partial.Close != 42.5 {
		t.Fatalf("unexpected 1m entry: %+v", got[0])
	}
	if got[1].Timeframe != "5m" || got[1].ClosedDepth != 3 || got[1].Partial != nil {
		t.Fatalf("unexpected 5m entry: %+v", got[1])
	}
}

func TestRouter_ReloadAcceptsValidConfig(t *testing.T) {
	var gotInstrument string
	r := NewRouter(func(cfg *config.Config) error { gotInstrument = cfg.Instrument; return nil }, nil, nil, nil)

	valid := config.Config{
		Instrument:   "BTC-PERP",
		Timeframes:   []config.TimeframeEntry{{Label: "1s", DurationMs: 1000}},
		RingCapacity: 100,
		Kalman: config.KalmanConfig{
			Q0: 1, R: 1, PInit: 1, WarmupMin: 1, VolatilityWindowLen: 2,
			InnovationWindowLen: 1, ScaleMin: 0.1, ScaleMax: 10,
		},
		Fusion: config.FusionConfig{
			TFRanks:     map[string]int{"1s": 0},
			AlphaRegime: map[string]float64{"trending": 1, "volatile": 1, "stable": 1, "mean_reverting": 1},
			NRef:        1, TauEnter: 0.5, MuEnter: 0.5,
		},
		RiskByRegime: map[string]config.RiskParams{
			"trending": {RPct: 0.01, Multiple: 2}, "volatile": {RPct: 0.01, Multiple: 2},
			"stable": {RPct: 0.01, Multiple: 2}, "mean_reverting": {RPct: 0.01, Multiple: 2},
		},
	}
	body, _ := json.Marshal(valid)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reload", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if gotInstrument != "BTC-PERP" {
		t.Fatalf("reload func did not receive the decoded config: got %q", gotInstrument)
	}
}
